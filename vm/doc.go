// Package vm executes compiled zone programs.
//
// A Program is a set of parallel instruction arrays, one entry per zone,
// plus a flat buffer of prompt tokens addressed by offset pairs. One
// Program is shared read-only by every lane of an Engine.
//
// Each call to Engine.Step consumes one token per lane and produces one
// token per lane. Every lane runs the same four stages in order:
//
//	decode      index the instruction arrays at the lane's program counter
//	feed        timeout, prompt and input feeders may replace the token
//	transition  match escape, jump and advance patterns on the recent window
//	post        emit the zone's tags, capture tool output, raise tool-ready
//
// A lane whose program counter equals Program.Len() is done and emits the
// padding token forever. Lanes never share state, so the result of a batch
// step is identical to stepping each lane on its own.
package vm

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("zcp.vm")
