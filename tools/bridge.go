package tools

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/smithblack-0/WorkflowForge/tokenizer"
	"github.com/smithblack-0/WorkflowForge/vm"
)

var log = commonlog.GetLogger("zcp.tools")

// Status reports what happened to one lane during Resolve.
type Status uint8

const (
	// StatusIdle means the lane did not raise tool-ready.
	StatusIdle Status = iota
	StatusOK
	// StatusMissing means no callback is registered under the lane's id.
	StatusMissing
	// StatusFailed means decoding, the callback, or encoding failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Engine is the part of *vm.Engine the bridge needs.
type Engine interface {
	Capture(lane int) []vm.Token
	SetFeedback(lane int, tokens []vm.Token) error
}

// Bridge resolves tool-ready lanes against a Table.
type Bridge struct {
	Table     *Table
	Tokenizer tokenizer.Tokenizer
}

// Resolve runs the callback for every lane that raised tool-ready in out
// and feeds the result back. A lane whose tool is missing or fails gets
// empty feedback so it can carry on; other lanes are unaffected.
func (b *Bridge) Resolve(ctx context.Context, eng Engine, out *vm.StepOutput) []Status {
	statuses := make([]Status, len(out.ToolReady))
	for lane, id := range out.ToolReady {
		if id < 0 {
			continue
		}
		status, feedback, err := b.call(ctx, eng, lane, int(id))
		if err != nil {
			log.Warningf("lane %d tool %d: %s", lane, id, err)
		}
		if ferr := eng.SetFeedback(lane, feedback); ferr != nil {
			log.Errorf("lane %d: set feedback: %s", lane, ferr)
			status = StatusFailed
		}
		statuses[lane] = status
	}
	return statuses
}

func (b *Bridge) call(ctx context.Context, eng Engine, lane, id int) (status Status, feedback []vm.Token, err error) {
	fn, ok := b.Table.Func(id)
	if !ok {
		return StatusMissing, nil, fmt.Errorf("no callback registered")
	}
	if err := ctx.Err(); err != nil {
		return StatusFailed, nil, err
	}
	input, err := b.Tokenizer.Decode(eng.Capture(lane))
	if err != nil {
		return StatusFailed, nil, fmt.Errorf("decode capture: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			status, feedback, err = StatusFailed, nil, fmt.Errorf("tool %q panicked: %v", b.Table.Name(id), r)
		}
	}()
	result, err := fn(ctx, input)
	if err != nil {
		return StatusFailed, nil, fmt.Errorf("tool %q: %w", b.Table.Name(id), err)
	}
	feedback, err = b.Tokenizer.Encode(result)
	if err != nil {
		return StatusFailed, nil, fmt.Errorf("encode result: %w", err)
	}
	return StatusOK, feedback, nil
}
