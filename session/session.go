// Package session drives an engine against a model: it asks the model for
// one token per lane, steps the engine, resolves tools between steps and
// records what each lane emitted.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/smithblack-0/WorkflowForge/tools"
	"github.com/smithblack-0/WorkflowForge/vm"
)

var log = commonlog.GetLogger("zcp.session")

// ErrStepLimit is returned when a run hits MaxSteps before every lane is done.
var ErrStepLimit = errors.New("step limit reached")

// Model produces the next input token for every lane. last holds what
// each lane emitted on the previous step, or the pad token before the
// first one.
type Model interface {
	Next(ctx context.Context, last []vm.Token) ([]vm.Token, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, last []vm.Token) ([]vm.Token, error)

// Next calls f.
func (f ModelFunc) Next(ctx context.Context, last []vm.Token) ([]vm.Token, error) {
	return f(ctx, last)
}

// Script replays a fixed token stream per lane, then emits Pad.
type Script struct {
	Pad     vm.Token
	streams [][]vm.Token
	pos     []int
}

// NewScript returns a model that replays streams, one per lane.
func NewScript(pad vm.Token, streams ...[]vm.Token) *Script {
	return &Script{Pad: pad, streams: streams, pos: make([]int, len(streams))}
}

// Next implements Model.
func (s *Script) Next(_ context.Context, last []vm.Token) ([]vm.Token, error) {
	out := make([]vm.Token, len(last))
	for i := range out {
		out[i] = s.Pad
		if i < len(s.streams) && s.pos[i] < len(s.streams[i]) {
			out[i] = s.streams[i][s.pos[i]]
			s.pos[i]++
		}
	}
	return out, nil
}

// Transcript is what a run produced.
type Transcript struct {
	RunID     string
	Steps     int64
	Tokens    [][]vm.Token
	Extracted map[string][][]vm.Token
}

// Runner steps an engine until every lane is done.
type Runner struct {
	Engine *vm.Engine
	Model  Model
	// Bridge resolves tool calls. Without one, lanes that call a tool get
	// empty feedback.
	Bridge    *tools.Bridge
	Extractor *vm.Extractor
	// MaxSteps bounds the run. Zero means no bound.
	MaxSteps int64
	// Trace, when set, sees every step.
	Trace func(step int64, out *vm.StepOutput, statuses []tools.Status)
}

// Run drives the engine to completion. On error the transcript holds
// everything up to the failing step.
func (r *Runner) Run(ctx context.Context) (*Transcript, error) {
	eng := r.Engine
	batch := eng.Batch()
	t := &Transcript{RunID: eng.RunID().String(), Tokens: make([][]vm.Token, batch)}
	defer r.collect(t)

	last := make([]vm.Token, batch)
	for i := range last {
		last[i] = eng.Program().PadToken
	}

	for !eng.Done() {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		if r.MaxSteps > 0 && t.Steps >= r.MaxSteps {
			return t, fmt.Errorf("%w after %d steps", ErrStepLimit, t.Steps)
		}

		in, err := r.Model.Next(ctx, last)
		if err != nil {
			return t, fmt.Errorf("model at step %d: %w", t.Steps, err)
		}
		out, err := eng.Step(in)
		if err != nil {
			return t, err
		}
		t.Steps++

		for i, tok := range out.Tokens {
			t.Tokens[i] = append(t.Tokens[i], tok)
		}
		if r.Extractor != nil {
			r.Extractor.Observe(out)
		}
		statuses := r.resolve(ctx, out)
		if r.Trace != nil {
			r.Trace(t.Steps, out, statuses)
		}
		copy(last, out.Tokens)
	}
	log.Debugf("run %s finished after %d steps", t.RunID, t.Steps)
	return t, nil
}

func (r *Runner) resolve(ctx context.Context, out *vm.StepOutput) []tools.Status {
	if r.Bridge != nil {
		return r.Bridge.Resolve(ctx, r.Engine, out)
	}
	var statuses []tools.Status
	for lane, id := range out.ToolReady {
		if id < 0 {
			continue
		}
		if statuses == nil {
			statuses = make([]tools.Status, len(out.ToolReady))
		}
		statuses[lane] = tools.StatusMissing
		if err := r.Engine.SetFeedback(lane, nil); err != nil {
			log.Errorf("lane %d: set feedback: %s", lane, err)
		}
	}
	return statuses
}

func (r *Runner) collect(t *Transcript) {
	if r.Extractor == nil {
		return
	}
	t.Extracted = make(map[string][][]vm.Token)
	for _, name := range r.Extractor.Names() {
		lanes := make([][]vm.Token, len(t.Tokens))
		for i := range lanes {
			lanes[i] = r.Extractor.Tokens(name, i)
		}
		t.Extracted[name] = lanes
	}
}
