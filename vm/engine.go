package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// StepOutput is the batch result of one step. Index i belongs to lane i.
type StepOutput struct {
	Tokens    []Token
	Tags      [][]bool
	ToolReady []int32
	Claimant  []Claimant
}

// Engine runs one Program over a batch of independent lanes.
type Engine struct {
	prog  *Program
	opts  Options
	lanes []LaneState
	named map[string][]int32
	runID uuid.UUID
	steps int64
	empty []bool
}

// NewEngine validates p and positions batch lanes at the source zone.
func NewEngine(p *Program, batch int, opts Options) (*Engine, error) {
	if batch < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batch)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}
	e := &Engine{
		prog:  p,
		opts:  opts,
		lanes: make([]LaneState, batch),
		named: make(map[string][]int32),
		runID: uuid.New(),
		empty: make([]bool, len(p.TagNames)),
	}
	for i := range e.lanes {
		e.lanes[i] = NewLaneState()
	}
	log.Debugf("run %s: %d lanes over %d zones", e.runID, batch, p.Len())
	return e, nil
}

// Program returns the shared program.
func (e *Engine) Program() *Program { return e.prog }

// RunID identifies this run. Continuations carry it forward.
func (e *Engine) RunID() uuid.UUID { return e.runID }

// Batch returns the number of lanes.
func (e *Engine) Batch() int { return len(e.lanes) }

// Steps returns how many steps have run.
func (e *Engine) Steps() int64 { return e.steps }

// Step consumes one token per lane. The only error is a batch size
// mismatch; conditions inside a lane are reported through the output.
func (e *Engine) Step(in []Token) (*StepOutput, error) {
	if len(in) != len(e.lanes) {
		return nil, fmt.Errorf("step got %d tokens for %d lanes", len(in), len(e.lanes))
	}
	out := &StepOutput{
		Tokens:    make([]Token, len(in)),
		Tags:      make([][]bool, len(in)),
		ToolReady: make([]int32, len(in)),
		Claimant:  make([]Claimant, len(in)),
	}
	for i := range e.lanes {
		r := StepLane(e.prog, e.opts, &e.lanes[i], in[i])
		if r.Claimant == ClaimDone {
			r.Tags = e.empty
		}
		out.Tokens[i] = r.Token
		out.Tags[i] = r.Tags
		out.ToolReady[i] = r.ToolReady
		out.Claimant[i] = r.Claimant
	}
	e.steps++
	return out, nil
}

// Done reports whether every lane has reached the done sentinel.
func (e *Engine) Done() bool {
	for i := range e.lanes {
		if e.lanes[i].PC < e.prog.Done() {
			return false
		}
	}
	return true
}

// LaneDone reports whether one lane is done.
func (e *Engine) LaneDone(lane int) bool {
	return e.lanes[lane].PC >= e.prog.Done()
}

// Lane returns a copy of a lane's state.
func (e *Engine) Lane(lane int) LaneState {
	return e.lanes[lane].Clone()
}

// Capture returns a copy of the tokens captured by the lane's last output
// zone.
func (e *Engine) Capture(lane int) []Token {
	return append([]Token(nil), e.lanes[lane].Capture...)
}

// SetFeedback delivers tool output to a lane and rewinds its input feeder.
func (e *Engine) SetFeedback(lane int, tokens []Token) error {
	if lane < 0 || lane >= len(e.lanes) {
		return fmt.Errorf("lane %d out of range [0,%d)", lane, len(e.lanes))
	}
	s := &e.lanes[lane]
	s.Input = append(s.Input[:0], tokens...)
	s.InputFeedPointer = 0
	s.AwaitingFeedback = false
	s.Capture = s.Capture[:0]
	s.ToolWriteIndex = 0
	return nil
}

// SetNamedState stores caller state that travels with continuations.
func (e *Engine) SetNamedState(name string, values []int32) {
	e.named[name] = append([]int32(nil), values...)
}

// NamedState returns a stored named state.
func (e *Engine) NamedState(name string) ([]int32, bool) {
	v, ok := e.named[name]
	return v, ok
}
