package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Continuation is a snapshot of a batch between steps. It is opaque to
// callers: pass it to Resume with the same program to carry on.
type Continuation struct {
	RunID         string `cbor:"1,keyasint"`
	ProgramDigest string `cbor:"2,keyasint"`
	Steps         int64  `cbor:"3,keyasint"`

	ProgramCounter []int32   `cbor:"4,keyasint"`
	EscapeDepth    []int32   `cbor:"5,keyasint"`
	PatternBuffer  [][]Token `cbor:"6,keyasint"`
	ToolMode       []int32   `cbor:"7,keyasint"`
	ToolWriteIndex []int32   `cbor:"8,keyasint"`

	NamedStates map[string][]int32 `cbor:"9,keyasint"`

	TokenNumInZone   []int32   `cbor:"10,keyasint"`
	Capture          [][]Token `cbor:"11,keyasint"`
	InputFeedPointer []int32   `cbor:"12,keyasint"`
	Input            [][]Token `cbor:"13,keyasint"`
	Forcing          []bool    `cbor:"14,keyasint"`
	ForcePos         []int32   `cbor:"15,keyasint"`
	AwaitingFeedback []bool    `cbor:"16,keyasint"`
}

// Snapshot captures every lane and the named states.
func (e *Engine) Snapshot() (*Continuation, error) {
	digest, err := e.prog.Digest()
	if err != nil {
		return nil, fmt.Errorf("digest program: %w", err)
	}
	n := len(e.lanes)
	c := &Continuation{
		RunID:            e.runID.String(),
		ProgramDigest:    digest,
		Steps:            e.steps,
		ProgramCounter:   make([]int32, n),
		EscapeDepth:      make([]int32, n),
		PatternBuffer:    make([][]Token, n),
		ToolMode:         make([]int32, n),
		ToolWriteIndex:   make([]int32, n),
		NamedStates:      make(map[string][]int32, len(e.named)),
		TokenNumInZone:   make([]int32, n),
		Capture:          make([][]Token, n),
		InputFeedPointer: make([]int32, n),
		Input:            make([][]Token, n),
		Forcing:          make([]bool, n),
		ForcePos:         make([]int32, n),
		AwaitingFeedback: make([]bool, n),
	}
	for i := range e.lanes {
		s := e.lanes[i].Clone()
		c.ProgramCounter[i] = s.PC
		c.EscapeDepth[i] = s.EscapeDepth
		c.PatternBuffer[i] = s.PatternBuffer
		c.ToolMode[i] = s.ToolMode
		c.ToolWriteIndex[i] = s.ToolWriteIndex
		c.TokenNumInZone[i] = s.TokenNumInZone
		c.Capture[i] = s.Capture
		c.InputFeedPointer[i] = s.InputFeedPointer
		c.Input[i] = s.Input
		c.Forcing[i] = s.Forcing
		c.ForcePos[i] = s.ForcePos
		c.AwaitingFeedback[i] = s.AwaitingFeedback
	}
	for k, v := range e.named {
		c.NamedStates[k] = append([]int32(nil), v...)
	}
	return c, nil
}

// Resume rebuilds an engine from a continuation made against p.
func Resume(p *Program, c *Continuation, opts Options) (*Engine, error) {
	n := len(c.ProgramCounter)
	e, err := NewEngine(p, n, opts)
	if err != nil {
		return nil, err
	}
	digest, err := p.Digest()
	if err != nil {
		return nil, fmt.Errorf("digest program: %w", err)
	}
	if c.ProgramDigest != digest {
		return nil, fmt.Errorf("continuation was made for program %.12s, not %.12s", c.ProgramDigest, digest)
	}
	lengths := []int{len(c.EscapeDepth), len(c.PatternBuffer), len(c.ToolMode), len(c.ToolWriteIndex),
		len(c.TokenNumInZone), len(c.Capture), len(c.InputFeedPointer), len(c.Input),
		len(c.Forcing), len(c.ForcePos), len(c.AwaitingFeedback)}
	for _, l := range lengths {
		if l != n {
			return nil, fmt.Errorf("continuation lane arrays disagree: %d vs %d", l, n)
		}
	}
	if id, err := uuid.Parse(c.RunID); err == nil {
		e.runID = id
	}
	e.steps = c.Steps
	for i := range e.lanes {
		pc := c.ProgramCounter[i]
		if pc < 0 || pc > p.Done() {
			return nil, fmt.Errorf("lane %d: program counter %d out of range", i, pc)
		}
		if len(c.PatternBuffer[i]) > p.PatternWindow {
			return nil, fmt.Errorf("lane %d: pattern buffer exceeds window", i)
		}
		if err := checkLane(p, c, i); err != nil {
			return nil, fmt.Errorf("lane %d: %w", i, err)
		}
		s := LaneState{
			PC:               pc,
			TokenNumInZone:   c.TokenNumInZone[i],
			EscapeDepth:      c.EscapeDepth[i],
			PatternBuffer:    c.PatternBuffer[i],
			ToolMode:         c.ToolMode[i],
			ToolWriteIndex:   c.ToolWriteIndex[i],
			Capture:          c.Capture[i],
			InputFeedPointer: c.InputFeedPointer[i],
			Input:            c.Input[i],
			Forcing:          c.Forcing[i],
			ForcePos:         c.ForcePos[i],
			AwaitingFeedback: c.AwaitingFeedback[i],
		}
		e.lanes[i] = s.Clone()
	}
	for k, v := range c.NamedStates {
		e.named[k] = append([]int32(nil), v...)
	}
	return e, nil
}

// checkLane bounds every index the feeders and capture stage dereference.
func checkLane(p *Program, c *Continuation, i int) error {
	pc := c.ProgramCounter[i]
	switch {
	case c.TokenNumInZone[i] < 0:
		return fmt.Errorf("token count %d is negative", c.TokenNumInZone[i])
	case c.EscapeDepth[i] < 0:
		return fmt.Errorf("escape depth %d is negative", c.EscapeDepth[i])
	case c.InputFeedPointer[i] < 0 || int(c.InputFeedPointer[i]) > len(c.Input[i]):
		return fmt.Errorf("input pointer %d outside [0,%d]", c.InputFeedPointer[i], len(c.Input[i]))
	case c.ToolWriteIndex[i] < 0 || int(c.ToolWriteIndex[i]) > len(c.Capture[i]):
		return fmt.Errorf("tool write index %d outside [0,%d]", c.ToolWriteIndex[i], len(c.Capture[i]))
	case c.ToolMode[i] < -1:
		return fmt.Errorf("tool mode %d invalid", c.ToolMode[i])
	}
	if pc < p.Done() {
		if n := len(p.AdvancePattern[pc]); c.ForcePos[i] < 0 || int(c.ForcePos[i]) > n {
			return fmt.Errorf("force position %d outside [0,%d]", c.ForcePos[i], n)
		}
	}
	return nil
}

// MarshalContinuation encodes a continuation with canonical CBOR.
func MarshalContinuation(c *Continuation) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalContinuation decodes a continuation.
func UnmarshalContinuation(data []byte) (*Continuation, error) {
	var c Continuation
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("vm: unmarshal continuation: %w", err)
	}
	return &c, nil
}
