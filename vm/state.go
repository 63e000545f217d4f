package vm

import "fmt"

// Claimant identifies which stage produced a lane's output token.
type Claimant uint8

const (
	ClaimNone Claimant = iota
	ClaimTimeout
	ClaimPrompt
	ClaimInput
	ClaimDone
	ClaimAwait
)

func (c Claimant) String() string {
	switch c {
	case ClaimNone:
		return "none"
	case ClaimTimeout:
		return "timeout"
	case ClaimPrompt:
		return "prompt"
	case ClaimInput:
		return "input"
	case ClaimDone:
		return "done"
	case ClaimAwait:
		return "await"
	default:
		return fmt.Sprintf("Claimant(%d)", c)
	}
}

// EscapePolicy decides whether an active escape also suppresses advances
// forced by a timeout or by the end of an input buffer.
type EscapePolicy uint8

const (
	// EscapePatternsOnly suppresses pattern-triggered transitions only.
	// Forced advances always go through.
	EscapePatternsOnly EscapePolicy = iota
	// EscapeAllTransitions suppresses forced advances too. The forced
	// pattern is consumed like a matched one and forcing restarts.
	EscapeAllTransitions
)

func (e EscapePolicy) String() string {
	switch e {
	case EscapePatternsOnly:
		return "patterns"
	case EscapeAllTransitions:
		return "all"
	default:
		return fmt.Sprintf("EscapePolicy(%d)", e)
	}
}

// ParseEscapePolicy accepts the names returned by EscapePolicy.String.
func ParseEscapePolicy(s string) (EscapePolicy, error) {
	switch s {
	case "", "patterns":
		return EscapePatternsOnly, nil
	case "all":
		return EscapeAllTransitions, nil
	default:
		return 0, fmt.Errorf("unknown escape policy %q", s)
	}
}

// LaneState is the execution state of one lane. It is owned by a single
// lane and never shared.
type LaneState struct {
	PC             int32
	TokenNumInZone int32
	EscapeDepth    int32
	PatternBuffer  []Token

	// ToolMode is the active callback id while capturing, else -1.
	ToolMode       int32
	ToolWriteIndex int32
	Capture        []Token

	InputFeedPointer int32
	Input            []Token

	// Forcing is set while the advance pattern is being emitted one token
	// per step; ForcePos is the next pattern index.
	Forcing  bool
	ForcePos int32

	AwaitingFeedback bool
}

// NewLaneState returns a lane positioned at the source zone.
func NewLaneState() LaneState {
	return LaneState{ToolMode: -1}
}

// Clone returns a deep copy.
func (s LaneState) Clone() LaneState {
	s.PatternBuffer = append([]Token(nil), s.PatternBuffer...)
	s.Capture = append([]Token(nil), s.Capture...)
	s.Input = append([]Token(nil), s.Input...)
	return s
}

// resetZone clears the per-zone state after a transition. The input
// buffer survives until an input zone has consumed it.
func (s *LaneState) resetZone(leftInput bool) {
	s.TokenNumInZone = 0
	s.PatternBuffer = s.PatternBuffer[:0]
	s.Forcing = false
	s.ForcePos = 0
	if leftInput {
		s.Input = nil
		s.InputFeedPointer = 0
	}
}
