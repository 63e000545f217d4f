package vm

// Options configures lane execution.
type Options struct {
	Escape EscapePolicy
	// CaptureLimit bounds a lane's tool capture buffer. Tokens past the
	// limit are dropped. Zero means unbounded.
	CaptureLimit int
	// Feeders replaces DefaultFeeders when non-nil.
	Feeders []Feeder
}

func (o *Options) feeders() []Feeder {
	if o.Feeders != nil {
		return o.Feeders
	}
	return DefaultFeeders
}

// LaneStep is one lane's output for one step.
type LaneStep struct {
	Token     Token
	Tags      []bool
	ToolReady int32
	Claimant  Claimant
}

type exit uint8

const (
	stay exit = iota
	viaJump
	viaAdvance
	viaForce
)

// StepLane advances one lane by one token, updating s in place. The result
// depends only on p, s and in, which is what makes batched and sequential
// execution identical.
//
// Tag vectors in the result alias the program and must not be modified.
func StepLane(p *Program, opts Options, s *LaneState, in Token) LaneStep {
	if s.PC < 0 || s.PC >= p.Done() {
		s.PC = p.Done()
		return LaneStep{Token: p.PadToken, Tags: make([]bool, len(p.TagNames)), ToolReady: -1, Claimant: ClaimDone}
	}
	pc := s.PC

	claim := Claim{Token: in, By: ClaimNone}
	for _, f := range opts.feeders() {
		if c, ok := f(p, s, in); ok {
			claim = c
			break
		}
	}

	how, escaped := transition(p, opts.Escape, s, claim.Token, claim.Forced)

	step := LaneStep{Token: claim.Token, Tags: p.Tags[pc], ToolReady: -1, Claimant: claim.By}
	if p.OutputFlag[pc] {
		postCapture(p, opts, s, pc, claim, how, escaped, &step)
	}
	return step
}

// transition matches the trailing window against the escape and trigger
// patterns and moves the program counter.
func transition(p *Program, policy EscapePolicy, s *LaneState, out Token, forced bool) (exit, bool) {
	pc := s.PC
	s.PatternBuffer = pushWindow(s.PatternBuffer, out, p.PatternWindow)
	buf := s.PatternBuffer

	// A completed forced advance is never read as an escape marker, even
	// when its last token also ends one.
	switch {
	case forced:
	case hasSuffix(buf, p.EscapeOpen):
		s.EscapeDepth++
		s.PatternBuffer = buf[:0]
		s.TokenNumInZone++
		return stay, false
	case hasSuffix(buf, p.EscapeClose):
		if s.EscapeDepth > 0 {
			s.EscapeDepth--
		}
		s.PatternBuffer = buf[:0]
		s.TokenNumInZone++
		return stay, false
	}

	jump := !forced && p.JumpEnable[pc] && hasSuffix(buf, p.JumpPattern[pc])
	adv := !forced && hasSuffix(buf, p.AdvancePattern[pc])

	if s.EscapeDepth > 0 && (jump || adv || (forced && policy == EscapeAllTransitions)) {
		s.EscapeDepth--
		s.PatternBuffer = buf[:0]
		if forced {
			s.Forcing = false
			s.ForcePos = 0
		}
		s.TokenNumInZone++
		return stay, true
	}

	leftInput := p.InputFlag[pc]
	switch {
	case jump:
		s.PC = p.JumpLocation[pc]
		s.resetZone(leftInput)
		return viaJump, false
	case adv:
		s.PC = p.AdvanceLocation[pc]
		s.resetZone(leftInput)
		return viaAdvance, false
	case forced:
		s.PC = p.AdvanceLocation[pc]
		s.resetZone(leftInput)
		return viaForce, false
	}
	s.TokenNumInZone++
	return stay, false
}

// postCapture records generated tokens of an output zone and raises
// tool-ready when the zone is left.
func postCapture(p *Program, opts Options, s *LaneState, pc int32, claim Claim, how exit, escaped bool, step *LaneStep) {
	if claim.By == ClaimNone {
		if s.ToolMode < 0 {
			s.Capture = s.Capture[:0]
		}
		s.ToolMode = p.OutputCallback[pc]
		if opts.CaptureLimit <= 0 || len(s.Capture) < opts.CaptureLimit {
			s.Capture = append(s.Capture, claim.Token)
		}
	}
	if how == stay || escaped {
		s.ToolWriteIndex = int32(len(s.Capture))
		return
	}
	if s.ToolMode < 0 {
		s.Capture = s.Capture[:0]
	}
	switch how {
	case viaJump:
		s.Capture = trimSuffix(s.Capture, p.JumpPattern[pc])
	case viaAdvance:
		s.Capture = trimSuffix(s.Capture, p.AdvancePattern[pc])
	}
	s.ToolWriteIndex = int32(len(s.Capture))
	s.ToolMode = -1
	s.AwaitingFeedback = true
	step.ToolReady = p.OutputCallback[pc]
}

func pushWindow(buf []Token, t Token, window int) []Token {
	if window <= 0 {
		return buf[:0]
	}
	if len(buf) < window {
		return append(buf, t)
	}
	copy(buf, buf[len(buf)-window+1:])
	buf = buf[:window-1]
	return append(buf, t)
}

func hasSuffix(buf, pat []Token) bool {
	if len(pat) == 0 || len(pat) > len(buf) {
		return false
	}
	off := len(buf) - len(pat)
	for i, t := range pat {
		if buf[off+i] != t {
			return false
		}
	}
	return true
}

func trimSuffix(buf, pat []Token) []Token {
	if hasSuffix(buf, pat) {
		return buf[:len(buf)-len(pat)]
	}
	return buf
}
