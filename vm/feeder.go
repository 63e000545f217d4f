package vm

// Claim is a feeder's replacement for the incoming token.
type Claim struct {
	Token Token
	By    Claimant
	// Forced is set when this token completes a forced advance pattern.
	Forced bool
}

// Feeder may claim a step for a lane that is not done. Feeders run in
// order and the first claim wins. A feeder only touches the lane's feed
// bookkeeping (forcing position, input pointer); everything else belongs
// to the transition stage.
type Feeder func(p *Program, s *LaneState, in Token) (Claim, bool)

// DefaultFeeders is the standard chain: timeout, prompt, input.
var DefaultFeeders = []Feeder{TimeoutFeeder, PromptFeeder, InputFeeder}

func promptLen(p *Program, pc int32) int32 {
	return p.TokenEnd[pc] - p.TokenStart[pc]
}

// force emits the next token of the advance pattern. An empty pattern
// completes at once with the padding token.
func force(p *Program, s *LaneState, by Claimant) Claim {
	pat := p.AdvancePattern[s.PC]
	if !s.Forcing || s.ForcePos < 0 || int(s.ForcePos) >= len(pat) {
		s.Forcing = true
		s.ForcePos = 0
	}
	if len(pat) == 0 {
		return Claim{Token: p.PadToken, By: by, Forced: true}
	}
	tok := pat[s.ForcePos]
	s.ForcePos++
	return Claim{Token: tok, By: by, Forced: int(s.ForcePos) >= len(pat)}
}

// TimeoutFeeder forces the advance pattern once the zone has generated
// Timeout tokens past its prompt, and keeps emitting it until complete.
// Input zones end on their own and are exempt.
func TimeoutFeeder(p *Program, s *LaneState, in Token) (Claim, bool) {
	pc := s.PC
	if s.Forcing && !p.InputFlag[pc] {
		return force(p, s, ClaimTimeout), true
	}
	limit := p.Timeout[pc]
	if limit < 0 || p.InputFlag[pc] {
		return Claim{}, false
	}
	if s.TokenNumInZone-promptLen(p, pc) < limit {
		return Claim{}, false
	}
	return force(p, s, ClaimTimeout), true
}

// PromptFeeder teacher-forces the zone's prompt tokens.
func PromptFeeder(p *Program, s *LaneState, in Token) (Claim, bool) {
	pos := p.TokenStart[s.PC] + s.TokenNumInZone
	if pos < p.TokenEnd[s.PC] {
		return Claim{Token: p.TokenData[pos], By: ClaimPrompt}, true
	}
	return Claim{}, false
}

// InputFeeder feeds the lane's input buffer in input zones once the prompt
// is exhausted, then forces the advance pattern. While tool feedback is
// pending it holds the lane with padding.
func InputFeeder(p *Program, s *LaneState, in Token) (Claim, bool) {
	if !p.InputFlag[s.PC] || s.TokenNumInZone < promptLen(p, s.PC) {
		return Claim{}, false
	}
	if s.Forcing {
		return force(p, s, ClaimInput), true
	}
	if s.AwaitingFeedback {
		return Claim{Token: p.PadToken, By: ClaimAwait}, true
	}
	if int(s.InputFeedPointer) < len(s.Input) {
		tok := s.Input[s.InputFeedPointer]
		s.InputFeedPointer++
		return Claim{Token: tok, By: ClaimInput}, true
	}
	return force(p, s, ClaimInput), true
}
