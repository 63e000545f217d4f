package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPromptFeederPrecedence(t *testing.T) {
	z := plain(-2)
	z.prompt = []Token{5, 6, 7}
	e := mustEngine(t, buildProgram([]testZone{z}), 1, Options{})

	want := []struct {
		tok   Token
		claim Claimant
	}{{5, ClaimPrompt}, {6, ClaimPrompt}, {7, ClaimPrompt}, {9, ClaimNone}}
	for i, w := range want {
		got := step1(t, e, gen)
		if got.Token != w.tok || got.Claimant != w.claim {
			t.Errorf("step %d: got %d/%v, want %d/%v", i+1, got.Token, got.Claimant, w.tok, w.claim)
		}
	}
	if e.Lane(0).PC != 0 {
		t.Errorf("zone left without trigger: pc=%d", e.Lane(0).PC)
	}
}

func TestTimeoutForcesOnThirdStep(t *testing.T) {
	z := plain(-2)
	z.timeout = 2
	e := mustEngine(t, buildProgram([]testZone{z}), 1, Options{})

	for i := 1; i <= 2; i++ {
		got := step1(t, e, gen)
		if got.Token != gen || got.Claimant != ClaimNone {
			t.Fatalf("step %d: got %d/%v, want passthrough", i, got.Token, got.Claimant)
		}
		if e.LaneDone(0) {
			t.Fatalf("step %d: advanced early", i)
		}
	}
	got := step1(t, e, gen)
	if got.Token != tokNext || got.Claimant != ClaimTimeout {
		t.Errorf("step 3: got %d/%v, want forced advance", got.Token, got.Claimant)
	}
	if !e.LaneDone(0) {
		t.Errorf("step 3 did not advance")
	}
}

func TestTimeoutCountsAfterPrompt(t *testing.T) {
	z := plain(-2)
	z.prompt = []Token{5, 6}
	z.timeout = 1
	z.advance = []Token{tokNext, tokJump}
	e := mustEngine(t, buildProgram([]testZone{z}), 1, Options{})

	var toks []Token
	for i := 0; i < 5; i++ {
		toks = append(toks, step1(t, e, gen).Token)
	}
	if diff := cmp.Diff([]Token{5, 6, gen, tokNext, tokJump}, toks); diff != "" {
		t.Errorf("tokens (-want +got):\n%s", diff)
	}
	if !e.LaneDone(0) {
		t.Errorf("multi-token forced advance did not complete")
	}
}

func TestEmptyAdvancePatternForcesImmediately(t *testing.T) {
	entry := plain(1)
	entry.advance = nil
	entry.timeout = 0
	e := mustEngine(t, buildProgram([]testZone{entry, plain(-2)}), 1, Options{})
	got := step1(t, e, gen)
	if got.Token != pad || got.Claimant != ClaimTimeout {
		t.Errorf("got %d/%v, want padded forced advance", got.Token, got.Claimant)
	}
	if e.Lane(0).PC != 1 {
		t.Errorf("pc = %d, want 1", e.Lane(0).PC)
	}
}

func TestEscapeSuppressesJump(t *testing.T) {
	z0 := plain(1)
	z0.jump, z0.jumpOn = 2, []Token{tokJump}
	e := mustEngine(t, buildProgram([]testZone{z0, plain(2), plain(-2)}), 1, Options{})

	type after struct{ pc, depth int32 }
	want := []after{{0, 1}, {0, 0}, {0, 0}, {2, 0}}
	for i, tok := range []Token{tokEsc, tokJump, tokEnd, tokJump} {
		step1(t, e, tok)
		s := e.Lane(0)
		if s.PC != want[i].pc || s.EscapeDepth != want[i].depth {
			t.Errorf("step %d: pc=%d depth=%d, want pc=%d depth=%d", i+1, s.PC, s.EscapeDepth, want[i].pc, want[i].depth)
		}
	}
}

func TestEscapePolicy(t *testing.T) {
	z := plain(-2)
	z.timeout = 1
	prog := buildProgram([]testZone{z})

	tests := []struct {
		policy    EscapePolicy
		doneAfter int
		depth     int32
	}{
		{EscapePatternsOnly, 2, 1},
		{EscapeAllTransitions, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			e := mustEngine(t, prog, 1, Options{Escape: tt.policy})
			step1(t, e, tokEsc)
			for i := 2; i <= tt.doneAfter; i++ {
				got := step1(t, e, gen)
				if got.Token != tokNext {
					t.Fatalf("step %d: got %d, want forced advance", i, got.Token)
				}
				if done := e.LaneDone(0); done != (i == tt.doneAfter) {
					t.Fatalf("step %d: done=%v", i, done)
				}
			}
			if d := e.Lane(0).EscapeDepth; d != tt.depth {
				t.Errorf("escape depth = %d, want %d", d, tt.depth)
			}
		})
	}
}

func TestForcedAdvanceEndingOnEscapeMarker(t *testing.T) {
	timed := func(advance ...Token) testZone {
		z := plain(-2)
		z.timeout = 0
		z.advance = advance
		return z
	}
	fed := func(advance ...Token) testZone {
		z := plain(-2)
		z.input = true
		z.advance = advance
		return z
	}
	type outcome struct {
		doneAfter int
		depth     int32
	}

	tests := []struct {
		name  string
		zone  testZone
		input []Token
		first []Token
		want  map[EscapePolicy]outcome
	}{
		{
			name: "timeout ends on escape close",
			zone: timed(gen, tokEnd),
			want: map[EscapePolicy]outcome{EscapePatternsOnly: {2, 0}, EscapeAllTransitions: {2, 0}},
		},
		{
			name: "timeout ends on escape open",
			zone: timed(gen, tokEsc),
			want: map[EscapePolicy]outcome{EscapePatternsOnly: {2, 0}, EscapeAllTransitions: {2, 0}},
		},
		{
			name:  "escaped timeout ends on escape close",
			zone:  func() testZone { z := timed(gen, tokEnd); z.timeout = 1; return z }(),
			first: []Token{tokEsc},
			want:  map[EscapePolicy]outcome{EscapePatternsOnly: {3, 1}, EscapeAllTransitions: {5, 0}},
		},
		{
			name: "input end ends on escape close",
			zone: fed(60, tokEnd),
			want: map[EscapePolicy]outcome{EscapePatternsOnly: {2, 0}, EscapeAllTransitions: {2, 0}},
		},
		{
			name:  "escaped input zone",
			zone:  fed(tokNext),
			input: []Token{tokEsc, 60},
			want:  map[EscapePolicy]outcome{EscapePatternsOnly: {3, 1}, EscapeAllTransitions: {4, 0}},
		},
	}
	for _, tt := range tests {
		for _, policy := range []EscapePolicy{EscapePatternsOnly, EscapeAllTransitions} {
			t.Run(tt.name+"/"+policy.String(), func(t *testing.T) {
				want := tt.want[policy]
				e := mustEngine(t, buildProgram([]testZone{tt.zone}), 2, Options{Escape: policy})
				for lane := 0; lane < 2; lane++ {
					if tt.input != nil {
						if err := e.SetFeedback(lane, tt.input); err != nil {
							t.Fatalf("set feedback: %v", err)
						}
					}
				}
				for i := 1; i <= want.doneAfter; i++ {
					tok := gen
					if i <= len(tt.first) {
						tok = tt.first[i-1]
					}
					if _, err := e.Step([]Token{tok, tok}); err != nil {
						t.Fatalf("step %d: %v", i, err)
					}
					if done := e.LaneDone(0); done != (i == want.doneAfter) {
						t.Fatalf("step %d: done=%v, lane %+v", i, done, e.Lane(0))
					}
				}
				out, err := e.Step([]Token{gen, gen})
				if err != nil {
					t.Fatalf("step after done: %v", err)
				}
				for lane := 0; lane < 2; lane++ {
					if out.Tokens[lane] != pad || out.Claimant[lane] != ClaimDone {
						t.Errorf("lane %d after done: %d/%v", lane, out.Tokens[lane], out.Claimant[lane])
					}
					if s := e.Lane(lane); s.EscapeDepth != want.depth || s.Forcing {
						t.Errorf("lane %d: depth=%d forcing=%v, want depth %d", lane, s.EscapeDepth, s.Forcing, want.depth)
					}
				}
			})
		}
	}
}

func TestForceRestartsOnStalePosition(t *testing.T) {
	z := plain(-2)
	z.timeout = 0
	z.advance = []Token{gen, tokNext}
	p := buildProgram([]testZone{z})

	s := NewLaneState()
	s.Forcing, s.ForcePos = true, 2
	c, ok := TimeoutFeeder(p, &s, gen)
	if !ok || c.Token != gen || c.Forced || s.ForcePos != 1 {
		t.Errorf("got %+v %v pos=%d, want restart at the first pattern token", c, ok, s.ForcePos)
	}
}

func TestEscapeCloseClampsAtZero(t *testing.T) {
	e := mustEngine(t, buildProgram([]testZone{plain(-2)}), 1, Options{})
	step1(t, e, tokEnd)
	step1(t, e, tokEnd)
	if d := e.Lane(0).EscapeDepth; d != 0 {
		t.Errorf("escape depth = %d", d)
	}
}

func TestNominalBackEdgeLoops(t *testing.T) {
	entry := plain(1)
	entry.advance, entry.timeout = nil, 0
	a := plain(2)
	a.jump, a.jumpOn = 4, []Token{tokJump}
	p := buildProgram([]testZone{entry, a, plain(3), plain(1), plain(-2)})
	e := mustEngine(t, p, 1, Options{})

	var visited []int32
	for i := 0; i < 10; i++ {
		visited = append(visited, e.Lane(0).PC)
		step1(t, e, tokNext)
		if e.LaneDone(0) {
			t.Fatalf("loop marked done at tick %d", i+1)
		}
	}
	want := []int32{0, 1, 2, 3, 1, 2, 3, 1, 2, 3}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Errorf("visit order (-want +got):\n%s", diff)
	}

	step1(t, e, tokJump)
	if e.Lane(0).PC != 4 {
		t.Errorf("jump did not leave the loop: pc=%d", e.Lane(0).PC)
	}
}

func toolProgram() *Program {
	entry := plain(1)
	entry.advance, entry.timeout = nil, 0
	out := plain(2)
	out.output, out.tool = true, 7
	in := plain(-2)
	in.input = true
	in.prompt = []Token{50}
	return buildProgram([]testZone{entry, out, in}, "tool")
}

func TestToolCaptureAndFeedback(t *testing.T) {
	e := mustEngine(t, toolProgram(), 1, Options{})

	step1(t, e, gen)
	for _, tok := range []Token{11, 12} {
		if got := step1(t, e, tok); got.ToolReady != -1 || got.Claimant != ClaimNone {
			t.Fatalf("capturing step: %+v", got)
		}
		if e.Lane(0).ToolMode != 7 {
			t.Fatalf("tool mode = %d", e.Lane(0).ToolMode)
		}
	}
	got := step1(t, e, tokNext)
	if got.ToolReady != 7 {
		t.Fatalf("tool-ready = %d, want 7", got.ToolReady)
	}
	if diff := cmp.Diff([]Token{11, 12}, e.Capture(0)); diff != "" {
		t.Errorf("capture (-want +got):\n%s", diff)
	}
	s := e.Lane(0)
	if s.ToolMode != -1 || !s.AwaitingFeedback || s.ToolWriteIndex != 2 {
		t.Errorf("after exit: mode=%d awaiting=%v write=%d", s.ToolMode, s.AwaitingFeedback, s.ToolWriteIndex)
	}

	if got := step1(t, e, gen); got.Token != 50 || got.Claimant != ClaimPrompt {
		t.Errorf("input zone prompt: %+v", got)
	}
	if got := step1(t, e, gen); got.Token != pad || got.Claimant != ClaimAwait {
		t.Errorf("awaiting: %+v", got)
	}

	if err := e.SetFeedback(0, []Token{60, 61}); err != nil {
		t.Fatalf("set feedback: %v", err)
	}
	var toks []Token
	for i := 0; i < 3; i++ {
		got := step1(t, e, gen)
		toks = append(toks, got.Token)
	}
	if diff := cmp.Diff([]Token{60, 61, tokNext}, toks); diff != "" {
		t.Errorf("feedback tokens (-want +got):\n%s", diff)
	}
	if !e.Done() {
		t.Errorf("engine not done after input zone")
	}
}

func TestCaptureLimitSaturates(t *testing.T) {
	e := mustEngine(t, toolProgram(), 1, Options{CaptureLimit: 1})
	for _, tok := range []Token{gen, 11, 12, 13} {
		step1(t, e, tok)
	}
	if diff := cmp.Diff([]Token{11}, e.Capture(0)); diff != "" {
		t.Errorf("capture (-want +got):\n%s", diff)
	}
}

func TestSetFeedbackRange(t *testing.T) {
	e := mustEngine(t, toolProgram(), 2, Options{})
	if err := e.SetFeedback(2, nil); err == nil {
		t.Errorf("expected lane range error")
	}
}

func TestDoneLanesPad(t *testing.T) {
	e := mustEngine(t, buildProgram([]testZone{plain(-2)}, "x", "y"), 1, Options{})
	step1(t, e, tokNext)
	for i := 0; i < 3; i++ {
		got := step1(t, e, gen)
		if got.Token != pad || got.Claimant != ClaimDone || got.ToolReady != -1 {
			t.Errorf("done lane emitted %+v", got)
		}
		if diff := cmp.Diff([]bool{false, false}, got.Tags); diff != "" {
			t.Errorf("done tags (-want +got):\n%s", diff)
		}
	}
}

func TestTagsArePreTransition(t *testing.T) {
	z0 := plain(1)
	z0.tags = []bool{true, false}
	z1 := plain(-2)
	z1.tags = []bool{false, true}
	e := mustEngine(t, buildProgram([]testZone{z0, z1}, "first", "second"), 1, Options{})
	got := step1(t, e, tokNext)
	if diff := cmp.Diff([]bool{true, false}, got.Tags); diff != "" {
		t.Errorf("tags on the advancing step (-want +got):\n%s", diff)
	}
}

func TestStepBatchMismatch(t *testing.T) {
	e := mustEngine(t, buildProgram([]testZone{plain(-2)}), 2, Options{})
	if _, err := e.Step([]Token{1}); err == nil {
		t.Errorf("expected batch size error")
	}
	if _, err := NewEngine(buildProgram([]testZone{plain(-2)}), 0, Options{}); err == nil {
		t.Errorf("expected batch size error from NewEngine")
	}
}

func TestBatchedMatchesSequential(t *testing.T) {
	entry := plain(1)
	entry.advance, entry.timeout = nil, 0
	a := plain(2)
	a.prompt = []Token{1, 2}
	a.jump, a.jumpOn = 3, []Token{tokJump}
	b := plain(1)
	b.timeout = 3
	out := plain(4)
	out.output, out.tool = true, 0
	in := plain(-2)
	in.input = true
	p := buildProgram([]testZone{entry, a, b, out, in})

	streams := [][]Token{
		{gen, gen, gen, tokNext, gen, gen, gen, gen, gen, tokJump, 20, 21, tokNext, gen, gen, gen},
		{gen, gen, gen, tokJump, 30, tokEsc, tokNext, tokNext, gen, gen, gen, gen, gen, gen, gen, gen},
		{tokEsc, tokJump, tokEnd, gen, tokJump, 40, tokNext, gen, gen, gen, gen, gen, gen, gen, gen, gen},
		{gen, gen, gen, gen, gen, gen, gen, gen, gen, gen, gen, gen, gen, gen, gen, gen},
	}
	opts := Options{CaptureLimit: 8}
	e := mustEngine(t, p, len(streams), opts)
	lanes := make([]LaneState, len(streams))
	for i := range lanes {
		lanes[i] = NewLaneState()
	}

	for tick := range streams[0] {
		in := make([]Token, len(streams))
		for i := range streams {
			in[i] = streams[i][tick]
		}
		out, err := e.Step(in)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		for i := range lanes {
			r := StepLane(p, opts, &lanes[i], in[i])
			if r.Token != out.Tokens[i] || r.Claimant != out.Claimant[i] || r.ToolReady != out.ToolReady[i] {
				t.Fatalf("tick %d lane %d: batched %d/%v/%d, sequential %d/%v/%d", tick, i,
					out.Tokens[i], out.Claimant[i], out.ToolReady[i], r.Token, r.Claimant, r.ToolReady)
			}
			if out.ToolReady[i] >= 0 {
				if err := e.SetFeedback(i, []Token{77}); err != nil {
					t.Fatalf("feedback: %v", err)
				}
				lanes[i].Input = []Token{77}
				lanes[i].InputFeedPointer = 0
				lanes[i].AwaitingFeedback = false
				lanes[i].Capture = lanes[i].Capture[:0]
				lanes[i].ToolWriteIndex = 0
			}
			if pc := e.Lane(i).PC; pc < 0 || pc > p.Done() {
				t.Fatalf("tick %d lane %d: pc %d outside [0,%d]", tick, i, pc, p.Done())
			}
			if diff := cmp.Diff(lanes[i].Clone(), e.Lane(i)); diff != "" {
				t.Fatalf("tick %d lane %d state (-sequential +batched):\n%s", tick, i, diff)
			}
		}
	}
}
