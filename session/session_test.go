package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/smithblack-0/WorkflowForge/manifest"
	"github.com/smithblack-0/WorkflowForge/tools"
	"github.com/smithblack-0/WorkflowForge/vm"
)

const toolManifest = `
[config]
valid_tags = ["answer", "feedback"]
default_timeout = 3

[tools.search]
builtin = "static"
arg = "42"

[[sequences.ask]]
text = "Q"
tags = ["answer"]

[[sequences.call]]
text = "C"
timeout = 2

[[sequences.result]]
text = "R"
tags = ["feedback"]

[[flow]]
op = "run"
sequence = "ask"

[[flow]]
op = "capture"
sequence = "call"
tool = "search"

[[flow]]
op = "feed"
sequence = "result"

[[extract]]
name = "answer"
tags = ["answer"]

[[extract]]
name = "feedback"
tags = ["feedback"]
`

func compile(t *testing.T, src string) *manifest.Build {
	t.Helper()
	m, err := manifest.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := m.Compile(false)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return b
}

func runner(t *testing.T, b *manifest.Build, batch int) *Runner {
	t.Helper()
	eng, err := vm.NewEngine(b.Program(), batch, b.Options)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	x, err := vm.NewExtractor(b.Program(), batch, b.Flow.Extracts())
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return &Runner{
		Engine:    eng,
		Model:     NewScript(b.Program().PadToken),
		Bridge:    &tools.Bridge{Table: b.Tools, Tokenizer: b.Tokenizer},
		Extractor: x,
		MaxSteps:  100,
	}
}

func decode(t *testing.T, b *manifest.Build, toks []vm.Token) string {
	t.Helper()
	s, err := b.Tokenizer.Decode(toks)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s
}

func TestRunWithToolCall(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 1)

	var ready []int32
	r.Trace = func(_ int64, out *vm.StepOutput, statuses []tools.Status) {
		if out.ToolReady[0] >= 0 {
			ready = append(ready, out.ToolReady[0])
			if statuses[0] != tools.StatusOK {
				t.Errorf("tool status = %s", statuses[0])
			}
		}
	}

	tr, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// entry 1, ask 1+3+1, call 1+2+1, result 1+2+1
	if tr.Steps != 14 {
		t.Errorf("steps = %d, want 14", tr.Steps)
	}
	if len(ready) != 1 {
		t.Fatalf("tool-ready raised %d times, want 1", len(ready))
	}

	answer := decode(t, b, tr.Extracted["answer"][0])
	if answer != "Q[Pad][Pad][Pad][Next Zone]" {
		t.Errorf("answer = %q", answer)
	}
	feedback := decode(t, b, tr.Extracted["feedback"][0])
	if feedback != "R42[Next Zone]" {
		t.Errorf("feedback = %q", feedback)
	}
	if tr.RunID != r.Engine.RunID().String() {
		t.Errorf("transcript run id %q does not match engine", tr.RunID)
	}
}

func TestBatchedLanesAgree(t *testing.T) {
	b := compile(t, toolManifest)
	tr, err := runner(t, b, 3).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 1; i < 3; i++ {
		if diff := cmp.Diff(tr.Tokens[0], tr.Tokens[i]); diff != "" {
			t.Errorf("lane %d differs from lane 0 (-0 +%d):\n%s", i, i, diff)
		}
	}
}

func TestRunWithoutBridgeFeedsNothing(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 1)
	r.Bridge = nil
	tr, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := decode(t, b, tr.Extracted["feedback"][0]); got != "R[Next Zone]" {
		t.Errorf("feedback = %q", got)
	}
}

func TestStepLimit(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 1)
	r.MaxSteps = 3
	tr, err := r.Run(context.Background())
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	if tr.Steps != 3 || len(tr.Tokens[0]) != 3 {
		t.Errorf("steps = %d, tokens = %d, want 3", tr.Steps, len(tr.Tokens[0]))
	}
}

func TestCancelledRun(t *testing.T) {
	b := compile(t, toolManifest)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner(t, b, 1).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestModelError(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 1)
	r.Model = ModelFunc(func(context.Context, []vm.Token) ([]vm.Token, error) {
		return nil, errors.New("model offline")
	})
	_, err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "model offline") {
		t.Errorf("expected model error, got %v", err)
	}
}

func TestStoreSuspendResume(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 2)
	r.MaxSteps = 4
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("partial run: %v", err)
	}

	store := NewStore()
	id, err := store.Suspend(r.Engine)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if diff := cmp.Diff([]string{id}, store.IDs()); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	other := compile(t, strings.Replace(toolManifest, "default_timeout = 3", "default_timeout = 4", 1))
	if _, err := store.Resume(id, other.Program(), other.Options); err == nil {
		t.Fatal("resume against another program succeeded")
	}
	if len(store.IDs()) != 1 {
		t.Fatal("failed resume dropped the suspended run")
	}

	eng, err := store.Resume(id, b.Program(), b.Options)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if eng.RunID() != r.Engine.RunID() || eng.Steps() != 4 {
		t.Errorf("resumed run %s at step %d", eng.RunID(), eng.Steps())
	}
	for lane := 0; lane < 2; lane++ {
		if diff := cmp.Diff(r.Engine.Lane(lane), eng.Lane(lane), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("lane %d state (-want +got):\n%s", lane, diff)
		}
	}
	if len(store.IDs()) != 0 {
		t.Error("resumed run is still stored")
	}
	if _, err := store.Resume(id, b.Program(), b.Options); err == nil {
		t.Error("second resume succeeded")
	}
}

func TestStoreConcurrentResume(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 1)
	r.MaxSteps = 2
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("partial run: %v", err)
	}
	store := NewStore()
	id, err := store.Suspend(r.Engine)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}

	const workers = 8
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Resume(id, b.Program(), b.Options); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("%d resumes succeeded, want 1", ok)
	}
}

func TestStoreExportImport(t *testing.T) {
	b := compile(t, toolManifest)
	r := runner(t, b, 1)
	r.MaxSteps = 3
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("partial run: %v", err)
	}
	src := NewStore()
	id, err := src.Suspend(r.Engine)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	data, ok := src.Export(id)
	if !ok {
		t.Fatal("suspended run not exported")
	}
	if _, ok := src.Export("missing"); ok {
		t.Error("exported a run that was never suspended")
	}

	dst := NewStore()
	got, err := dst.Import(data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got != id {
		t.Errorf("imported run %s, want %s", got, id)
	}
	eng, err := dst.Resume(id, b.Program(), b.Options)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if eng.Steps() != 3 {
		t.Errorf("resumed at step %d, want 3", eng.Steps())
	}
	if _, err := dst.Import([]byte("not cbor")); err == nil {
		t.Error("expected import of garbage to fail")
	}
}
