package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/smithblack-0/WorkflowForge/vm"
	"github.com/smithblack-0/WorkflowForge/zcp"
)

const loopManifest = `
[project]
name = "critic"
version = "0.1.0"

[config]
valid_tags = ["answer", "thought"]
default_timeout = 40
capture_limit = 128
escape_policy = "all"

[resources.principle]
type = "list"
items = ["be brief", "be kind", "be right"]
seed = 7

[resources.persona]
type = "static"
value = "a careful critic"

[[sequences.setup]]
text = "You are {persona}."

[[sequences.setup]]
text = "Follow: {rule}"
tags = ["thought"]
timeout = -1
[sequences.setup.placeholders.rule]
resource = "principle"
args = { num_samples = 2 }

[[sequences.again]]
text = "Revise again?"
advance = "[Done]"

[[sequences.work]]
text = "Revise."
tags = ["answer"]

[[sequences.ask]]
text = "Satisfied?"

[[sequences.yes]]
text = "Good."

[[sequences.no]]
text = "Too bad."

[[flow]]
op = "run"
sequence = "setup"

[[flow]]
op = "loop"
sequence = "again"
  [[flow.body]]
  op = "run"
  sequence = "work"

[[flow]]
op = "when"
sequence = "ask"
  [[flow.body]]
  op = "run"
  sequence = "yes"
  [[flow.else]]
  op = "run"
  sequence = "no"

[[extract]]
name = "answer"
tags = ["answer"]
`

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, loopManifest)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "critic" {
		t.Errorf("project name = %q, want critic", m.Project.Name)
	}
	if m.Config.Timeout() != 40 {
		t.Errorf("default timeout = %d, want 40", m.Config.Timeout())
	}
	if m.Config.EscapePolicy != "all" {
		t.Errorf("escape policy = %q, want all", m.Config.EscapePolicy)
	}
	if len(m.Sequences["setup"]) != 2 {
		t.Fatalf("setup zones = %d, want 2", len(m.Sequences["setup"]))
	}
	rule := m.Sequences["setup"][1].Placeholders["rule"]
	if rule.Resource != "principle" {
		t.Errorf("rule resource = %q, want principle", rule.Resource)
	}
	if len(m.Flow) != 3 || len(m.Flow[2].Body) != 1 || len(m.Flow[2].Else) != 1 {
		t.Errorf("flow shape wrong: %+v", m.Flow)
	}
	if m.Dir() != dir {
		if abs, _ := filepath.Abs(dir); m.Dir() != abs {
			t.Errorf("dir = %q, want %q", m.Dir(), dir)
		}
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[[sequences.only]]
text = "hi"

[[flow]]
op = "run"
sequence = "only"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Config{
		ZoneToken:      "[Next Zone]",
		JumpToken:      "[Jump]",
		EscapeOpen:     "[Escape]",
		EscapeClose:    "[EndEscape]",
		PadToken:       "[Pad]",
		DefaultTimeout: ptr(DefaultZoneTimeout),
		EscapePolicy:   "patterns",
		Tokenizer:      "vocab",
	}
	if diff := cmp.Diff(want, m.Config); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
}

func ptr(n int) *int { return &n }

func TestDefaultTimeoutZeroAndNone(t *testing.T) {
	const body = `
[[sequences.only]]
text = "hi"

[[flow]]
op = "run"
sequence = "only"
`
	tests := []struct {
		config string
		want   int
	}{
		{"", DefaultZoneTimeout},
		{"[config]\ndefault_timeout = 0\n", 0},
		{"[config]\ndefault_timeout = -1\n", -1},
	}
	for _, tt := range tests {
		m, err := Parse([]byte(tt.config + body))
		if err != nil {
			t.Fatalf("parse %q: %v", tt.config, err)
		}
		if got := m.Config.Timeout(); got != tt.want {
			t.Errorf("%q: default timeout = %d, want %d", tt.config, got, tt.want)
		}
		if got := m.Templates()["only"][0].Timeout; got != tt.want {
			t.Errorf("%q: zone timeout = %d, want %d", tt.config, got, tt.want)
		}
	}

	_, err := Parse([]byte("[config]\ndefault_timeout = -2\n" + body))
	if err == nil || !strings.Contains(err.Error(), "default_timeout must be -1 or more") {
		t.Errorf("expected default_timeout error, got %v", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, loopManifest)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "critic" {
		t.Errorf("project name = %q, want critic", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no zcp.toml exists")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("missing file: got %v", err)
	}

	dir := t.TempDir()
	writeManifest(t, dir, "[config\n")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "parse error in") {
		t.Errorf("bad toml: got %v", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(loopManifest + "\n[config2]\nx = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "config2") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	src := `
[config]
valid_tags = ["a"]
jump_token = "[Next Zone]"
escape_policy = "sometimes"

[resources.r]
type = "list"

[[sequences.s]]
text = "{x}"
tags = ["b"]
output = true
[sequences.s.placeholders.x]
resource = "missing"

[[flow]]
op = "dance"
sequence = "s"

[[flow]]
op = "capture"
sequence = "nowhere"
tool = "ghost"

[[extract]]
name = "out"
tags = ["c"]
`
	_, err := Parse([]byte(src))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		`jump_token and zone_token are both "[Next Zone]"`,
		`unknown escape policy "sometimes"`,
		`resource "r": list needs items`,
		`unknown tag "b"`,
		`undefined resource "missing"`,
		`output zone needs a tool`,
		`flow[0]: unknown op "dance"`,
		`flow[1]: undefined sequence "nowhere"`,
		`capture needs a defined tool, got "ghost"`,
		`extract "out": unknown tag "c"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in:\n%v", want, err)
		}
	}
}

func TestTemplates(t *testing.T) {
	m, err := Parse([]byte(loopManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ts := m.Templates()

	setup := ts["setup"]
	if setup[0].AdvanceTrigger != "[Next Zone]" || setup[0].Timeout != 40 {
		t.Errorf("setup[0] trigger %q timeout %d", setup[0].AdvanceTrigger, setup[0].Timeout)
	}
	if setup[1].Timeout != -1 {
		t.Errorf("setup[1] timeout = %d, want -1", setup[1].Timeout)
	}
	want := zcp.ResourceSpec{Name: "principle", Args: map[string]any{"num_samples": int64(2)}}
	if diff := cmp.Diff(want, setup[1].Placeholders["rule"]); diff != "" {
		t.Errorf("rule spec (-want +got):\n%s", diff)
	}
	if ts["again"][0].AdvanceTrigger != "[Done]" {
		t.Errorf("again trigger = %q", ts["again"][0].AdvanceTrigger)
	}
	if setup[1].Provenance.Sequence != "setup" || setup[1].Provenance.Block != 1 {
		t.Errorf("provenance = %+v", setup[1].Provenance)
	}
}

func TestCompile(t *testing.T) {
	m, err := Parse([]byte(loopManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := m.Compile(true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	prog := b.Program()

	// entry, setup x2, again, work, ask, yes, no, join
	if prog.Len() != 9 {
		t.Fatalf("program has %d zones, want 9", prog.Len())
	}
	jumps := 0
	for _, on := range prog.JumpEnable {
		if on {
			jumps++
		}
	}
	if jumps != 2 {
		t.Errorf("%d zones can jump, want 2", jumps)
	}
	if diff := cmp.Diff([]string{"answer", "thought"}, prog.TagNames); diff != "" {
		t.Errorf("tag names (-want +got):\n%s", diff)
	}
	if len(prog.Provenance) != prog.Len() {
		t.Errorf("debug build carries %d provenance entries", len(prog.Provenance))
	}

	var rule string
	for _, z := range b.Result.Literal.Zones {
		if strings.HasPrefix(z.Text, "Follow: ") {
			rule = strings.TrimPrefix(z.Text, "Follow: ")
		}
	}
	if n := len(strings.Split(rule, "\n")); n != 2 {
		t.Errorf("rule sampled %d principles, want 2: %q", n, rule)
	}

	if b.Options.Escape != vm.EscapeAllTransitions || b.Options.CaptureLimit != 128 {
		t.Errorf("engine options = %+v", b.Options)
	}
	if _, ok := b.Flow.Extracts()["answer"]; !ok {
		t.Error("extract rule missing from flow program")
	}
	if !b.Tools.Frozen() {
		t.Error("tool table still accepts registrations after compile")
	}
}

func TestCompileUnknownTool(t *testing.T) {
	m, err := Parse([]byte(loopManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// validation is bypassed to reach the lowering check
	m.Sequences["work"][0].Output = true
	m.Sequences["work"][0].Tool = "ghost"
	_, err = m.Compile(false)
	if !errors.Is(err, zcp.ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}
