package manifest

import (
	"fmt"

	"github.com/smithblack-0/WorkflowForge/compiler"
	"github.com/smithblack-0/WorkflowForge/flow"
	"github.com/smithblack-0/WorkflowForge/lowering"
	"github.com/smithblack-0/WorkflowForge/tokenizer"
	"github.com/smithblack-0/WorkflowForge/tools"
	"github.com/smithblack-0/WorkflowForge/vm"
	"github.com/smithblack-0/WorkflowForge/zcp"
)

// Build is everything a manifest compiles into.
type Build struct {
	Flow      *flow.Program
	Result    *compiler.Result
	Tokenizer tokenizer.Tokenizer
	Tools     *tools.Table
	Options   vm.Options
}

// Program returns the compiled program.
func (b *Build) Program() *vm.Program { return b.Result.Program }

// Compile runs the whole pipeline: flow construction, lowering and
// instruction compilation.
func (m *Manifest) Compile(debug bool) (*Build, error) {
	b, err := m.runtime()
	if err != nil {
		return nil, err
	}
	prog, err := m.Program()
	if err != nil {
		return nil, err
	}
	g, err := prog.Build()
	if err != nil {
		return nil, err
	}
	pl := m.Pipeline(b.Tokenizer, b.Tools, prog.Tags())
	pl.Debug = debug
	if b.Result, err = pl.Run(g); err != nil {
		return nil, err
	}
	b.Flow = prog
	b.Tools.Freeze()
	return b, nil
}

// CompileLiteral compiles a literal graph, such as one written by
// `zcp compile --literal`, with the manifest's tokenizer, tools and engine
// options. The result has no flow program.
func (m *Manifest) CompileLiteral(lg *lowering.LiteralGraph, debug bool) (*Build, error) {
	b, err := m.runtime()
	if err != nil {
		return nil, err
	}
	pl := m.Pipeline(b.Tokenizer, b.Tools, nil)
	pl.Debug = debug
	if b.Result, err = pl.RunLiteral(lg); err != nil {
		return nil, err
	}
	b.Tools.Freeze()
	return b, nil
}

// runtime builds the parts of a Build that do not depend on the graph.
func (m *Manifest) runtime() (*Build, error) {
	tok, err := m.Tokenizer()
	if err != nil {
		return nil, err
	}
	table, err := m.ToolTable()
	if err != nil {
		return nil, err
	}
	opts, err := m.EngineOptions()
	if err != nil {
		return nil, err
	}
	return &Build{Tokenizer: tok, Tools: table, Options: opts}, nil
}

// Pipeline returns a lowering pipeline configured from the manifest.
func (m *Manifest) Pipeline(tok tokenizer.Tokenizer, resolver lowering.ToolResolver, tags *zcp.TagSet) *compiler.Pipeline {
	return &compiler.Pipeline{
		Tokenizer:   tok,
		Tools:       resolver,
		Tags:        tags,
		EscapeOpen:  m.Config.EscapeOpen,
		EscapeClose: m.Config.EscapeClose,
		Pad:         m.Config.PadToken,
	}
}

// SpecialTokens returns the control tokens plus any extra special tokens,
// without duplicates.
func (m *Manifest) SpecialTokens() []string {
	c := &m.Config
	out := []string{c.ZoneToken, c.JumpToken, c.EscapeOpen, c.EscapeClose, c.PadToken}
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range c.SpecialTokens {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Tokenizer builds the configured tokenizer. The vocab tokenizer registers
// every special token as a single piece.
func (m *Manifest) Tokenizer() (tokenizer.Tokenizer, error) {
	tok, err := tokenizer.New(m.Config.Tokenizer, m.SpecialTokens()...)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	return tok, nil
}

// TagSet returns the configured tags.
func (m *Manifest) TagSet() (*zcp.TagSet, error) {
	return zcp.NewTagSet(m.Config.ValidTags...)
}

// EngineOptions returns the execution options the manifest configures.
func (m *Manifest) EngineOptions() (vm.Options, error) {
	policy, err := vm.ParseEscapePolicy(m.Config.EscapePolicy)
	if err != nil {
		return vm.Options{}, err
	}
	return vm.Options{Escape: policy, CaptureLimit: m.Config.CaptureLimit}, nil
}

// ToolTable registers every declared tool, in name order.
func (m *Manifest) ToolTable() (*tools.Table, error) {
	table := tools.NewTable()
	for _, name := range sortedKeys(m.Tools) {
		t := m.Tools[name]
		fn, err := tools.Builtin(t.Builtin, t.Arg)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		if _, err := table.Register(name, fn); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// BuildResources instantiates the declared resources.
func (m *Manifest) BuildResources() (zcp.Resources, error) {
	out := make(zcp.Resources, len(m.Resources))
	for _, name := range sortedKeys(m.Resources) {
		r := m.Resources[name]
		switch r.Type {
		case "static":
			out[name] = zcp.StaticString(r.Value)
		case "list":
			s, err := zcp.NewListSampler(r.Items, r.Seed)
			if err != nil {
				return nil, fmt.Errorf("resource %q: %w", name, err)
			}
			out[name] = s
		case "buffer":
			b := zcp.NewLRUBuffer(r.Size, r.Seed)
			for _, item := range r.Items {
				b.Add(item)
			}
			out[name] = b
		default:
			return nil, fmt.Errorf("resource %q: unknown type %q", name, r.Type)
		}
	}
	return out, nil
}

// Templates converts the declared sequences into zone templates, filling
// in the default trigger and timeout.
func (m *Manifest) Templates() map[string][]zcp.Template {
	out := make(map[string][]zcp.Template, len(m.Sequences))
	for name, zones := range m.Sequences {
		ts := make([]zcp.Template, len(zones))
		for i, z := range zones {
			t := zcp.Template{
				Provenance:     zcp.Provenance{Sequence: name, Block: i},
				Text:           z.Text,
				AdvanceTrigger: z.Advance,
				Tags:           z.Tags,
				Timeout:        m.Config.Timeout(),
				Input:          z.Input,
				Output:         z.Output,
				Tool:           z.Tool,
			}
			if t.AdvanceTrigger == "" {
				t.AdvanceTrigger = m.Config.ZoneToken
			}
			if z.Timeout != nil {
				t.Timeout = *z.Timeout
			}
			if len(z.Placeholders) > 0 {
				t.Placeholders = make(map[string]zcp.ResourceSpec, len(z.Placeholders))
				for ph, p := range z.Placeholders {
					t.Placeholders[ph] = zcp.ResourceSpec{Name: p.Resource, Args: p.Args}
				}
			}
			ts[i] = t
		}
		out[name] = ts
	}
	return out
}

// Program builds the flow program described by the flow list.
func (m *Manifest) Program() (*flow.Program, error) {
	tags, err := m.TagSet()
	if err != nil {
		return nil, err
	}
	res, err := m.BuildResources()
	if err != nil {
		return nil, err
	}
	prog := flow.New(flow.Config{
		JumpTrigger: m.Config.JumpToken,
		Tags:        tags,
		Resources:   res,
		Sequences:   m.Templates(),
	})
	if err := runSteps(prog.Root(), m.Flow); err != nil {
		return nil, err
	}
	for _, x := range m.Extract {
		if err := prog.Extract(x.Name, x.Tags...); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

func runSteps(s *flow.Scope, steps []Step) error {
	for i, step := range steps {
		if err := runStep(s, step); err != nil {
			return fmt.Errorf("step %d (%s %s): %w", i, step.Op, step.Sequence, err)
		}
	}
	return nil
}

func runStep(s *flow.Scope, step Step) error {
	switch step.Op {
	case "run":
		return s.Run(step.Sequence)
	case "capture":
		return s.Capture(step.Sequence, step.Tool)
	case "feed":
		return s.Feed(step.Sequence)
	case "when":
		c, err := s.When(step.Sequence)
		if err != nil {
			return err
		}
		if err := runSteps(c.If, step.Body); err != nil {
			return err
		}
		if err := runSteps(c.Else, step.Else); err != nil {
			return err
		}
		return c.Close()
	case "loop":
		l, err := s.Loop(step.Sequence)
		if err != nil {
			return err
		}
		if err := runSteps(l.Body, step.Body); err != nil {
			return err
		}
		return l.Close()
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}
