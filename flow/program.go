// Package flow is the authoring surface for zone graphs. A Program holds
// named zone sequences and a root Scope; scopes append sequences and open
// conditional and loop constructs, which must be closed explicitly.
//
//	p := flow.New(cfg)
//	p.Run("setup")
//	loop, _ := p.Loop("again")
//	loop.Body.Run("work")
//	loop.Close()
//	g, err := p.Build()
package flow

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/smithblack-0/WorkflowForge/zcp"
)

var log = commonlog.GetLogger("zcp.flow")

var (
	ErrUnknownSequence = errors.New("unknown sequence")
	ErrScopeClosed     = errors.New("scope is closed")
	ErrScopeBusy       = errors.New("scope has an open construct")
	ErrDuplicate       = errors.New("duplicate name")
)

// Config is everything a program binds its zones against.
type Config struct {
	// JumpTrigger is stamped on every zone that gains a control edge.
	JumpTrigger string
	Tags        *zcp.TagSet
	Resources   zcp.Resources
	Sequences   map[string][]zcp.Template
}

// Program builds one zone graph. The first error any operation hits is
// kept and returned by every later operation and by Build.
type Program struct {
	cfg      Config
	b        *zcp.Builder
	root     *Scope
	extracts map[string][]string
	graph    *zcp.Graph
	err      error
}

// New starts a program whose graph begins with an empty entry zone.
func New(cfg Config) *Program {
	entry := zcp.Zone{Content: zcp.Literal("")}
	b, p := zcp.NewBuilder(entry, zcp.WithJumpTrigger(cfg.JumpTrigger))
	prog := &Program{cfg: cfg, b: b, extracts: make(map[string][]string)}
	prog.root = &Scope{prog: prog, pending: p}
	return prog
}

// Root returns the top-level scope.
func (p *Program) Root() *Scope { return p.root }

// Tags returns the tag set zones are bound against.
func (p *Program) Tags() *zcp.TagSet { return p.cfg.Tags }

// Err returns the first error recorded, if any.
func (p *Program) Err() error { return p.err }

func (p *Program) fail(err error) error {
	if p.err == nil {
		p.err = err
	}
	return err
}

// Run appends a sequence to the root scope.
func (p *Program) Run(seq string, opts ...Option) error { return p.root.Run(seq, opts...) }

// When opens a conditional on the root scope.
func (p *Program) When(seq string, opts ...Option) (*Cond, error) { return p.root.When(seq, opts...) }

// Loop opens a loop on the root scope.
func (p *Program) Loop(seq string, opts ...Option) (*Loop, error) { return p.root.Loop(seq, opts...) }

// Capture appends a capture sequence to the root scope.
func (p *Program) Capture(seq, tool string, opts ...Option) error {
	return p.root.Capture(seq, tool, opts...)
}

// Feed appends a feed sequence to the root scope.
func (p *Program) Feed(seq string, opts ...Option) error { return p.root.Feed(seq, opts...) }

// Subroutine splices another program into the root scope.
func (p *Program) Subroutine(sub *Program) error { return p.root.Subroutine(sub) }

// Extract declares a named extraction over the union of tags.
func (p *Program) Extract(name string, tags ...string) error {
	if p.err != nil {
		return p.err
	}
	if _, ok := p.extracts[name]; ok {
		return p.fail(fmt.Errorf("extract %q: %w", name, ErrDuplicate))
	}
	for _, t := range tags {
		if p.cfg.Tags == nil {
			return p.fail(fmt.Errorf("extract %q: %w: %q", name, zcp.ErrUnknownTag, t))
		}
		if _, ok := p.cfg.Tags.Index(t); !ok {
			return p.fail(fmt.Errorf("extract %q: %w: %q", name, zcp.ErrUnknownTag, t))
		}
	}
	p.extracts[name] = append([]string(nil), tags...)
	return nil
}

// Extracts returns a copy of the declared extraction rules.
func (p *Program) Extracts() map[string][]string {
	out := make(map[string][]string, len(p.extracts))
	for k, v := range p.extracts {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Sequences returns the names of the sequences the program can run, sorted.
func (p *Program) Sequences() []string {
	names := make([]string, 0, len(p.cfg.Sequences))
	for k := range p.cfg.Sequences {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Build finalizes the graph. It may be called more than once; later calls
// return the same graph.
func (p *Program) Build() (*zcp.Graph, error) {
	if p.graph != nil {
		return p.graph, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.root.held {
		return nil, p.fail(fmt.Errorf("build: %w", ErrScopeBusy))
	}
	g, err := p.b.Finalize(p.root.pending)
	if err != nil {
		return nil, p.fail(fmt.Errorf("build: %w", err))
	}
	p.root.closed = true
	p.graph = g
	log.Debugf("built graph with %d zones", g.Len())
	return g, nil
}

func (p *Program) sameTags(other *Program) bool {
	var a, b []string
	if p.cfg.Tags != nil {
		a = p.cfg.Tags.Names()
	}
	if other.cfg.Tags != nil {
		b = other.cfg.Tags.Names()
	}
	return slices.Equal(a, b)
}
