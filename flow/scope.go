package flow

import (
	"fmt"

	"github.com/smithblack-0/WorkflowForge/lowering"
	"github.com/smithblack-0/WorkflowForge/zcp"
)

// Option adjusts a single scope operation.
type Option func(*call)

type call struct {
	resources zcp.Resources
}

// WithResources adds resources visible to this operation only. They shadow
// program resources of the same name.
func WithResources(rs zcp.Resources) Option {
	return func(c *call) {
		if c.resources == nil {
			c.resources = make(zcp.Resources)
		}
		for k, v := range rs {
			c.resources[k] = v
		}
	}
}

// Scope is a position in the graph under construction. Operations append
// to it; opening a conditional or loop holds the scope until the construct
// is closed.
type Scope struct {
	prog    *Program
	pending zcp.Pending
	held    bool
	closed  bool
}

func (s *Scope) usable() error {
	switch {
	case s.prog.err != nil:
		return s.prog.err
	case s.closed:
		return s.prog.fail(ErrScopeClosed)
	case s.held:
		return s.prog.fail(ErrScopeBusy)
	}
	return nil
}

func (s *Scope) resources(opts []Option) zcp.Resources {
	var c call
	for _, opt := range opts {
		opt(&c)
	}
	if len(c.resources) == 0 {
		return s.prog.cfg.Resources
	}
	for name := range c.resources {
		if _, ok := s.prog.cfg.Resources[name]; ok {
			log.Warningf("resource %q is shadowed for this operation", name)
		}
	}
	return s.prog.cfg.Resources.With(c.resources)
}

// extend binds and appends a sequence. edit, when set, adjusts the last
// template first. It returns the first node materialized.
func (s *Scope) extend(seq string, opts []Option, edit func(*zcp.Template)) (zcp.NodeID, error) {
	if err := s.usable(); err != nil {
		return zcp.NoNode, err
	}
	src, ok := s.prog.cfg.Sequences[seq]
	if !ok || len(src) == 0 {
		return zcp.NoNode, s.prog.fail(fmt.Errorf("%w: %q", ErrUnknownSequence, seq))
	}
	templates := append([]zcp.Template(nil), src...)
	if edit != nil {
		edit(&templates[len(templates)-1])
	}

	scope := s.resources(opts)
	first := zcp.NoNode
	p := s.pending
	for _, t := range templates {
		z, err := lowering.Bind(t, scope, s.prog.cfg.Tags)
		if err != nil {
			return zcp.NoNode, s.prog.fail(fmt.Errorf("sequence %q: %w", seq, err))
		}
		id, next, err := s.prog.b.Extend(p, z)
		if err != nil {
			return zcp.NoNode, s.prog.fail(fmt.Errorf("sequence %q: %w", seq, err))
		}
		if first == zcp.NoNode {
			first = id
		}
		p = next
	}
	s.pending = p
	return first, nil
}

// Run appends the zones of a sequence.
func (s *Scope) Run(seq string, opts ...Option) error {
	_, err := s.extend(seq, opts, nil)
	return err
}

// Capture appends a sequence whose last zone captures generated tokens and
// hands them to tool when the zone is left.
func (s *Scope) Capture(seq, tool string, opts ...Option) error {
	_, err := s.extend(seq, opts, func(t *zcp.Template) {
		t.Output = true
		t.Tool = tool
	})
	return err
}

// Feed appends a sequence whose last zone feeds tool results back to the
// model.
func (s *Scope) Feed(seq string, opts ...Option) error {
	_, err := s.extend(seq, opts, func(t *zcp.Template) {
		t.Input = true
	})
	return err
}

// Subroutine splices the graph of another program into this scope and
// adopts its extraction rules. The other program is built if needed.
func (s *Scope) Subroutine(sub *Program) error {
	if err := s.usable(); err != nil {
		return err
	}
	if sub == s.prog {
		return s.prog.fail(fmt.Errorf("subroutine: a program cannot call itself"))
	}
	if !s.prog.sameTags(sub) {
		return s.prog.fail(fmt.Errorf("subroutine: %w: tag sets differ", zcp.ErrUnknownTag))
	}
	g, err := sub.Build()
	if err != nil {
		return s.prog.fail(fmt.Errorf("subroutine: %w", err))
	}
	p, err := s.prog.b.Splice(s.pending, g)
	if err != nil {
		return s.prog.fail(fmt.Errorf("subroutine: %w", err))
	}
	s.pending = p
	for name, tags := range sub.extracts {
		if _, ok := s.prog.extracts[name]; ok {
			log.Warningf("subroutine overrides extract %q", name)
		}
		s.prog.extracts[name] = append([]string(nil), tags...)
	}
	return nil
}

// Cond is an open conditional. If continues on the nominal edge of the
// decision sequence, which is taken unless the model emits the jump
// trigger; Else continues on the control edge.
type Cond struct {
	If, Else *Scope
	parent   *Scope
}

// When appends a decision sequence and opens a conditional on its last
// zone.
func (s *Scope) When(seq string, opts ...Option) (*Cond, error) {
	if _, err := s.extend(seq, opts, nil); err != nil {
		return nil, err
	}
	nominal, control := s.prog.b.Fork(s.pending)
	s.held = true
	return &Cond{
		If:     &Scope{prog: s.prog, pending: nominal},
		Else:   &Scope{prog: s.prog, pending: control},
		parent: s,
	}, nil
}

// Close joins both branches and releases the parent scope.
func (c *Cond) Close() error {
	if err := c.If.usable(); err != nil {
		return err
	}
	if err := c.Else.usable(); err != nil {
		return err
	}
	c.parent.pending = c.parent.prog.b.Merge(c.If.pending, c.Else.pending)
	c.If.closed, c.Else.closed = true, true
	c.parent.held = false
	return nil
}

// Loop is an open loop. Body runs on the nominal edge of the decision
// sequence and returns to its first zone; the jump trigger leaves the loop.
type Loop struct {
	Body   *Scope
	parent *Scope
	head   zcp.NodeID
	exit   zcp.Pending
}

// Loop appends a decision sequence and opens a loop on its last zone.
func (s *Scope) Loop(seq string, opts ...Option) (*Loop, error) {
	head, err := s.extend(seq, opts, nil)
	if err != nil {
		return nil, err
	}
	body, exit := s.prog.b.Fork(s.pending)
	s.held = true
	return &Loop{
		Body:   &Scope{prog: s.prog, pending: body},
		parent: s,
		head:   head,
		exit:   exit,
	}, nil
}

// Close sends the end of the body back to the decision sequence and
// continues the parent scope on the exit edge.
func (l *Loop) Close() error {
	if err := l.Body.usable(); err != nil {
		return err
	}
	if err := l.parent.prog.b.Attach(l.Body.pending, l.head); err != nil {
		return l.parent.prog.fail(fmt.Errorf("close loop: %w", err))
	}
	l.parent.pending = l.exit
	l.Body.closed = true
	l.parent.held = false
	return nil
}
