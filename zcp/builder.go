package zcp

import "fmt"

type pendingEdge struct {
	From  NodeID
	Color Color
}

// Pending is a set of edges waiting for a target. It owns no node; the
// edges are fixed once the set is attached, by Extend, Attach or Finalize.
type Pending struct {
	edges []pendingEdge
}

// Len returns the number of pending edges.
func (p Pending) Len() int { return len(p.edges) }

// Edges returns the pending edges as parallel source and color slices.
func (p Pending) Edges() ([]NodeID, []Color) {
	from := make([]NodeID, len(p.edges))
	colors := make([]Color, len(p.edges))
	for i, e := range p.edges {
		from[i], colors[i] = e.From, e.Color
	}
	return from, colors
}

func (p Pending) recolor(c Color) Pending {
	out := Pending{edges: make([]pendingEdge, len(p.edges))}
	for i, e := range p.edges {
		out.edges[i] = pendingEdge{From: e.From, Color: c}
	}
	return out
}

// Builder constructs a Graph incrementally. Node 0 is the entry zone and
// becomes the source.
type Builder struct {
	zones       []Zone
	jumpTrigger string
	finalized   bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithJumpTrigger sets the trigger stamped on any zone that gains a control
// edge without one of its own.
func WithJumpTrigger(trigger string) BuilderOption {
	return func(b *Builder) { b.jumpTrigger = trigger }
}

// NewBuilder materializes entry as node 0 and returns the pending set
// pointing past it.
func NewBuilder(entry Zone, opts ...BuilderOption) (*Builder, Pending) {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	id := b.add(entry)
	return b, Pending{edges: []pendingEdge{{From: id, Color: Nominal}}}
}

// Len returns the number of materialized zones.
func (b *Builder) Len() int { return len(b.zones) }

// Zone returns a copy of a materialized zone.
func (b *Builder) Zone(id NodeID) (Zone, bool) {
	if id < 0 || int(id) >= len(b.zones) {
		return Zone{}, false
	}
	return b.zones[id], true
}

func (b *Builder) add(z Zone) NodeID {
	z.Next, z.Jump = NoNode, NoNode
	b.zones = append(b.zones, z)
	return NodeID(len(b.zones) - 1)
}

// Extend materializes z, attaches every edge of p to it keeping each edge's
// color, and returns a nominal pending set from the new node.
func (b *Builder) Extend(p Pending, z Zone) (NodeID, Pending, error) {
	if b.finalized {
		return NoNode, Pending{}, ErrFinalized
	}
	if err := b.check(p); err != nil {
		return NoNode, Pending{}, err
	}
	id := b.add(z)
	b.link(p, id)
	return id, Pending{edges: []pendingEdge{{From: id, Color: Nominal}}}, nil
}

// Fork splits p into a nominal copy and a control copy.
func (b *Builder) Fork(p Pending) (nominal, control Pending) {
	return p.recolor(Nominal), p.recolor(Control)
}

// Merge unions pending sets. Duplicate edges collapse.
func (b *Builder) Merge(ps ...Pending) Pending {
	var out Pending
	seen := make(map[pendingEdge]bool)
	for _, p := range ps {
		for _, e := range p.edges {
			if !seen[e] {
				seen[e] = true
				out.edges = append(out.edges, e)
			}
		}
	}
	return out
}

// Attach connects p to an already materialized node. Targets that do not
// exist yet are forward jumps and are refused.
func (b *Builder) Attach(p Pending, target NodeID) error {
	if b.finalized {
		return ErrFinalized
	}
	if target < 0 || int(target) >= len(b.zones) {
		return &GraphError{Kind: ErrForwardJump, Node: target,
			Msg: fmt.Sprintf("node %d is not materialized (have %d)", target, len(b.zones))}
	}
	if err := b.check(p); err != nil {
		return err
	}
	b.link(p, target)
	return nil
}

// Finalize closes the graph on p and validates it. A single nominal edge
// from a zone with no other edges makes that zone the sink; anything else
// is attached to a new empty terminal zone.
func (b *Builder) Finalize(p Pending) (*Graph, error) {
	if b.finalized {
		return nil, ErrFinalized
	}
	if err := b.check(p); err != nil {
		return nil, err
	}
	if !b.closesOnItself(p) && p.Len() > 0 {
		id := b.add(Zone{Content: Literal("")})
		b.link(p, id)
	}
	g, err := NewGraph(b.zones)
	if err != nil {
		return nil, err
	}
	b.finalized = true
	return g, nil
}

func (b *Builder) closesOnItself(p Pending) bool {
	if len(p.edges) != 1 || p.edges[0].Color != Nominal {
		return false
	}
	z := &b.zones[p.edges[0].From]
	return z.Next == NoNode && z.Jump == NoNode
}

func (b *Builder) check(p Pending) error {
	for _, e := range p.edges {
		if e.From < 0 || int(e.From) >= len(b.zones) {
			return malformedf("pending edge from unknown node %d", e.From)
		}
		z := &b.zones[e.From]
		if z.Edge(e.Color) != NoNode {
			return Errorf(ErrEdgeConflict, e.From, z.Provenance,
				"%s edge of zone %d already targets %d", e.Color, e.From, z.Edge(e.Color))
		}
	}
	return nil
}

func (b *Builder) link(p Pending, target NodeID) {
	for _, e := range p.edges {
		z := &b.zones[e.From]
		if e.Color == Control {
			z.Jump = target
			if z.JumpTrigger == "" {
				z.JumpTrigger = b.jumpTrigger
			}
			continue
		}
		z.Next = target
	}
}

// Splice copies a finalized graph in after p and returns the pending set
// leaving the copy of its sink. The graph's source is an entry placeholder
// and is not copied; p is attached to its successor instead.
func (b *Builder) Splice(p Pending, g *Graph) (Pending, error) {
	if b.finalized {
		return Pending{}, ErrFinalized
	}
	if g.Source() == g.Sink() {
		return p, nil
	}
	if err := b.check(p); err != nil {
		return Pending{}, err
	}
	src := g.zones[g.Source()]
	if src.Jump != NoNode {
		return Pending{}, Errorf(ErrMalformedGraph, g.Source(), src.Provenance,
			"cannot splice a graph whose entry has a control edge")
	}

	ids := make([]NodeID, len(g.zones))
	for i, z := range g.zones {
		ids[i] = NoNode
		if NodeID(i) != g.Source() {
			ids[i] = b.add(z)
		}
	}
	for i, z := range g.zones {
		if ids[i] == NoNode {
			continue
		}
		nz := &b.zones[ids[i]]
		if z.Next != NoNode {
			nz.Next = ids[z.Next]
		}
		if z.Jump != NoNode {
			nz.Jump = ids[z.Jump]
		}
	}
	b.link(p, ids[src.Next])
	return Pending{edges: []pendingEdge{{From: ids[g.Sink()], Color: Nominal}}}, nil
}
