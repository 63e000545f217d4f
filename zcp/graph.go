package zcp

// Graph is a validated DCG-IO control-flow graph stored as an arena of
// zones addressed by NodeID. It is immutable once built.
type Graph struct {
	zones  []Zone
	source NodeID
	sink   NodeID
}

// NewGraph validates zones as a DCG-IO graph and wraps them. The slice is
// copied.
func NewGraph(zones []Zone) (*Graph, error) {
	source, sink, err := Validate(zones)
	if err != nil {
		return nil, err
	}
	return &Graph{zones: append([]Zone(nil), zones...), source: source, sink: sink}, nil
}

// Len returns the number of zones.
func (g *Graph) Len() int { return len(g.zones) }

// Zone returns a copy of the zone at id.
func (g *Graph) Zone(id NodeID) Zone { return g.zones[id] }

// Source returns the unique node without predecessors.
func (g *Graph) Source() NodeID { return g.source }

// Sink returns the unique node without successors.
func (g *Graph) Sink() NodeID { return g.sink }

// Successors returns the distinct successors of id, nominal first.
func (g *Graph) Successors(id NodeID) []NodeID {
	return successors(&g.zones[id])
}

// Predecessors returns, for every node, the nodes with an edge into it.
func (g *Graph) Predecessors() [][]NodeID {
	return predecessors(g.zones)
}

func successors(z *Zone) []NodeID {
	var out []NodeID
	if z.Next != NoNode {
		out = append(out, z.Next)
	}
	if z.Jump != NoNode && z.Jump != z.Next {
		out = append(out, z.Jump)
	}
	return out
}

func predecessors(zones []Zone) [][]NodeID {
	preds := make([][]NodeID, len(zones))
	for i := range zones {
		for _, s := range successors(&zones[i]) {
			preds[s] = append(preds[s], NodeID(i))
		}
	}
	return preds
}
