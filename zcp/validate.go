package zcp

import (
	"fmt"
	"strings"
)

// Validate checks the DCG-IO invariant over an arena of zones and returns
// the source and sink.
//
// It rejects:
//   - edges pointing outside the arena
//   - a control edge on a zone with no nominal edge
//   - zero or several sources, zero or several sinks
//   - nodes unreachable from the source, or unable to reach the sink
func Validate(zones []Zone) (source, sink NodeID, err error) {
	if len(zones) == 0 {
		return NoNode, NoNode, malformedf("empty graph")
	}
	for i := range zones {
		z := &zones[i]
		for _, e := range []NodeID{z.Next, z.Jump} {
			if e != NoNode && (e < 0 || int(e) >= len(zones)) {
				return NoNode, NoNode, Errorf(ErrMalformedGraph, NodeID(i), z.Provenance,
					"zone %d has an edge to %d outside the graph", i, e)
			}
		}
		if z.Jump != NoNode && z.Next == NoNode {
			return NoNode, NoNode, Errorf(ErrMalformedGraph, NodeID(i), z.Provenance,
				"zone %d has a control edge but no nominal edge", i)
		}
	}

	preds := predecessors(zones)
	var sources, sinks []NodeID
	for i := range zones {
		if len(preds[i]) == 0 {
			sources = append(sources, NodeID(i))
		}
		if zones[i].Next == NoNode {
			sinks = append(sinks, NodeID(i))
		}
	}
	if len(sources) != 1 {
		return NoNode, NoNode, malformedf("expected exactly one source, found %d %s", len(sources), idList(sources))
	}
	if len(sinks) != 1 {
		return NoNode, NoNode, malformedf("expected exactly one sink, found %d %s", len(sinks), idList(sinks))
	}
	source, sink = sources[0], sinks[0]

	fwd := reach(len(zones), source, func(id NodeID) []NodeID { return successors(&zones[id]) })
	for i, ok := range fwd {
		if !ok {
			return NoNode, NoNode, Errorf(ErrMalformedGraph, NodeID(i), zones[i].Provenance,
				"zone %d is unreachable from the source", i)
		}
	}
	back := reach(len(zones), sink, func(id NodeID) []NodeID { return preds[id] })
	for i, ok := range back {
		if !ok {
			return NoNode, NoNode, Errorf(ErrMalformedGraph, NodeID(i), zones[i].Provenance,
				"zone %d cannot reach the sink", i)
		}
	}
	return source, sink, nil
}

func reach(n int, start NodeID, next func(NodeID) []NodeID) []bool {
	seen := make([]bool, n)
	stack := []NodeID{start}
	seen[start] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range next(id) {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

func idList(ids []NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(int(id))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
