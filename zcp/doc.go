// Package zcp holds the Zone Control Protocol graph: the zone types produced
// while a workflow is authored, the arena-backed control-flow graph, and the
// builder that constructs it.
//
// A graph is a DCG-IO graph. It has exactly one source and one sink, every
// node lies on some path between them, and cycles are permitted. Each zone
// has a nominal edge (the next zone) and, optionally, a control edge (the
// jump target). Forward references are expressed with pending-edge sets:
//
//	b, p := zcp.NewBuilder(zcp.Zone{})
//	_, p, _ = b.Extend(p, intro)
//	body, exit := b.Fork(p)
//	...
//	g, err := b.Finalize(exit)
//
// The only way to create a backward edge is Attach, which refuses targets
// that do not exist yet.
package zcp
