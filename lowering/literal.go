package lowering

import (
	"errors"

	"github.com/smithblack-0/WorkflowForge/zcp"
)

// LiteralZone is a zone whose content has been resolved to fixed text.
// Edges index LiteralGraph.Zones; -1 means none.
type LiteralZone struct {
	Provenance     zcp.Provenance `cbor:"1,keyasint"`
	Next           int            `cbor:"2,keyasint"`
	Jump           int            `cbor:"3,keyasint"`
	AdvanceTrigger string         `cbor:"4,keyasint"`
	JumpTrigger    string         `cbor:"5,keyasint"`
	Tags           []bool         `cbor:"6,keyasint"`
	Timeout        int            `cbor:"7,keyasint"`
	Input          bool           `cbor:"8,keyasint"`
	Output         bool           `cbor:"9,keyasint"`
	Tool           string         `cbor:"10,keyasint"`
	Text           string         `cbor:"11,keyasint"`
}

// LiteralGraph is the serializable form of a zone graph. Zones are numbered
// in depth-first discovery order from the source, nominal edges first, so
// the source is always zone 0.
type LiteralGraph struct {
	Zones    []LiteralZone `cbor:"1,keyasint"`
	Sink     int           `cbor:"2,keyasint"`
	TagNames []string      `cbor:"3,keyasint"`
}

// Literalize invokes every zone's resolver exactly once. A zone reached
// again through a back edge reuses its existing image and its successors
// are not revisited, so a zone inside a loop body is sampled once.
func Literalize(g *zcp.Graph, tags *zcp.TagSet) (*LiteralGraph, error) {
	images := make(map[zcp.NodeID]int, g.Len())
	var order []zcp.NodeID

	stack := []zcp.NodeID{g.Source()}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := images[id]; seen {
			continue
		}
		images[id] = len(order)
		order = append(order, id)

		z := g.Zone(id)
		if z.Jump != zcp.NoNode {
			stack = append(stack, z.Jump)
		}
		if z.Next != zcp.NoNode {
			stack = append(stack, z.Next)
		}
	}

	lg := &LiteralGraph{Zones: make([]LiteralZone, len(order)), Sink: images[g.Sink()]}
	if tags != nil {
		lg.TagNames = tags.Names()
	}
	for i, id := range order {
		z := g.Zone(id)
		text, err := z.Content.Resolve()
		if err != nil {
			kind := zcp.ErrResolve
			if errors.Is(err, zcp.ErrUnresolvedPlaceholder) {
				kind = zcp.ErrUnresolvedPlaceholder
			}
			return nil, zcp.Wrap(kind, id, z.Provenance, err, "resolve zone %d", id)
		}
		tagVec := z.Tags
		if tags != nil && len(tagVec) == 0 {
			tagVec = make([]bool, tags.Len())
		}
		lg.Zones[i] = LiteralZone{
			Provenance:     z.Provenance,
			Next:           image(images, z.Next),
			Jump:           image(images, z.Jump),
			AdvanceTrigger: z.AdvanceTrigger,
			JumpTrigger:    z.JumpTrigger,
			Tags:           tagVec,
			Timeout:        z.Timeout,
			Input:          z.Input,
			Output:         z.Output,
			Tool:           z.Tool,
			Text:           text,
		}
	}
	log.Debugf("literalized %d zones", len(lg.Zones))
	return lg, nil
}

func image(images map[zcp.NodeID]int, id zcp.NodeID) int {
	if id == zcp.NoNode {
		return -1
	}
	return images[id]
}

// Validate checks that the graph still satisfies the DCG-IO invariant with
// zone 0 as source. Decoded graphs are validated before use.
func (lg *LiteralGraph) Validate() error {
	zones := make([]zcp.Zone, len(lg.Zones))
	for i, z := range lg.Zones {
		if z.Next < -1 || z.Jump < -1 {
			return zcp.Errorf(zcp.ErrMalformedGraph, zcp.NodeID(i), z.Provenance,
				"zone %d has a negative edge", i)
		}
		zones[i] = zcp.Zone{Provenance: z.Provenance, Next: zcp.NodeID(z.Next), Jump: zcp.NodeID(z.Jump)}
	}
	source, sink, err := zcp.Validate(zones)
	if err != nil {
		return err
	}
	if source != 0 {
		return zcp.Errorf(zcp.ErrMalformedGraph, source, lg.Zones[source].Provenance,
			"source is zone %d, want 0", source)
	}
	if int(sink) != lg.Sink {
		return zcp.Errorf(zcp.ErrMalformedGraph, sink, lg.Zones[sink].Provenance,
			"sink is zone %d, header says %d", sink, lg.Sink)
	}
	for i, z := range lg.Zones {
		if len(lg.TagNames) > 0 && len(z.Tags) != len(lg.TagNames) {
			return zcp.Errorf(zcp.ErrMalformedGraph, zcp.NodeID(i), z.Provenance,
				"zone %d has %d tags, graph declares %d", i, len(z.Tags), len(lg.TagNames))
		}
	}
	return nil
}
