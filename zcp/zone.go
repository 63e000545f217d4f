package zcp

import "fmt"

// NodeID indexes a zone in a Graph's arena.
type NodeID int

// NoNode marks an unset edge.
const NoNode NodeID = -1

// Provenance records where a zone was authored. Diagnostics only.
type Provenance struct {
	Sequence string `toml:"sequence" cbor:"1,keyasint"`
	Block    int    `toml:"block" cbor:"2,keyasint"`
	Zone     int    `toml:"zone" cbor:"3,keyasint"`
}

func (p Provenance) String() string {
	if p.Sequence == "" {
		return ""
	}
	return fmt.Sprintf("%s[%d.%d]", p.Sequence, p.Block, p.Zone)
}

// Color distinguishes sequential flow from jump flow.
type Color uint8

const (
	Nominal Color = iota
	Control
)

func (c Color) String() string {
	switch c {
	case Nominal:
		return "nominal"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("Color(%d)", c)
	}
}

// ResourceSpec names the resource a placeholder draws from and the
// arguments it is called with.
type ResourceSpec struct {
	Name string
	Args map[string]any
}

// Template is a raw zone as produced by the prompt parser, before any
// connectivity or resource binding.
type Template struct {
	Provenance     Provenance
	Text           string
	Placeholders   map[string]ResourceSpec
	AdvanceTrigger string
	Tags           []string
	Timeout        int
	Input          bool
	Output         bool
	Tool           string
}

// Zone is a flow-resolved node: connectivity is attached and the content is
// bound to a resolver.
type Zone struct {
	Provenance     Provenance
	Next           NodeID
	Jump           NodeID
	AdvanceTrigger string
	JumpTrigger    string
	Tags           []bool
	Timeout        int
	Input          bool
	Output         bool
	Tool           string
	Content        Resolver
}

// HasJump reports whether the zone has a control edge.
func (z *Zone) HasJump() bool { return z.Jump != NoNode }

// Edge returns the successor along the given color.
func (z *Zone) Edge(c Color) NodeID {
	if c == Control {
		return z.Jump
	}
	return z.Next
}
