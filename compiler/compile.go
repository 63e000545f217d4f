package compiler

import (
	"errors"

	"github.com/tliron/commonlog"

	"github.com/smithblack-0/WorkflowForge/lowering"
	"github.com/smithblack-0/WorkflowForge/vm"
	"github.com/smithblack-0/WorkflowForge/zcp"
)

var log = commonlog.GetLogger("zcp.compiler")

// Options carries the program-wide tokens.
type Options struct {
	EscapeOpen  []vm.Token
	EscapeClose []vm.Token
	PadToken    vm.Token
	// Debug keeps per-zone provenance in the program.
	Debug bool
}

// Compiler flattens one execution-ready graph into a program.
type Compiler struct {
	graph  *lowering.ReadyGraph
	opts   Options
	order  []int // pc -> zone
	number []int // zone -> pc
	errors []error
}

// Compile numbers every zone reachable from the source by nominal-first
// depth-first preorder and flattens the graph into parallel arrays. Under
// this numbering a zone's nominal successor is usually pc+1, so straight
// runs of zones fall through.
//
// Every legality problem found is reported, joined into one error.
func Compile(rg *lowering.ReadyGraph, opts Options) (*vm.Program, error) {
	c := &Compiler{graph: rg, opts: opts}
	if err := c.check(); err != nil {
		return nil, err
	}
	c.numberZones()
	p := c.emit()
	if err := p.Validate(); err != nil {
		return nil, zcp.Wrap(zcp.ErrMalformedGraph, zcp.NoNode, zcp.Provenance{}, err, "emitted program")
	}
	log.Infof("compiled %d zones, %d prompt tokens, window %d", p.Len(), len(p.TokenData), p.PatternWindow)
	return p, nil
}

func (c *Compiler) errorf(kind error, zone int, format string, args ...any) {
	var prov zcp.Provenance
	if zone >= 0 && zone < len(c.graph.Zones) {
		prov = c.graph.Zones[zone].Provenance
	}
	c.errors = append(c.errors, zcp.Errorf(kind, zcp.NodeID(zone), prov, format, args...))
}

// check enforces what the automaton needs from the graph: the DCG-IO shape,
// a reachable trigger on every control edge, a way out of every zone, and a
// callback on every output zone.
func (c *Compiler) check() error {
	zs := c.graph.Zones
	arena := make([]zcp.Zone, len(zs))
	for i, z := range zs {
		arena[i] = zcp.Zone{Provenance: z.Provenance, Next: zcp.NodeID(z.Next), Jump: zcp.NodeID(z.Jump)}
	}
	source, _, err := zcp.Validate(arena)
	if err != nil {
		return err
	}
	if source != 0 {
		c.errorf(zcp.ErrMalformedGraph, int(source), "source is zone %d, want 0", source)
	}

	for i, z := range zs {
		if z.Jump >= 0 && len(z.JumpOn) == 0 {
			c.errorf(zcp.ErrMalformedGraph, i, "zone %d has a control edge but no jump trigger", i)
		}
		if len(z.Advance) == 0 && z.Timeout < 0 && !z.Input {
			c.errorf(zcp.ErrMalformedGraph, i, "zone %d has no advance trigger, timeout or input and can never advance", i)
		}
		if z.Output && z.ToolID < 0 {
			c.errorf(zcp.ErrMissingTool, i, "zone %d captures output but has no callback", i)
		}
		if len(c.graph.TagNames) > 0 && len(z.Tags) != len(c.graph.TagNames) {
			c.errorf(zcp.ErrMalformedGraph, i, "zone %d has %d tags, graph declares %d", i, len(z.Tags), len(c.graph.TagNames))
		}
	}
	return errors.Join(c.errors...)
}

func (c *Compiler) numberZones() {
	zs := c.graph.Zones
	c.number = make([]int, len(zs))
	for i := range c.number {
		c.number[i] = -1
	}
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.number[id] >= 0 {
			continue
		}
		c.number[id] = len(c.order)
		c.order = append(c.order, id)
		if j := zs[id].Jump; j >= 0 {
			stack = append(stack, j)
		}
		if n := zs[id].Next; n >= 0 {
			stack = append(stack, n)
		}
	}
}

func (c *Compiler) emit() *vm.Program {
	n := len(c.order)
	done := int32(n)
	p := &vm.Program{
		Version:         vm.ProgramVersion,
		JumpEnable:      make([]bool, n),
		JumpLocation:    make([]int32, n),
		AdvanceLocation: make([]int32, n),
		AdvancePattern:  make([][]vm.Token, n),
		JumpPattern:     make([][]vm.Token, n),
		Timeout:         make([]int32, n),
		Tags:            make([][]bool, n),
		InputFlag:       make([]bool, n),
		OutputFlag:      make([]bool, n),
		OutputCallback:  make([]int32, n),
		TokenStart:      make([]int32, n),
		TokenEnd:        make([]int32, n),
		EscapeOpen:      append([]vm.Token(nil), c.opts.EscapeOpen...),
		EscapeClose:     append([]vm.Token(nil), c.opts.EscapeClose...),
		PadToken:        c.opts.PadToken,
		TagNames:        append([]string(nil), c.graph.TagNames...),
	}
	if c.opts.Debug {
		p.Provenance = make([]zcp.Provenance, n)
	}
	loc := func(zone int) int32 {
		if zone < 0 {
			return done
		}
		return int32(c.number[zone])
	}

	for pc, id := range c.order {
		z := c.graph.Zones[id]
		p.AdvanceLocation[pc] = loc(z.Next)
		if z.Jump >= 0 {
			p.JumpEnable[pc] = true
			p.JumpLocation[pc] = loc(z.Jump)
			p.JumpPattern[pc] = append([]vm.Token(nil), z.JumpOn...)
		}
		p.AdvancePattern[pc] = append([]vm.Token(nil), z.Advance...)
		p.Timeout[pc] = int32(z.Timeout)
		if z.Timeout < 0 {
			p.Timeout[pc] = vm.NoTimeout
		}
		p.Tags[pc] = append([]bool(nil), z.Tags...)
		if len(p.Tags[pc]) != len(p.TagNames) {
			p.Tags[pc] = make([]bool, len(p.TagNames))
		}
		p.InputFlag[pc] = z.Input
		p.OutputFlag[pc] = z.Output
		p.OutputCallback[pc] = int32(z.ToolID)
		p.TokenStart[pc] = int32(len(p.TokenData))
		p.TokenData = append(p.TokenData, z.Content...)
		p.TokenEnd[pc] = int32(len(p.TokenData))
		if p.Provenance != nil {
			p.Provenance[pc] = z.Provenance
		}
	}
	p.PatternWindow = p.LongestPattern()
	return p
}
