package compiler

import (
	"fmt"

	"github.com/smithblack-0/WorkflowForge/lowering"
	"github.com/smithblack-0/WorkflowForge/tokenizer"
	"github.com/smithblack-0/WorkflowForge/vm"
	"github.com/smithblack-0/WorkflowForge/zcp"
)

// Pipeline runs the lowering stages that follow graph construction:
// literalize, prepare, compile.
type Pipeline struct {
	Tokenizer tokenizer.Tokenizer
	Tools     lowering.ToolResolver
	Tags      *zcp.TagSet

	EscapeOpen  string
	EscapeClose string
	// Pad must encode to exactly one token.
	Pad   string
	Debug bool
}

// Result holds every artifact a pipeline run produced.
type Result struct {
	Literal *lowering.LiteralGraph
	Ready   *lowering.ReadyGraph
	Program *vm.Program
}

// Run lowers a finalized graph all the way to a program. The literal graph
// passes through its wire encoding before it is prepared, so whatever is
// compiled is exactly what could be written to disk.
func (pl *Pipeline) Run(g *zcp.Graph) (*Result, error) {
	lg, err := lowering.Literalize(g, pl.Tags)
	if err != nil {
		return nil, fmt.Errorf("literalize: %w", err)
	}
	data, err := lowering.EncodeLiteral(lg)
	if err != nil {
		return nil, fmt.Errorf("encode literal graph: %w", err)
	}
	if lg, err = lowering.DecodeLiteral(data); err != nil {
		return nil, fmt.Errorf("decode literal graph: %w", err)
	}
	return pl.RunLiteral(lg)
}

// RunLiteral lowers an already literal graph, such as one read from disk.
func (pl *Pipeline) RunLiteral(lg *lowering.LiteralGraph) (*Result, error) {
	if pl.Tokenizer == nil {
		return nil, fmt.Errorf("pipeline has no tokenizer")
	}
	opts, err := pl.options()
	if err != nil {
		return nil, err
	}
	rg, err := lowering.Prepare(lg, pl.Tokenizer, pl.Tools)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	prog, err := Compile(rg, opts)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	log.Debugf("pipeline: %d literal zones -> %d program zones", len(lg.Zones), prog.Len())
	return &Result{Literal: lg, Ready: rg, Program: prog}, nil
}

func (pl *Pipeline) options() (Options, error) {
	opts := Options{Debug: pl.Debug}
	var err error
	if pl.EscapeOpen != "" {
		if opts.EscapeOpen, err = pl.Tokenizer.Encode(pl.EscapeOpen); err != nil {
			return Options{}, zcp.Wrap(zcp.ErrTokenize, zcp.NoNode, zcp.Provenance{}, err, "escape open")
		}
	}
	if pl.EscapeClose != "" {
		if opts.EscapeClose, err = pl.Tokenizer.Encode(pl.EscapeClose); err != nil {
			return Options{}, zcp.Wrap(zcp.ErrTokenize, zcp.NoNode, zcp.Provenance{}, err, "escape close")
		}
	}
	if pl.Pad != "" {
		if opts.PadToken, err = tokenizer.Single(pl.Tokenizer, pl.Pad); err != nil {
			return Options{}, zcp.Wrap(zcp.ErrTokenize, zcp.NoNode, zcp.Provenance{}, err, "pad token")
		}
	}
	return opts, nil
}
