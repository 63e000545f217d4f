package lowering

import (
	"github.com/smithblack-0/WorkflowForge/tokenizer"
	"github.com/smithblack-0/WorkflowForge/zcp"
)

// ToolResolver maps tool names to callback ids.
type ToolResolver interface {
	Lookup(name string) (int, bool)
}

// ReadyZone is a tokenized zone with its tool resolved. ToolID is -1 when
// the zone has no tool.
type ReadyZone struct {
	Provenance zcp.Provenance
	Next       int
	Jump       int
	Advance    []tokenizer.Token
	JumpOn     []tokenizer.Token
	Tags       []bool
	Timeout    int
	Input      bool
	Output     bool
	ToolID     int
	Content    []tokenizer.Token
}

// ReadyGraph is a LiteralGraph after tokenization. Numbering is unchanged.
type ReadyGraph struct {
	Zones    []ReadyZone
	Sink     int
	TagNames []string
}

// Prepare tokenizes every zone's content and triggers and resolves tool
// names. An output zone must name a tool.
func Prepare(lg *LiteralGraph, tok tokenizer.Tokenizer, tools ToolResolver) (*ReadyGraph, error) {
	rg := &ReadyGraph{
		Zones:    make([]ReadyZone, len(lg.Zones)),
		Sink:     lg.Sink,
		TagNames: append([]string(nil), lg.TagNames...),
	}
	for i, z := range lg.Zones {
		id := zcp.NodeID(i)
		content, err := encode(tok, id, z, "content", z.Text)
		if err != nil {
			return nil, err
		}
		advance, err := encode(tok, id, z, "advance trigger", z.AdvanceTrigger)
		if err != nil {
			return nil, err
		}
		var jump []tokenizer.Token
		if z.Jump >= 0 {
			if jump, err = encode(tok, id, z, "jump trigger", z.JumpTrigger); err != nil {
				return nil, err
			}
		}

		toolID := -1
		switch {
		case z.Tool != "":
			if tools == nil {
				return nil, zcp.Errorf(zcp.ErrUnknownTool, id, z.Provenance, "tool %q with no tool table", z.Tool)
			}
			n, ok := tools.Lookup(z.Tool)
			if !ok {
				return nil, zcp.Errorf(zcp.ErrUnknownTool, id, z.Provenance, "tool %q is not registered", z.Tool)
			}
			toolID = n
		case z.Output:
			return nil, zcp.Errorf(zcp.ErrMissingTool, id, z.Provenance, "zone %d captures output but names no tool", i)
		}

		rg.Zones[i] = ReadyZone{
			Provenance: z.Provenance,
			Next:       z.Next,
			Jump:       z.Jump,
			Advance:    advance,
			JumpOn:     jump,
			Tags:       z.Tags,
			Timeout:    z.Timeout,
			Input:      z.Input,
			Output:     z.Output,
			ToolID:     toolID,
			Content:    content,
		}
	}
	log.Debugf("prepared %d zones", len(rg.Zones))
	return rg, nil
}

func encode(tok tokenizer.Tokenizer, id zcp.NodeID, z LiteralZone, what, text string) ([]tokenizer.Token, error) {
	if text == "" {
		return nil, nil
	}
	out, err := tok.Encode(text)
	if err != nil {
		return nil, zcp.Wrap(zcp.ErrTokenize, id, z.Provenance, err, "encode %s of zone %d", what, id)
	}
	return out, nil
}
