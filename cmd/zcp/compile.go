package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smithblack-0/WorkflowForge/lowering"
	"github.com/smithblack-0/WorkflowForge/manifest"
	"github.com/smithblack-0/WorkflowForge/vm"
)

// CompileCmd compiles a manifest to a program file.
type CompileCmd struct {
	Manifest string `arg:"" optional:"" help:"Manifest path (default: nearest zcp.toml)"`
	Output   string `short:"o" help:"Program output path (default: <manifest>.zcpb)"`
	Literal  string `help:"Also write the literal graph (CBOR, conventionally .literal) to this path"`
	From     string `help:"Compile this literal graph instead of the manifest's flow"`
	Debug    bool   `help:"Keep zone provenance in the program"`
}

func (c *CompileCmd) Run() error {
	m, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}
	var b *manifest.Build
	if c.From != "" {
		b, err = compileLiteral(m, c.From, c.Debug)
	} else {
		b, err = m.Compile(c.Debug)
	}
	if err != nil {
		return err
	}

	data, err := b.Program().Serialize()
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = strings.TrimSuffix(m.Path, filepath.Ext(m.Path)) + ".zcpb"
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", out, err)
	}

	if c.Literal != "" {
		lit, err := lowering.EncodeLiteral(b.Result.Literal)
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.Literal, lit, 0644); err != nil {
			return fmt.Errorf("cannot write %s: %w", c.Literal, err)
		}
	}

	digest, err := b.Program().Digest()
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d zones, %d tokens, digest %.12s\n", out, b.Program().Len(), len(b.Program().TokenData), digest)
	return nil
}

// compileLiteral reads a literal graph written by `compile --literal` and
// compiles it with m.
func compileLiteral(m *manifest.Manifest, path string, debug bool) (*manifest.Build, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	lg, err := lowering.DecodeLiteral(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m.CompileLiteral(lg, debug)
}

// DisasmCmd disassembles a program file, or compiles and disassembles a
// manifest or a literal graph.
type DisasmCmd struct {
	Path     string `arg:"" help:"Program file (.zcpb), literal graph (.literal) or manifest (.toml)"`
	Manifest string `help:"Manifest whose tokenizer decodes prompt text (required for .literal; default: nearest zcp.toml)"`
	Zone     int32  `default:"-1" help:"Only show this zone"`
}

func (c *DisasmCmd) Run() error {
	var (
		prog   *vm.Program
		decode vm.TokenDecoder
		name   = filepath.Base(c.Path)
	)

	switch filepath.Ext(c.Path) {
	case ".toml":
		m, err := manifest.LoadFile(c.Path)
		if err != nil {
			return err
		}
		b, err := m.Compile(true)
		if err != nil {
			return err
		}
		prog, decode = b.Program(), b.Tokenizer.Decode
	case ".literal":
		m, err := loadManifest(c.Manifest)
		if err != nil {
			return err
		}
		b, err := compileLiteral(m, c.Path, true)
		if err != nil {
			return err
		}
		prog, decode = b.Program(), b.Tokenizer.Decode
	default:
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", c.Path, err)
		}
		if prog, err = vm.Deserialize(data); err != nil {
			return fmt.Errorf("%s: %w", c.Path, err)
		}
		if c.Manifest != "" {
			m, err := manifest.LoadFile(c.Manifest)
			if err != nil {
				return err
			}
			tok, err := m.Tokenizer()
			if err != nil {
				return err
			}
			decode = tok.Decode
		}
	}

	if c.Zone >= 0 {
		if int(c.Zone) >= prog.Len() {
			return fmt.Errorf("zone %d out of range (program has %d)", c.Zone, prog.Len())
		}
		fmt.Print(prog.DisassembleZone(c.Zone, decode))
		return nil
	}
	fmt.Print(prog.DisassembleWith(name, decode))
	return nil
}
