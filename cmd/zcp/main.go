// Command zcp compiles zone control workflows and runs them against a
// scripted model.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/tliron/commonlog"

	"github.com/smithblack-0/WorkflowForge/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var version = "dev"

// CLI defines the command-line interface.
type CLI struct {
	Verbose int `short:"v" type:"counter" help:"Log verbosity (-v, -vv)"`

	Validate ValidateCmd `cmd:"" help:"Check a manifest without compiling it"`
	Compile  CompileCmd  `cmd:"" help:"Compile a manifest to a program file"`
	Disasm   DisasmCmd   `cmd:"" help:"Disassemble a program file or manifest"`
	Inspect  InspectCmd  `cmd:"" help:"Show the structure of a manifest"`
	Trace    TraceCmd    `cmd:"" help:"Run a manifest against a scripted model"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("zcp", version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("zcp"),
		kong.Description("Zone control protocol compiler and tracer."),
		kong.UsageOnError(),
	)
	commonlog.Configure(cli.Verbose, nil)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest reads the manifest at path, or finds one upward from the
// working directory when path is empty.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no %s found", manifest.FileName)
	}
	return m, nil
}

// ValidateCmd checks a manifest.
type ValidateCmd struct {
	Manifest string `arg:"" optional:"" help:"Manifest path (default: nearest zcp.toml)"`
}

func (c *ValidateCmd) Run() error {
	m, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d sequences, %d flow steps)\n", m.Path, len(m.Sequences), len(m.Flow))
	return nil
}
