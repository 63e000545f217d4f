package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/smithblack-0/WorkflowForge/session"
	"github.com/smithblack-0/WorkflowForge/tools"
	"github.com/smithblack-0/WorkflowForge/vm"
)

// TraceCmd runs a manifest against a scripted model and prints every step.
type TraceCmd struct {
	Manifest string   `arg:"" optional:"" help:"Manifest path (default: nearest zcp.toml)"`
	Batch    int      `short:"b" default:"1" help:"Number of lanes"`
	Script   []string `short:"s" help:"Text the model emits, one per lane (repeatable); lanes without one emit padding"`
	MaxSteps int64    `default:"10000" help:"Abort after this many steps"`
	Lane     int      `default:"0" help:"Lane to print per step"`
	Quiet    bool     `short:"q" help:"Only print the result"`

	SuspendTo string `help:"On a failed or interrupted run, write the continuation (CBOR) to this path instead of failing"`
	Resume    string `help:"Resume the run whose continuation was written by --suspend-to"`
}

func (c *TraceCmd) Run() error {
	m, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}
	if c.Lane < 0 {
		return fmt.Errorf("lane %d out of range", c.Lane)
	}
	b, err := m.Compile(true)
	if err != nil {
		return err
	}
	prog := b.Program()

	streams := make([][]vm.Token, len(c.Script))
	for i, text := range c.Script {
		if streams[i], err = b.Tokenizer.Encode(text); err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
	}

	eng, err := c.engine(prog, b.Options)
	if err != nil {
		return err
	}
	batch := eng.Batch()
	if c.Lane >= batch {
		return fmt.Errorf("lane %d out of range for batch %d", c.Lane, batch)
	}
	x, err := vm.NewExtractor(prog, batch, b.Flow.Extracts())
	if err != nil {
		return err
	}
	r := &session.Runner{
		Engine:    eng,
		Model:     session.NewScript(prog.PadToken, streams...),
		Bridge:    &tools.Bridge{Table: b.Tools, Tokenizer: b.Tokenizer},
		Extractor: x,
		MaxSteps:  c.MaxSteps,
	}

	if !c.Quiet {
		fmt.Printf("run %s\n", eng.RunID())
		fmt.Println("step  zone  by       token")
		r.Trace = func(step int64, out *vm.StepOutput, statuses []tools.Status) {
			lane := c.Lane
			text, err := b.Tokenizer.Decode([]vm.Token{out.Tokens[lane]})
			if err != nil {
				text = "?"
			}
			line := fmt.Sprintf("%5d  %4s  %-7s  %-6d %q", step, zoneOf(eng, lane), out.Claimant[lane], out.Tokens[lane], text)
			if statuses != nil && out.ToolReady[lane] >= 0 {
				line += fmt.Sprintf("  tool %s: %s", b.Tools.Name(int(out.ToolReady[lane])), statuses[lane])
			}
			fmt.Println(line)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tr, runErr := r.Run(ctx)
	if runErr != nil && c.SuspendTo != "" && !eng.Done() {
		return c.suspend(eng)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("\ndone after %d steps\n", tr.Steps)
	for lane := range tr.Tokens {
		text, err := b.Tokenizer.Decode(tr.Tokens[lane])
		if err != nil {
			return err
		}
		fmt.Printf("lane %d: %q\n", lane, text)
	}
	for _, name := range sorted(tr.Extracted) {
		for lane, toks := range tr.Extracted[name] {
			text, err := b.Tokenizer.Decode(toks)
			if err != nil {
				return err
			}
			fmt.Printf("%s[%d]: %s\n", name, lane, strings.TrimSpace(text))
		}
	}
	return nil
}

// engine starts a fresh batch, or restores the one saved at c.Resume.
func (c *TraceCmd) engine(prog *vm.Program, opts vm.Options) (*vm.Engine, error) {
	if c.Resume == "" {
		return vm.NewEngine(prog, c.Batch, opts)
	}
	data, err := os.ReadFile(c.Resume)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", c.Resume, err)
	}
	store := session.NewStore()
	id, err := store.Import(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Resume, err)
	}
	eng, err := store.Resume(id, prog, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Resume, err)
	}
	if !c.Quiet {
		fmt.Printf("resumed run %s at step %d\n", id, eng.Steps())
	}
	return eng, nil
}

// suspend writes the engine's continuation to c.SuspendTo.
func (c *TraceCmd) suspend(eng *vm.Engine) error {
	store := session.NewStore()
	id, err := store.Suspend(eng)
	if err != nil {
		return err
	}
	data, _ := store.Export(id)
	if err := os.WriteFile(c.SuspendTo, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", c.SuspendTo, err)
	}
	fmt.Printf("suspended run %s at step %d: %d bytes written to %s\n", id, eng.Steps(), len(data), c.SuspendTo)
	return nil
}

// zoneOf reports where the lane is after the step.
func zoneOf(eng *vm.Engine, lane int) string {
	if eng.LaneDone(lane) {
		return "DONE"
	}
	return fmt.Sprintf("%04d", eng.Lane(lane).PC)
}
