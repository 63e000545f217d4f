package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smithblack-0/WorkflowForge/manifest"
)

// InspectCmd shows the structure of a manifest.
type InspectCmd struct {
	Manifest string `arg:"" optional:"" help:"Manifest path (default: nearest zcp.toml)"`
}

func (c *InspectCmd) Run() error {
	m, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}

	name := m.Project.Name
	if name == "" {
		name = m.Path
	}
	fmt.Printf("Workflow: %s", name)
	if m.Project.Version != "" {
		fmt.Printf(" (%s)", m.Project.Version)
	}
	fmt.Println()

	cfg := m.Config
	fmt.Println("\nConfig:")
	fmt.Printf("  zone %q  jump %q  escape %q..%q  pad %q\n",
		cfg.ZoneToken, cfg.JumpToken, cfg.EscapeOpen, cfg.EscapeClose, cfg.PadToken)
	fmt.Printf("  tokenizer %s  timeout %d  capture limit %d  escape policy %s\n",
		cfg.Tokenizer, cfg.Timeout(), cfg.CaptureLimit, cfg.EscapePolicy)
	if len(cfg.ValidTags) > 0 {
		fmt.Printf("  tags: %s\n", strings.Join(cfg.ValidTags, ", "))
	}

	if len(m.Resources) > 0 {
		fmt.Println("\nResources:")
		for _, n := range sorted(m.Resources) {
			fmt.Printf("  %-16s %s\n", n, m.Resources[n].Type)
		}
	}
	if len(m.Tools) > 0 {
		fmt.Println("\nTools:")
		for _, n := range sorted(m.Tools) {
			fmt.Printf("  %-16s %s\n", n, m.Tools[n].Builtin)
		}
	}

	fmt.Println("\nSequences:")
	for _, n := range sorted(m.Sequences) {
		zones := m.Sequences[n]
		fmt.Printf("  %s (%d zones)\n", n, len(zones))
		for i, z := range zones {
			var marks []string
			if len(z.Tags) > 0 {
				marks = append(marks, "tags="+strings.Join(z.Tags, ","))
			}
			if z.Input {
				marks = append(marks, "input")
			}
			if z.Output {
				marks = append(marks, "output:"+z.Tool)
			}
			fmt.Printf("    %d. %q %s\n", i, preview(z.Text), strings.Join(marks, " "))
		}
	}

	fmt.Println("\nFlow:")
	printSteps(m.Flow, "  ")

	if len(m.Extract) > 0 {
		fmt.Println("\nExtract:")
		for _, x := range m.Extract {
			fmt.Printf("  %s <- %s\n", x.Name, strings.Join(x.Tags, " | "))
		}
	}

	b, err := m.Compile(false)
	if err != nil {
		fmt.Printf("\nCompile: FAILED: %v\n", err)
		return nil
	}
	digest, err := b.Program().Digest()
	if err != nil {
		return err
	}
	fmt.Printf("\nCompile: %d zones, %d prompt tokens, digest %.12s\n",
		b.Program().Len(), len(b.Program().TokenData), digest)
	return nil
}

func printSteps(steps []manifest.Step, indent string) {
	for _, s := range steps {
		switch s.Op {
		case "capture":
			fmt.Printf("%scapture %s -> %s\n", indent, s.Sequence, s.Tool)
		case "when":
			fmt.Printf("%swhen %s\n", indent, s.Sequence)
			printSteps(s.Body, indent+"  ")
			if len(s.Else) > 0 {
				fmt.Printf("%selse\n", indent)
				printSteps(s.Else, indent+"  ")
			}
		case "loop":
			fmt.Printf("%sloop %s\n", indent, s.Sequence)
			printSteps(s.Body, indent+"  ")
		default:
			fmt.Printf("%s%s %s\n", indent, s.Op, s.Sequence)
		}
	}
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 48 {
		return s[:45] + "..."
	}
	return s
}

func sorted[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
