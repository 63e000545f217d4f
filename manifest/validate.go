package manifest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smithblack-0/WorkflowForge/tools"
	"github.com/smithblack-0/WorkflowForge/vm"
)

// Validate checks the manifest for problems that do not need a tokenizer:
// control token clashes, unknown tags, dangling sequence, resource and tool
// references, and malformed flow steps. All problems are reported.
func (m *Manifest) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	c := &m.Config
	controls := map[string]string{
		"zone_token":   c.ZoneToken,
		"jump_token":   c.JumpToken,
		"escape_open":  c.EscapeOpen,
		"escape_close": c.EscapeClose,
		"pad_token":    c.PadToken,
	}
	seen := make(map[string]string)
	for _, key := range sortedKeys(controls) {
		v := controls[key]
		if other, ok := seen[v]; ok {
			add("config: %s and %s are both %q", other, key, v)
		}
		seen[v] = key
	}
	if c.Timeout() < -1 {
		add("config: default_timeout must be -1 or more")
	}
	if c.CaptureLimit < 0 {
		add("config: capture_limit must not be negative")
	}
	if _, err := vm.ParseEscapePolicy(c.EscapePolicy); err != nil {
		add("config: %v", err)
	}
	tags := make(map[string]bool, len(c.ValidTags))
	for _, t := range c.ValidTags {
		if tags[t] {
			add("config: tag %q listed twice", t)
		}
		tags[t] = true
	}

	for _, name := range sortedKeys(m.Resources) {
		r := m.Resources[name]
		switch r.Type {
		case "static":
		case "list":
			if len(r.Items) == 0 {
				add("resource %q: list needs items", name)
			}
		case "buffer":
			if r.Size <= 0 {
				add("resource %q: buffer needs a positive size", name)
			}
		default:
			add("resource %q: unknown type %q", name, r.Type)
		}
	}

	for _, name := range sortedKeys(m.Tools) {
		if _, err := tools.Builtin(m.Tools[name].Builtin, m.Tools[name].Arg); err != nil {
			add("tool %q: %v", name, err)
		}
	}

	for _, name := range sortedKeys(m.Sequences) {
		zones := m.Sequences[name]
		if len(zones) == 0 {
			add("sequence %q is empty", name)
		}
		for i, z := range zones {
			for _, t := range z.Tags {
				if !tags[t] {
					add("sequence %q zone %d: unknown tag %q", name, i, t)
				}
			}
			for ph, p := range z.Placeholders {
				if _, ok := m.Resources[p.Resource]; !ok {
					add("sequence %q zone %d: placeholder %q uses undefined resource %q", name, i, ph, p.Resource)
				}
			}
			if z.Output && z.Tool == "" {
				add("sequence %q zone %d: output zone needs a tool", name, i)
			}
			if z.Tool != "" {
				if _, ok := m.Tools[z.Tool]; !ok {
					add("sequence %q zone %d: undefined tool %q", name, i, z.Tool)
				}
			}
			if z.Timeout != nil && *z.Timeout < -1 {
				add("sequence %q zone %d: timeout must be -1 or more", name, i)
			}
		}
	}

	if len(m.Flow) == 0 {
		add("flow is empty")
	}
	m.validateSteps("flow", m.Flow, add)

	names := make(map[string]bool)
	for i, x := range m.Extract {
		if x.Name == "" {
			add("extract %d: name is required", i)
		}
		if names[x.Name] {
			add("extract %q defined twice", x.Name)
		}
		names[x.Name] = true
		for _, t := range x.Tags {
			if !tags[t] {
				add("extract %q: unknown tag %q", x.Name, t)
			}
		}
	}

	return errors.Join(errs...)
}

func (m *Manifest) validateSteps(where string, steps []Step, add func(string, ...any)) {
	for i, s := range steps {
		at := fmt.Sprintf("%s[%d]", where, i)
		if _, ok := m.Sequences[s.Sequence]; !ok {
			add("%s: undefined sequence %q", at, s.Sequence)
		}
		switch s.Op {
		case "run", "feed":
		case "capture":
			if _, ok := m.Tools[s.Tool]; !ok {
				add("%s: capture needs a defined tool, got %q", at, s.Tool)
			}
		case "loop":
			if len(s.Else) > 0 {
				add("%s: loop has no else branch", at)
			}
		case "when":
		default:
			add("%s: unknown op %q", at, s.Op)
		}
		if s.Op != "loop" && s.Op != "when" && (len(s.Body) > 0 || len(s.Else) > 0) {
			add("%s: %s takes no nested steps", at, s.Op)
		}
		m.validateSteps(at+".body", s.Body, add)
		m.validateSteps(at+".else", s.Else, add)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
