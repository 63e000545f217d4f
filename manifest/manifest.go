// Package manifest handles zcp.toml workflow configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "zcp.toml"

// DefaultZoneTimeout is used when the manifest sets no default_timeout.
const DefaultZoneTimeout = 500

// Manifest represents a zcp.toml workflow definition.
type Manifest struct {
	Project   Project             `toml:"project"`
	Config    Config              `toml:"config"`
	Resources map[string]Resource `toml:"resources"`
	Tools     map[string]Tool     `toml:"tools"`
	Sequences map[string][]Zone   `toml:"sequences"`
	Flow      []Step              `toml:"flow"`
	Extract   []Extract           `toml:"extract"`

	// Path is the manifest file the definition was read from (set at load time).
	Path string `toml:"-"`
}

// Project contains workflow metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Config holds the control tokens and engine defaults.
type Config struct {
	ZoneToken   string `toml:"zone_token"`
	JumpToken   string `toml:"jump_token"`
	EscapeOpen  string `toml:"escape_open"`
	EscapeClose string `toml:"escape_close"`
	PadToken    string `toml:"pad_token"`

	ValidTags []string `toml:"valid_tags"`
	// DefaultTimeout applies to zones without their own timeout. Unset
	// means DefaultZoneTimeout; -1 means no timeout.
	DefaultTimeout *int   `toml:"default_timeout"`
	CaptureLimit   int    `toml:"capture_limit"`
	EscapePolicy   string `toml:"escape_policy"`

	// Tokenizer is "vocab" or a tiktoken encoding name.
	Tokenizer     string   `toml:"tokenizer"`
	SpecialTokens []string `toml:"special_tokens"`
}

// Resource declares a placeholder source.
type Resource struct {
	Type  string   `toml:"type"` // static, list or buffer
	Value string   `toml:"value"`
	Items []string `toml:"items"`
	Size  int      `toml:"size"`
	Seed  int64    `toml:"seed"`
}

// Tool binds a tool name to a builtin callback.
type Tool struct {
	Builtin string `toml:"builtin"`
	Arg     string `toml:"arg"`
}

// Zone is one zone of a sequence.
type Zone struct {
	Text         string                 `toml:"text"`
	Advance      string                 `toml:"advance"`
	Tags         []string               `toml:"tags"`
	Timeout      *int                   `toml:"timeout"`
	Input        bool                   `toml:"input"`
	Output       bool                   `toml:"output"`
	Tool         string                 `toml:"tool"`
	Placeholders map[string]Placeholder `toml:"placeholders"`
}

// Placeholder routes a template placeholder to a resource.
type Placeholder struct {
	Resource string         `toml:"resource"`
	Args     map[string]any `toml:"args"`
}

// Step is one entry of the flow list. Body holds the loop body or the
// taken branch of a conditional; Else holds the jump branch.
type Step struct {
	Op       string `toml:"op"` // run, capture, feed, when, loop
	Sequence string `toml:"sequence"`
	Tool     string `toml:"tool"`
	Body     []Step `toml:"body"`
	Else     []Step `toml:"else"`
}

// Extract names a tag union to pull out of a run.
type Extract struct {
	Name string   `toml:"name"`
	Tags []string `toml:"tags"`
}

// Load parses the zcp.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a manifest from an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest, applying defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a zcp.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	c := &m.Config
	if c.ZoneToken == "" {
		c.ZoneToken = "[Next Zone]"
	}
	if c.JumpToken == "" {
		c.JumpToken = "[Jump]"
	}
	if c.EscapeOpen == "" {
		c.EscapeOpen = "[Escape]"
	}
	if c.EscapeClose == "" {
		c.EscapeClose = "[EndEscape]"
	}
	if c.PadToken == "" {
		c.PadToken = "[Pad]"
	}
	if c.DefaultTimeout == nil {
		t := DefaultZoneTimeout
		c.DefaultTimeout = &t
	}
	if c.EscapePolicy == "" {
		c.EscapePolicy = "patterns"
	}
	if c.Tokenizer == "" {
		c.Tokenizer = "vocab"
	}
}

// Timeout returns the default zone timeout.
func (c *Config) Timeout() int {
	if c.DefaultTimeout == nil {
		return DefaultZoneTimeout
	}
	return *c.DefaultTimeout
}

// Dir returns the directory holding the manifest file.
func (m *Manifest) Dir() string {
	if m.Path == "" {
		return ""
	}
	return filepath.Dir(m.Path)
}
