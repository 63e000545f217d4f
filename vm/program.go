package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/smithblack-0/WorkflowForge/zcp"
)

// Token is a vocabulary id.
type Token = int32

// NoTimeout disables forced advance for a zone.
const NoTimeout int32 = -1

// NoCallback marks a zone without a tool.
const NoCallback int32 = -1

// Program is the compiled form of a zone graph. All per-zone slices have
// length Len(). Program counters index them directly; Len() itself is the
// done sentinel.
type Program struct {
	Version uint16

	JumpEnable      []bool
	JumpLocation    []int32
	AdvanceLocation []int32
	AdvancePattern  [][]Token
	JumpPattern     [][]Token
	Timeout         []int32
	Tags            [][]bool
	InputFlag       []bool
	OutputFlag      []bool
	OutputCallback  []int32
	TokenStart      []int32
	TokenEnd        []int32

	// TokenData holds every zone's prompt, addressed by TokenStart/TokenEnd.
	TokenData []Token

	EscapeOpen    []Token
	EscapeClose   []Token
	PadToken      Token
	TagNames      []string
	PatternWindow int

	// Provenance is optional debug information, one entry per zone.
	Provenance []zcp.Provenance
}

// Len returns the number of zones.
func (p *Program) Len() int { return len(p.JumpEnable) }

// Done returns the done sentinel program counter.
func (p *Program) Done() int32 { return int32(p.Len()) }

// Prompt returns the prompt tokens of a zone.
func (p *Program) Prompt(pc int32) []Token {
	return p.TokenData[p.TokenStart[pc]:p.TokenEnd[pc]]
}

// LongestPattern returns the length of the longest trigger pattern.
func (p *Program) LongestPattern() int {
	n := max(len(p.EscapeOpen), len(p.EscapeClose))
	for i := range p.AdvancePattern {
		n = max(n, len(p.AdvancePattern[i]), len(p.JumpPattern[i]))
	}
	return n
}

// Validate checks that the arrays are consistent: equal lengths, locations
// within [0, Len()], offsets inside TokenData, and a pattern window that
// covers the longest pattern.
func (p *Program) Validate() error {
	n := p.Len()
	if n == 0 {
		return fmt.Errorf("program has no zones")
	}
	lengths := map[string]int{
		"jump location":    len(p.JumpLocation),
		"advance location": len(p.AdvanceLocation),
		"advance pattern":  len(p.AdvancePattern),
		"jump pattern":     len(p.JumpPattern),
		"timeout":          len(p.Timeout),
		"tags":             len(p.Tags),
		"input flag":       len(p.InputFlag),
		"output flag":      len(p.OutputFlag),
		"output callback":  len(p.OutputCallback),
		"token start":      len(p.TokenStart),
		"token end":        len(p.TokenEnd),
	}
	for name, l := range lengths {
		if l != n {
			return fmt.Errorf("%s has %d entries, want %d", name, l, n)
		}
	}
	if p.Provenance != nil && len(p.Provenance) != n {
		return fmt.Errorf("provenance has %d entries, want %d", len(p.Provenance), n)
	}
	done := int32(n)
	for pc := 0; pc < n; pc++ {
		if l := p.AdvanceLocation[pc]; l < 0 || l > done {
			return fmt.Errorf("zone %d: advance location %d out of range", pc, l)
		}
		if p.JumpEnable[pc] {
			if l := p.JumpLocation[pc]; l < 0 || l > done {
				return fmt.Errorf("zone %d: jump location %d out of range", pc, l)
			}
		}
		s, e := p.TokenStart[pc], p.TokenEnd[pc]
		if s < 0 || e < s || int(e) > len(p.TokenData) {
			return fmt.Errorf("zone %d: token span [%d,%d) outside %d tokens", pc, s, e, len(p.TokenData))
		}
		if len(p.Tags[pc]) != len(p.TagNames) {
			return fmt.Errorf("zone %d: %d tags, program declares %d", pc, len(p.Tags[pc]), len(p.TagNames))
		}
		if p.OutputFlag[pc] && p.OutputCallback[pc] < 0 {
			return fmt.Errorf("zone %d: output zone without callback", pc)
		}
	}
	if p.PatternWindow < p.LongestPattern() {
		return fmt.Errorf("pattern window %d shorter than longest pattern %d", p.PatternWindow, p.LongestPattern())
	}
	return nil
}

// Digest returns the hex sha256 of the serialized program. Continuations
// record it so they are only resumed against the program that made them.
func (p *Program) Digest() (string, error) {
	data, err := p.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
