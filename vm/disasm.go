package vm

import (
	"fmt"
	"strings"
)

// TokenDecoder renders tokens as text for listings.
type TokenDecoder func([]Token) (string, error)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWith("", nil)
}

// DisassembleWith returns a listing with a name header. When decode is
// non-nil, prompts and patterns are shown as text as well as ids.
func (p *Program) DisassembleWith(name string, decode TokenDecoder) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Zone Control Program v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; Zones: %d  Tokens: %d  Window: %d  Pad: %d\n",
		p.Len(), len(p.TokenData), p.PatternWindow, p.PadToken))
	if len(p.EscapeOpen) > 0 || len(p.EscapeClose) > 0 {
		sb.WriteString(fmt.Sprintf("; Escape: %s .. %s\n",
			formatTokens(p.EscapeOpen, decode), formatTokens(p.EscapeClose, decode)))
	}
	if len(p.TagNames) > 0 {
		sb.WriteString("; Tags: " + strings.Join(p.TagNames, ", ") + "\n")
	}
	sb.WriteString("\n")

	for pc := 0; pc < p.Len(); pc++ {
		sb.WriteString(p.DisassembleZone(int32(pc), decode))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("%04d  DONE\n", p.Len()))
	return sb.String()
}

// DisassembleZone returns the listing for a single zone.
func (p *Program) DisassembleZone(pc int32, decode TokenDecoder) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%04d  next=%s", pc, p.location(p.AdvanceLocation[pc])))
	if p.JumpEnable[pc] {
		sb.WriteString(fmt.Sprintf(" jump=%s", p.location(p.JumpLocation[pc])))
	}
	if p.Timeout[pc] >= 0 {
		sb.WriteString(fmt.Sprintf(" timeout=%d", p.Timeout[pc]))
	}
	if p.InputFlag[pc] {
		sb.WriteString(" IN")
	}
	if p.OutputFlag[pc] {
		sb.WriteString(fmt.Sprintf(" OUT(tool=%d)", p.OutputCallback[pc]))
	}
	var tags []string
	for i, on := range p.Tags[pc] {
		if on {
			tags = append(tags, p.TagNames[i])
		}
	}
	if len(tags) > 0 {
		sb.WriteString(" tags=" + strings.Join(tags, ","))
	}
	if p.Provenance != nil && p.Provenance[pc].String() != "" {
		sb.WriteString("  ; " + p.Provenance[pc].String())
	}
	sb.WriteString("\n")

	if prompt := p.Prompt(pc); len(prompt) > 0 {
		sb.WriteString(fmt.Sprintf("      prompt  [%d:%d] %s\n", p.TokenStart[pc], p.TokenEnd[pc], formatTokens(prompt, decode)))
	}
	if len(p.AdvancePattern[pc]) > 0 {
		sb.WriteString("      advance " + formatTokens(p.AdvancePattern[pc], decode) + "\n")
	}
	if len(p.JumpPattern[pc]) > 0 {
		sb.WriteString("      jump    " + formatTokens(p.JumpPattern[pc], decode) + "\n")
	}
	return sb.String()
}

func (p *Program) location(l int32) string {
	if l == p.Done() {
		return "DONE"
	}
	return fmt.Sprintf("%04d", l)
}

func formatTokens(toks []Token, decode TokenDecoder) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = fmt.Sprint(t)
	}
	s := "[" + strings.Join(parts, " ") + "]"
	if decode == nil {
		return s
	}
	text, err := decode(toks)
	if err != nil {
		return s
	}
	// Truncate long text for readability
	if len(text) > 40 {
		text = text[:37] + "..."
	}
	return fmt.Sprintf("%s %q", s, text)
}
