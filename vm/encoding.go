package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/smithblack-0/WorkflowForge/zcp"
)

// ProgramVersion is the current program format version.
// Increment when making incompatible changes to the format.
const ProgramVersion uint16 = 1

// Magic bytes for program files: "ZCPB" (Zone Control Program Binary)
var ProgramMagic = []byte{'Z', 'C', 'P', 'B'}

// ProgramFlags describes optional sections.
type ProgramFlags uint16

const (
	// ProgramFlagDebug indicates per-zone provenance is present.
	ProgramFlagDebug ProgramFlags = 1 << 0
)

const (
	zoneJumpEnable = 1 << 0
	zoneInput      = 1 << 1
	zoneOutput     = 1 << 2
)

// Serialize encodes the program to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[pad:4] [window:2] [escape_open] [escape_close]
//	[tag_count:2] [tag_names:...]
//	[zone_count:4] [zones:...]
//	[token_count:4] [tokens:...]
//	[provenance:...] (if ProgramFlagDebug)
//
// Token lists are [count:2] followed by 4-byte tokens. Each zone is
// [flags:1] [jump:4] [advance:4] [timeout:4] [callback:4] [start:4] [end:4]
// [advance_pattern] [jump_pattern] [tag_bits:ceil(tags/8)].
func (p *Program) Serialize() ([]byte, error) {
	if p.PatternWindow > math.MaxUint16 {
		return nil, fmt.Errorf("pattern window %d too large", p.PatternWindow)
	}
	buf := make([]byte, 0, 64+p.Len()*32+len(p.TokenData)*4)

	var flags ProgramFlags
	if p.Provenance != nil {
		flags |= ProgramFlagDebug
	}

	buf = append(buf, ProgramMagic...)
	buf = binary.BigEndian.AppendUint16(buf, ProgramVersion)
	buf = binary.BigEndian.AppendUint16(buf, uint16(flags))

	buf = binary.BigEndian.AppendUint32(buf, uint32(p.PadToken))
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.PatternWindow))
	var err error
	if buf, err = appendTokens(buf, p.EscapeOpen); err != nil {
		return nil, err
	}
	if buf, err = appendTokens(buf, p.EscapeClose); err != nil {
		return nil, err
	}

	if len(p.TagNames) > math.MaxUint16 {
		return nil, fmt.Errorf("%d tags too many", len(p.TagNames))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.TagNames)))
	for _, name := range p.TagNames {
		if buf, err = appendString(buf, name); err != nil {
			return nil, fmt.Errorf("tag name: %w", err)
		}
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(p.Len()))
	for pc := 0; pc < p.Len(); pc++ {
		var zf byte
		if p.JumpEnable[pc] {
			zf |= zoneJumpEnable
		}
		if p.InputFlag[pc] {
			zf |= zoneInput
		}
		if p.OutputFlag[pc] {
			zf |= zoneOutput
		}
		buf = append(buf, zf)
		for _, v := range []int32{p.JumpLocation[pc], p.AdvanceLocation[pc], p.Timeout[pc],
			p.OutputCallback[pc], p.TokenStart[pc], p.TokenEnd[pc]} {
			buf = binary.BigEndian.AppendUint32(buf, uint32(v))
		}
		if buf, err = appendTokens(buf, p.AdvancePattern[pc]); err != nil {
			return nil, fmt.Errorf("zone %d advance pattern: %w", pc, err)
		}
		if buf, err = appendTokens(buf, p.JumpPattern[pc]); err != nil {
			return nil, fmt.Errorf("zone %d jump pattern: %w", pc, err)
		}
		buf = append(buf, packBits(p.Tags[pc], len(p.TagNames))...)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.TokenData)))
	for _, t := range p.TokenData {
		buf = binary.BigEndian.AppendUint32(buf, uint32(t))
	}

	if flags&ProgramFlagDebug != 0 {
		for _, prov := range p.Provenance {
			if buf, err = appendString(buf, prov.Sequence); err != nil {
				return nil, fmt.Errorf("provenance: %w", err)
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(prov.Block))
			buf = binary.BigEndian.AppendUint32(buf, uint32(prov.Zone))
		}
	}
	return buf, nil
}

func appendTokens(buf []byte, toks []Token) ([]byte, error) {
	if len(toks) > math.MaxUint16 {
		return nil, fmt.Errorf("pattern of %d tokens too long", len(toks))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(toks)))
	for _, t := range toks {
		buf = binary.BigEndian.AppendUint32(buf, uint32(t))
	}
	return buf, nil
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return nil, fmt.Errorf("string of %d bytes too long", len(s))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

func packBits(bits []bool, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n && i < len(bits); i++ {
		if bits[i] {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// decoder reads the program format, tracking position for error messages.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) need(n int, what string) error {
	if d.pos+n > len(d.data) {
		return fmt.Errorf("unexpected end of program reading %s at pos %d", what, d.pos)
	}
	return nil
}

func (d *decoder) u8(what string) (byte, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) u16(what string) (uint16, error) {
	if err := d.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) str(what string) (string, error) {
	n, err := d.u16(what + " length")
	if err != nil {
		return "", err
	}
	if err := d.need(int(n), what); err != nil {
		return "", err
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *decoder) tokens(what string) ([]Token, error) {
	n, err := d.u16(what + " length")
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)*4, what); err != nil {
		return nil, err
	}
	out := make([]Token, n)
	for i := range out {
		out[i] = Token(binary.BigEndian.Uint32(d.data[d.pos:]))
		d.pos += 4
	}
	return out, nil
}

// Deserialize decodes a program from bytes and validates it.
func Deserialize(data []byte) (*Program, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("program too short: need at least 8 bytes, got %d", len(data))
	}
	if string(data[0:4]) != string(ProgramMagic) {
		return nil, fmt.Errorf("invalid program magic: expected %q, got %q", ProgramMagic, data[0:4])
	}
	p := &Program{Version: binary.BigEndian.Uint16(data[4:6])}
	flags := ProgramFlags(binary.BigEndian.Uint16(data[6:8]))
	if p.Version > ProgramVersion {
		return nil, fmt.Errorf("program version %d is newer than supported version %d", p.Version, ProgramVersion)
	}
	d := &decoder{data: data, pos: 8}

	pad, err := d.u32("pad token")
	if err != nil {
		return nil, err
	}
	p.PadToken = Token(pad)
	window, err := d.u16("pattern window")
	if err != nil {
		return nil, err
	}
	p.PatternWindow = int(window)
	if p.EscapeOpen, err = d.tokens("escape open"); err != nil {
		return nil, err
	}
	if p.EscapeClose, err = d.tokens("escape close"); err != nil {
		return nil, err
	}

	tagCount, err := d.u16("tag count")
	if err != nil {
		return nil, err
	}
	p.TagNames = make([]string, tagCount)
	for i := range p.TagNames {
		if p.TagNames[i], err = d.str(fmt.Sprintf("tag %d", i)); err != nil {
			return nil, err
		}
	}

	n32, err := d.u32("zone count")
	if err != nil {
		return nil, err
	}
	// Each zone takes at least 29 bytes; reject counts the data cannot hold.
	if err := d.need(int(n32)*29, "zones"); err != nil {
		return nil, err
	}
	n := int(n32)
	p.JumpEnable = make([]bool, n)
	p.JumpLocation = make([]int32, n)
	p.AdvanceLocation = make([]int32, n)
	p.AdvancePattern = make([][]Token, n)
	p.JumpPattern = make([][]Token, n)
	p.Timeout = make([]int32, n)
	p.Tags = make([][]bool, n)
	p.InputFlag = make([]bool, n)
	p.OutputFlag = make([]bool, n)
	p.OutputCallback = make([]int32, n)
	p.TokenStart = make([]int32, n)
	p.TokenEnd = make([]int32, n)

	tagBytes := (int(tagCount) + 7) / 8
	for pc := 0; pc < n; pc++ {
		zf, err := d.u8(fmt.Sprintf("zone %d flags", pc))
		if err != nil {
			return nil, err
		}
		p.JumpEnable[pc] = zf&zoneJumpEnable != 0
		p.InputFlag[pc] = zf&zoneInput != 0
		p.OutputFlag[pc] = zf&zoneOutput != 0

		fields := []*int32{&p.JumpLocation[pc], &p.AdvanceLocation[pc], &p.Timeout[pc],
			&p.OutputCallback[pc], &p.TokenStart[pc], &p.TokenEnd[pc]}
		for _, f := range fields {
			v, err := d.u32(fmt.Sprintf("zone %d", pc))
			if err != nil {
				return nil, err
			}
			*f = int32(v)
		}
		if p.AdvancePattern[pc], err = d.tokens(fmt.Sprintf("zone %d advance pattern", pc)); err != nil {
			return nil, err
		}
		if p.JumpPattern[pc], err = d.tokens(fmt.Sprintf("zone %d jump pattern", pc)); err != nil {
			return nil, err
		}
		if err := d.need(tagBytes, fmt.Sprintf("zone %d tags", pc)); err != nil {
			return nil, err
		}
		p.Tags[pc] = make([]bool, tagCount)
		for i := range p.Tags[pc] {
			p.Tags[pc][i] = d.data[d.pos+i/8]&(1<<(i%8)) != 0
		}
		d.pos += tagBytes
	}

	tokCount, err := d.u32("token count")
	if err != nil {
		return nil, err
	}
	if err := d.need(int(tokCount)*4, "token data"); err != nil {
		return nil, err
	}
	p.TokenData = make([]Token, tokCount)
	for i := range p.TokenData {
		p.TokenData[i] = Token(binary.BigEndian.Uint32(d.data[d.pos:]))
		d.pos += 4
	}

	if flags&ProgramFlagDebug != 0 {
		p.Provenance = make([]zcp.Provenance, n)
		for pc := range p.Provenance {
			seq, err := d.str(fmt.Sprintf("zone %d provenance", pc))
			if err != nil {
				return nil, err
			}
			block, err := d.u32(fmt.Sprintf("zone %d provenance block", pc))
			if err != nil {
				return nil, err
			}
			zone, err := d.u32(fmt.Sprintf("zone %d provenance zone", pc))
			if err != nil {
				return nil, err
			}
			p.Provenance[pc] = zcp.Provenance{Sequence: seq, Block: int(int32(block)), Zone: int(int32(zone))}
		}
	}

	if d.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after program", len(data)-d.pos)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}
	return p, nil
}
