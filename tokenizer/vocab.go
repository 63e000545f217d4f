package tokenizer

import (
	"fmt"
	"sort"
)

// firstPiece is the id of the first registered piece. Ids below it are raw
// bytes.
const firstPiece Token = 256

// Vocab is a deterministic tokenizer. Registered pieces encode to a single
// id each, matched longest first; any other byte encodes to its own value.
// Decoding is lossless.
type Vocab struct {
	pieces []string
	ids    map[string]Token
	byLen  []string
}

// NewVocab returns a vocabulary with the given pieces registered in order.
func NewVocab(pieces ...string) *Vocab {
	v := &Vocab{ids: make(map[string]Token)}
	for _, p := range pieces {
		v.Add(p)
	}
	return v
}

// Add registers piece and returns its id. Re-adding returns the existing id.
func (v *Vocab) Add(piece string) Token {
	if id, ok := v.ids[piece]; ok {
		return id
	}
	id := firstPiece + Token(len(v.pieces))
	v.pieces = append(v.pieces, piece)
	v.ids[piece] = id
	v.byLen = append(v.byLen, piece)
	sort.SliceStable(v.byLen, func(i, j int) bool { return len(v.byLen[i]) > len(v.byLen[j]) })
	return id
}

// ID returns the id of a registered piece.
func (v *Vocab) ID(piece string) (Token, bool) {
	id, ok := v.ids[piece]
	return id, ok
}

// Size returns the number of ids in use, bytes included.
func (v *Vocab) Size() int { return int(firstPiece) + len(v.pieces) }

func (v *Vocab) Encode(text string) ([]Token, error) {
	var out []Token
	for i := 0; i < len(text); {
		matched := false
		for _, p := range v.byLen {
			if p != "" && len(text)-i >= len(p) && text[i:i+len(p)] == p {
				out = append(out, v.ids[p])
				i += len(p)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, Token(text[i]))
			i++
		}
	}
	return out, nil
}

func (v *Vocab) Decode(tokens []Token) (string, error) {
	buf := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		switch {
		case t >= 0 && t < firstPiece:
			buf = append(buf, byte(t))
		case t >= firstPiece && int(t-firstPiece) < len(v.pieces):
			buf = append(buf, v.pieces[t-firstPiece]...)
		default:
			return "", fmt.Errorf("token %d outside vocabulary of %d", t, v.Size())
		}
	}
	return string(buf), nil
}
