package tokenizer

import (
	"fmt"
	"math"

	tiktoken "github.com/tiktoken-go/tokenizer"
)

// BPE is a tiktoken byte-pair tokenizer.
type BPE struct {
	codec tiktoken.Codec
}

// NewBPE loads the named tiktoken encoding, such as "cl100k_base".
func NewBPE(encoding string) (*BPE, error) {
	codec, err := tiktoken.Get(tiktoken.Encoding(encoding))
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &BPE{codec: codec}, nil
}

// Name returns the encoding name.
func (b *BPE) Name() string { return b.codec.GetName() }

func (b *BPE) Encode(text string) ([]Token, error) {
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		return nil, err
	}
	out := make([]Token, len(ids))
	for i, id := range ids {
		if id > math.MaxInt32 {
			return nil, fmt.Errorf("token id %d overflows int32", id)
		}
		out[i] = Token(id)
	}
	return out, nil
}

func (b *BPE) Decode(tokens []Token) (string, error) {
	ids := make([]uint, len(tokens))
	for i, t := range tokens {
		if t < 0 {
			return "", fmt.Errorf("negative token id %d", t)
		}
		ids[i] = uint(t)
	}
	return b.codec.Decode(ids)
}

// New returns the tokenizer named by kind: "vocab" for a Vocab over the
// given pieces, anything else is taken as a tiktoken encoding name.
func New(kind string, pieces ...string) (Tokenizer, error) {
	if kind == "" || kind == "vocab" {
		return NewVocab(pieces...), nil
	}
	return NewBPE(kind)
}
