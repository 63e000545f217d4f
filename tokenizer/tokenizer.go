// Package tokenizer adapts text tokenizers to the token ids the engine
// consumes.
package tokenizer

import "fmt"

// Token is a vocabulary id.
type Token = int32

// Tokenizer converts between text and tokens.
type Tokenizer interface {
	Encode(text string) ([]Token, error)
	Decode(tokens []Token) (string, error)
}

// Single encodes text and requires the result to be exactly one token.
func Single(tok Tokenizer, text string) (Token, error) {
	ids, err := tok.Encode(text)
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("%q encodes to %d tokens, want 1", text, len(ids))
	}
	return ids[0], nil
}
