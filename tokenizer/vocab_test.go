package tokenizer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVocabEncodeLongestFirst(t *testing.T) {
	v := NewVocab("[Jump]", "[Jump Now]", "ab")
	got, err := v.Encode("x[Jump Now]ab[Jump]")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []Token{'x', 257, 258, 256}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("encode (-want +got):\n%s", diff)
	}
	text, err := v.Decode(got)
	if err != nil || text != "x[Jump Now]ab[Jump]" {
		t.Errorf("decode = %q, %v", text, err)
	}
}

func TestVocabAddIsIdempotent(t *testing.T) {
	v := NewVocab()
	a := v.Add("piece")
	if b := v.Add("piece"); a != b {
		t.Errorf("ids differ: %d %d", a, b)
	}
	if v.Size() != 257 {
		t.Errorf("size = %d", v.Size())
	}
}

func TestVocabDecodeRejectsUnknown(t *testing.T) {
	v := NewVocab("a")
	if _, err := v.Decode([]Token{999}); err == nil {
		t.Errorf("expected error for unknown token")
	}
}

func TestSingle(t *testing.T) {
	v := NewVocab("[Pad]")
	if id, err := Single(v, "[Pad]"); err != nil || id != 256 {
		t.Errorf("single = %d, %v", id, err)
	}
	if _, err := Single(v, "two"); err == nil {
		t.Errorf("expected multi-token error")
	}
}
