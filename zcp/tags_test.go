package zcp

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTagSetVector(t *testing.T) {
	ts, err := NewTagSet("Training", "Correct", "Feedback")
	if err != nil {
		t.Fatalf("new tag set: %v", err)
	}
	vec, err := ts.Vector([]string{"Feedback", "Training"})
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	if diff := cmp.Diff([]bool{true, false, true}, vec); diff != "" {
		t.Errorf("vector (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Training", "Feedback"}, ts.Decode(vec)); diff != "" {
		t.Errorf("decode (-want +got):\n%s", diff)
	}
	if _, err := ts.Vector([]string{"Missing"}); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("expected ErrUnknownTag, got %v", err)
	}
}

func TestTagSetRejectsDuplicates(t *testing.T) {
	if _, err := NewTagSet("a", "a"); err == nil {
		t.Errorf("expected duplicate error")
	}
}
