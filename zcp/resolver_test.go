package zcp

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLiteralResolver(t *testing.T) {
	got, err := Literal("plain {text}").Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "plain {text}" {
		t.Errorf("literal text altered: %q", got)
	}
}

func TestCallbackResolver(t *testing.T) {
	r := Callback("Hi {name}, see {{this}}.", nil, Binding{Placeholder: "name", Resource: StaticString("Ada")})
	if r.Kind != ResolveCallback {
		t.Fatalf("kind = %v", r.Kind)
	}
	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := "Hi Ada, see {this}."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

type failingResource struct{}

func (failingResource) Resolve(map[string]any) (string, error) { return "", errors.New("boom") }

func TestCallbackResolverErrors(t *testing.T) {
	_, err := Callback("{x}", nil).Resolve()
	if !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Errorf("expected ErrUnresolvedPlaceholder, got %v", err)
	}
	_, err = Callback("{x}", nil, Binding{Placeholder: "x", Resource: failingResource{}}).Resolve()
	if err == nil || err.Error() != `placeholder "x": boom` {
		t.Errorf("unexpected error %v", err)
	}
}

func TestPlaceholders(t *testing.T) {
	got, err := Placeholders("{a} and {b} then {a} but not {{c}}")
	if err != nil {
		t.Fatalf("placeholders: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
	}
	if _, err := Placeholders("open {never"); err == nil {
		t.Errorf("expected error for unterminated placeholder")
	}
}
