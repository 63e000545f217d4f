package zcp

import (
	"errors"
	"strings"
	"testing"
)

func arena(edges ...[2]NodeID) []Zone {
	zs := make([]Zone, len(edges))
	for i, e := range edges {
		zs[i] = Zone{Next: e[0], Jump: e[1], Provenance: Provenance{Sequence: "seq", Zone: i}}
	}
	return zs
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		zones []Zone
		want  string
	}{
		{"empty", nil, "empty graph"},
		{"out of range", arena([2]NodeID{7, NoNode}, [2]NodeID{NoNode, NoNode}), "outside the graph"},
		{"control without nominal", arena([2]NodeID{NoNode, 1}, [2]NodeID{NoNode, NoNode}), "no nominal edge"},
		{"two sources", arena([2]NodeID{2, NoNode}, [2]NodeID{2, NoNode}, [2]NodeID{NoNode, NoNode}), "one source"},
		{"two sinks", arena([2]NodeID{1, 2}, [2]NodeID{NoNode, NoNode}, [2]NodeID{NoNode, NoNode}), "one sink"},
		{"unreachable cycle", arena([2]NodeID{1, NoNode}, [2]NodeID{NoNode, NoNode}, [2]NodeID{3, NoNode}, [2]NodeID{2, NoNode}), "unreachable"},
		{"trapped", arena([2]NodeID{1, 2}, [2]NodeID{NoNode, NoNode}, [2]NodeID{2, NoNode}), "cannot reach the sink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Validate(tt.zones)
			if !errors.Is(err, ErrMalformedGraph) {
				t.Fatalf("expected ErrMalformedGraph, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsSelfLoop(t *testing.T) {
	zs := arena([2]NodeID{1, NoNode}, [2]NodeID{1, 2}, [2]NodeID{NoNode, NoNode})
	source, sink, err := Validate(zs)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if source != 0 || sink != 2 {
		t.Errorf("source,sink = %d,%d", source, sink)
	}
}

func TestGraphErrorCarriesProvenance(t *testing.T) {
	zs := arena([2]NodeID{1, NoNode}, [2]NodeID{NoNode, NoNode}, [2]NodeID{3, NoNode}, [2]NodeID{2, NoNode})
	_, _, err := Validate(zs)
	var ge *GraphError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *GraphError, got %T", err)
	}
	if ge.Node != 2 {
		t.Errorf("expected node 2, got %d", ge.Node)
	}
	if !strings.Contains(err.Error(), "seq[0.2]") {
		t.Errorf("provenance missing from %q", err)
	}
}
