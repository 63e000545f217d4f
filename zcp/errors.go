package zcp

import (
	"errors"
	"fmt"
)

// Compile-time error kinds. Every error returned while building or lowering
// a graph matches one of these with errors.Is.
var (
	ErrMalformedGraph        = errors.New("malformed graph")
	ErrForwardJump           = errors.New("forward jump")
	ErrEdgeConflict          = errors.New("edge already attached")
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	ErrUnknownTool           = errors.New("unknown tool")
	ErrMissingTool           = errors.New("output zone has no tool")
	ErrUnknownTag            = errors.New("unknown tag")
	ErrResolve               = errors.New("resolver failed")
	ErrTokenize              = errors.New("tokenization failed")
	ErrFinalized             = errors.New("builder already finalized")
)

// GraphError reports a compile-time failure tied to a zone.
type GraphError struct {
	Kind       error
	Node       NodeID
	Provenance Provenance
	Msg        string
	Err        error
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if loc := e.Provenance.String(); loc != "" {
		s += " at " + loc
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *GraphError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds a GraphError of the given kind for a zone.
func Errorf(kind error, node NodeID, prov Provenance, format string, args ...any) error {
	return &GraphError{Kind: kind, Node: node, Provenance: prov, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a GraphError of the given kind.
func Wrap(kind error, node NodeID, prov Provenance, err error, format string, args ...any) error {
	return &GraphError{Kind: kind, Node: node, Provenance: prov, Msg: fmt.Sprintf(format, args...), Err: err}
}

func malformedf(format string, args ...any) error {
	return &GraphError{Kind: ErrMalformedGraph, Node: NoNode, Msg: fmt.Sprintf(format, args...)}
}
