// Package tools connects tool callbacks to lanes that capture output for
// them. Resolution happens between engine steps and only ever stalls the
// lanes that raised tool-ready.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrFrozen is returned by Register once the table is frozen.
var ErrFrozen = errors.New("tool table is frozen")

// Func is a tool callback. It receives the lane's captured text and
// returns the text fed back into the lane.
type Func func(ctx context.Context, input string) (string, error)

// Table maps tool names to callback ids. Ids are dense and stable.
type Table struct {
	mu    sync.RWMutex
	names []string
	funcs []Func
	index map[string]int

	frozen bool
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Register adds a tool and returns its id. Registering a name again
// replaces the callback and keeps the id. A frozen table rejects both.
func (t *Table) Register(name string, fn Func) (int, error) {
	if name == "" {
		return -1, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return -1, fmt.Errorf("tool %q: nil callback", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return -1, fmt.Errorf("register %q: %w", name, ErrFrozen)
	}
	if id, ok := t.index[name]; ok {
		t.funcs[id] = fn
		return id, nil
	}
	id := len(t.funcs)
	t.names = append(t.names, name)
	t.funcs = append(t.funcs, fn)
	t.index[name] = id
	return id, nil
}

// Freeze makes the table read-only. Programs compiled against it refer to
// tools by id, so ids and callbacks must not change afterwards.
func (t *Table) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (t *Table) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

// Lookup returns the id of a registered tool.
func (t *Table) Lookup(name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.index[name]
	return id, ok
}

// Func returns the callback for an id.
func (t *Table) Func(id int) (Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.funcs) {
		return nil, false
	}
	return t.funcs[id], true
}

// Name returns the name registered under id.
func (t *Table) Name(id int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// Names returns the registered names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := append([]string(nil), t.names...)
	sort.Strings(out)
	return out
}
