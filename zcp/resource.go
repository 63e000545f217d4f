package zcp

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Resource supplies text for template placeholders.
type Resource interface {
	Resolve(args map[string]any) (string, error)
}

// Resources is the set of resources in scope when a zone is bound.
type Resources map[string]Resource

// With returns a copy of rs extended by more. Entries in more win.
func (rs Resources) With(more Resources) Resources {
	out := make(Resources, len(rs)+len(more))
	for k, v := range rs {
		out[k] = v
	}
	for k, v := range more {
		out[k] = v
	}
	return out
}

// Names returns the bound resource names, sorted.
func (rs Resources) Names() []string {
	names := make([]string, 0, len(rs))
	for k := range rs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StaticString always resolves to itself.
type StaticString string

func (s StaticString) Resolve(map[string]any) (string, error) { return string(s), nil }

// ListSampler draws entries without replacement, refilling the pool once it
// runs short. Draws are joined with newlines. The "num_samples" argument is
// either a count or "all".
type ListSampler struct {
	mu        sync.Mutex
	items     []string
	remaining []string
	rng       *rand.Rand
}

// NewListSampler returns a sampler over items seeded with seed.
func NewListSampler(items []string, seed int64) (*ListSampler, error) {
	if len(items) == 0 {
		return nil, errors.New("list sampler needs at least one item")
	}
	return &ListSampler{
		items:     append([]string(nil), items...),
		remaining: append([]string(nil), items...),
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

func (s *ListSampler) Resolve(args map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := args["num_samples"]
	if !ok {
		raw = 1
	}
	if str, ok := raw.(string); ok {
		if str != "all" {
			return "", fmt.Errorf("unknown sampling mode %q", str)
		}
		return strings.Join(s.items, "\n"), nil
	}
	n, err := intArg(raw)
	if err != nil {
		return "", fmt.Errorf("num_samples: %w", err)
	}
	if n < 0 {
		return "", fmt.Errorf("num_samples must be non-negative, got %d", n)
	}
	if len(s.remaining) < n {
		s.remaining = append(s.remaining[:0], s.items...)
	}
	if n > len(s.remaining) {
		n = len(s.remaining)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		j := s.rng.Intn(len(s.remaining))
		out = append(out, s.remaining[j])
		s.remaining = append(s.remaining[:j], s.remaining[j+1:]...)
	}
	return strings.Join(out, "\n"), nil
}

// LRUBuffer is a sampler over the most recent Add calls. Older entries fall
// out once the buffer holds size entries.
type LRUBuffer struct {
	mu      sync.Mutex
	size    int
	entries []string
	rng     *rand.Rand
}

// NewLRUBuffer returns an empty buffer of the given capacity.
func NewLRUBuffer(size int, seed int64) *LRUBuffer {
	if size < 1 {
		size = 1
	}
	return &LRUBuffer{size: size, rng: rand.New(rand.NewSource(seed))}
}

// Add records s as the newest entry.
func (b *LRUBuffer) Add(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append([]string{s}, b.entries...)
	if len(b.entries) > b.size {
		b.entries = b.entries[:b.size]
	}
}

// Len returns the number of buffered entries.
func (b *LRUBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *LRUBuffer) Resolve(args map[string]any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return "", nil
	}
	raw, ok := args["num_samples"]
	if !ok {
		raw = 1
	}
	if str, ok := raw.(string); ok {
		if str != "all" {
			return "", fmt.Errorf("unknown sampling mode %q", str)
		}
		return strings.Join(b.entries, "\n"), nil
	}
	n, err := intArg(raw)
	if err != nil {
		return "", fmt.Errorf("num_samples: %w", err)
	}
	if n > len(b.entries) {
		n = len(b.entries)
	}
	idx := b.rng.Perm(len(b.entries))[:n]
	sort.Ints(idx)
	out := make([]string, n)
	for i, j := range idx {
		out[i] = b.entries[j]
	}
	return strings.Join(out, "\n"), nil
}

func intArg(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported argument type %T", v)
	}
}
