package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/smithblack-0/WorkflowForge/vm"
)

// Store keeps suspended runs as encoded continuations, keyed by run id.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string][]byte)}
}

// Suspend snapshots the engine and stores it under its run id.
func (s *Store) Suspend(e *vm.Engine) (string, error) {
	c, err := e.Snapshot()
	if err != nil {
		return "", err
	}
	data, err := vm.MarshalContinuation(c)
	if err != nil {
		return "", fmt.Errorf("encode continuation: %w", err)
	}

	s.mu.Lock()
	s.items[c.RunID] = data
	s.mu.Unlock()

	log.Debugf("suspended run %s at step %d (%d bytes)", c.RunID, c.Steps, len(data))
	return c.RunID, nil
}

// Resume restores a suspended run against p and removes it from the store.
// The entry is kept if the program does not match. Concurrent resumes of
// one id see it at most once.
func (s *Store) Resume(id string, p *vm.Program, opts vm.Options) (*vm.Engine, error) {
	s.mu.Lock()
	data, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no suspended run %q", id)
	}

	e, err := resume(data, p, opts)
	if err != nil {
		s.mu.Lock()
		if _, taken := s.items[id]; !taken {
			s.items[id] = data
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("resume %q: %w", id, err)
	}
	return e, nil
}

func resume(data []byte, p *vm.Program, opts vm.Options) (*vm.Engine, error) {
	c, err := vm.UnmarshalContinuation(data)
	if err != nil {
		return nil, err
	}
	return vm.Resume(p, c, opts)
}

// Export returns the encoded continuation of a suspended run.
func (s *Store) Export(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.items[id]
	return append([]byte(nil), data...), ok
}

// Import adds an encoded continuation and returns its run id.
func (s *Store) Import(data []byte) (string, error) {
	c, err := vm.UnmarshalContinuation(data)
	if err != nil {
		return "", err
	}
	if c.RunID == "" {
		return "", fmt.Errorf("continuation has no run id")
	}

	s.mu.Lock()
	s.items[c.RunID] = append([]byte(nil), data...)
	s.mu.Unlock()
	return c.RunID, nil
}

// IDs returns the suspended run ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
