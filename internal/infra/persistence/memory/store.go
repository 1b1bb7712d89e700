// Package memory implements an in-memory snapshot store for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"gridcore/pkg/tabular"
)

// Compile-time contract assertion ensuring the store satisfies the interface.
var _ tabular.SnapshotStore = (*Store)(nil)

// Store keeps dataset snapshots in process memory.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]tabular.DatasetSnapshot
}

// NewStore constructs an empty in-memory snapshot store.
func NewStore() *Store {
	return &Store{snapshots: make(map[string]tabular.DatasetSnapshot)}
}

// Save stores a deep copy of the snapshot keyed by slug.
func (s *Store) Save(_ context.Context, snapshot tabular.DatasetSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Slug] = snapshot.Clone()
	return nil
}

// Load returns the snapshot for a slug.
func (s *Store) Load(_ context.Context, slug string) (tabular.DatasetSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[slug]
	if !ok {
		return tabular.DatasetSnapshot{}, false, nil
	}
	return snap.Clone(), true, nil
}

// List returns all snapshots ordered by slug.
func (s *Store) List(_ context.Context) ([]tabular.DatasetSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tabular.DatasetSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Delete removes a snapshot, reporting whether it existed.
func (s *Store) Delete(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[slug]
	if ok {
		delete(s.snapshots, slug)
	}
	return ok, nil
}
