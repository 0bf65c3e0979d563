// Package runstore keeps finished run records in memory for retrieval by
// id. Records are written exactly once, at the end of the pipeline, after
// the workdir has been scheduled for removal. There is no iteration API and
// no eviction; the store does not survive process restarts.
package runstore

import (
	"sync"

	"github.com/kilnrun/kiln/pkg/types"
)

// Store is a thread-safe run-id to run-record map.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*types.RunRecord
}

// NewStore creates an empty run store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*types.RunRecord)}
}

// Put saves a completed run record.
func (s *Store) Put(rec *types.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
}

// Get returns the record for id, or a not-found error.
func (s *Store) Get(id string) (*types.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil, types.E(types.ErrNotFound, "unknown run %q", id)
	}
	return rec, nil
}
