package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

// Store is an in-memory implementation of store.Store for tests and
// single-process use. Counters are lost on exit.
type Store struct {
	mu       sync.RWMutex
	counters map[string]int64
	records  map[string]store.Record
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		counters: make(map[string]int64),
		records:  make(map[string]store.Record),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Allocate increments the scope counter under the write lock.
func (s *Store) Allocate(ctx context.Context, scope store.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key()
	s.counters[key]++
	return s.counters[key], nil
}

// Current returns the last allocated value.
func (s *Store) Current(ctx context.Context, scope store.Scope) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[scope.Key()], nil
}

// Record stores a copy of r.
func (s *Store) Record(ctx context.Context, r store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.CompositeID]; ok {
		return fmt.Errorf("%w: %s", internalerr.ErrDuplicate, r.CompositeID)
	}
	s.records[r.CompositeID] = copyRecord(r)
	return nil
}

func (s *Store) Get(ctx context.Context, compositeID string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[compositeID]
	if !ok {
		return store.Record{}, fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
	}
	return copyRecord(r), nil
}

func (s *Store) Pending(ctx context.Context, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = store.DefaultPendingLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Record
	for _, r := range s.records {
		if r.NeedsConfirmation {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].CompositeID < out[j].CompositeID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Confirm(ctx context.Context, compositeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[compositeID]
	if !ok {
		return fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
	}
	r.NeedsConfirmation = false
	s.records[compositeID] = r
	return nil
}

func copyRecord(r store.Record) store.Record {
	r.Reasoning = store.Reasoning{
		Industry: cloneStrings(r.Reasoning.Industry),
		Region:   cloneStrings(r.Reasoning.Region),
		Warnings: cloneStrings(r.Reasoning.Warnings),
	}
	return r
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
