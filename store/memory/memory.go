// Package memory provides an in-memory arrears.Store for tests and dev.
package memory

import (
	"context"
	"sync"

	"github.com/sakethdamerla/li-hrms-sub010/arrears"
	"github.com/sakethdamerla/li-hrms-sub010/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu      sync.RWMutex
	records map[core.ArrearID]arrears.ArrearRecord
}

func New() *Store {
	return &Store{records: make(map[core.ArrearID]arrears.ArrearRecord)}
}

func (s *Store) Create(_ context.Context, rec arrears.ArrearRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(rec)
}

func (s *Store) createLocked(rec arrears.ArrearRecord) error {
	if _, exists := s.records[rec.ID]; exists {
		return arrears.ErrDuplicateID
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id core.ArrearID) (arrears.ArrearRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return arrears.ArrearRecord{}, arrears.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Update(_ context.Context, rec arrears.ArrearRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(rec)
}

func (s *Store) updateLocked(rec arrears.ArrearRecord) error {
	stored, ok := s.records[rec.ID]
	if !ok {
		return arrears.ErrNotFound
	}
	if stored.Version != rec.Version {
		return arrears.ErrVersionConflict
	}
	next := rec.Clone()
	next.Version++
	s.records[rec.ID] = next
	return nil
}

func (s *Store) List(_ context.Context, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []arrears.ArrearRecord
	for _, rec := range s.records {
		if f.Matches(&rec) {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}

// =============================================================================
// TRANSACTION SUPPORT - Snapshot and rollback
// =============================================================================

// WithTx executes fn against the store under the write lock. On error the
// pre-transaction snapshot is restored, giving all-or-nothing semantics.
func (s *Store) WithTx(_ context.Context, fn func(arrears.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[core.ArrearID]arrears.ArrearRecord, len(s.records))
	for id, rec := range s.records {
		snapshot[id] = rec.Clone()
	}

	if err := fn(&txView{parent: s}); err != nil {
		s.records = snapshot
		return err
	}
	return nil
}

// txView bypasses the (already held) lock for writes inside WithTx.
type txView struct {
	parent *Store
}

func (tv *txView) Create(_ context.Context, rec arrears.ArrearRecord) error {
	return tv.parent.createLocked(rec)
}

func (tv *txView) Update(_ context.Context, rec arrears.ArrearRecord) error {
	return tv.parent.updateLocked(rec)
}

func (tv *txView) Get(_ context.Context, id core.ArrearID) (arrears.ArrearRecord, error) {
	rec, ok := tv.parent.records[id]
	if !ok {
		return arrears.ArrearRecord{}, arrears.ErrNotFound
	}
	return rec.Clone(), nil
}

func (tv *txView) List(_ context.Context, f arrears.Filter) ([]arrears.ArrearRecord, error) {
	var result []arrears.ArrearRecord
	for _, rec := range tv.parent.records {
		if f.Matches(&rec) {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}
