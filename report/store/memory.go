// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/expense-engine/report"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	reports map[report.ReportID]*report.Report
}

func NewMemory() *Memory {
	return &Memory{reports: make(map[report.ReportID]*report.Report)}
}

// Load returns a snapshot. Callers can mutate the result freely without
// touching stored state.
func (m *Memory) Load(_ context.Context, id report.ReportID) (*report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	return r.Clone(), nil
}

// Create persists a new aggregate at version 1.
func (m *Memory) Create(_ context.Context, r *report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports[r.ID] = r.Clone()
	return nil
}

// CompareAndSwap applies mutate under the store lock, so no competing
// writer can observe a read-then-write window. The version counter is
// owned here: mutators never touch it.
func (m *Memory) CompareAndSwap(_ context.Context, id report.ReportID, expectedVersion int64, mutate report.Mutator) (*report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reports[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return nil, &report.VersionConflictError{Expected: expectedVersion, Stored: stored.Version}
	}

	next := stored.Clone()
	if err := mutate(next); err != nil {
		// Aborted swap: zero writes.
		return nil, err
	}
	next.Version = expectedVersion + 1

	m.reports[id] = next
	return next.Clone(), nil
}

// List returns snapshots of all aggregates, unordered.
func (m *Memory) List(_ context.Context) ([]*report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*report.Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r.Clone())
	}
	return out, nil
}
