// Package store persists summaries of finished validation runs.
//
// Two implementations satisfy Archive: MemoryArchive, used when no database
// is configured, and PostgresArchive, backed by a pgx connection pool.
package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/JonMunkholm/spendcheck/internal/core"
)

// ErrNotFound is returned when a run id has no archive record.
var ErrNotFound = errors.New("archived run not found")

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Archive stores and retrieves finished runs.
type Archive interface {
	core.Archiver
	GetRun(ctx context.Context, runID string) (core.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error)
}

// MemoryArchive keeps archive records in process memory.
type MemoryArchive struct {
	mu   sync.RWMutex
	runs map[string]core.RunSummary
}

// NewMemoryArchive returns an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{runs: make(map[string]core.RunSummary)}
}

// SaveRun inserts or replaces the record for run.RunID.
func (a *MemoryArchive) SaveRun(_ context.Context, run core.RunSummary) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	run.Artifacts = slices.Clone(run.Artifacts)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs[run.RunID] = run
	return nil
}

// GetRun returns one record.
func (a *MemoryArchive) GetRun(_ context.Context, runID string) (core.RunSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	run, ok := a.runs[runID]
	if !ok {
		return core.RunSummary{}, ErrNotFound
	}
	run.Artifacts = slices.Clone(run.Artifacts)
	return run, nil
}

// ListRuns returns the most recently finished runs first.
func (a *MemoryArchive) ListRuns(_ context.Context, limit int) ([]core.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	a.mu.RLock()
	out := make([]core.RunSummary, 0, len(a.runs))
	for _, r := range a.runs {
		r.Artifacts = slices.Clone(r.Artifacts)
		out = append(out, r)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
