package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunSummary is the archived record of a finished run.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	FileName   string            `json:"file_name,omitempty"`
	Status     Status            `json:"status"`
	TotalRows  int               `json:"total_rows"`
	Accepted   int               `json:"accepted"`
	Rejected   int               `json:"rejected"`
	Skipped    int               `json:"skipped"`
	Artifacts  []ArtifactSummary `json:"artifacts"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ArtifactSummary describes an artifact without its contents.
type ArtifactSummary struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Rows     int    `json:"rows"`
	Size     int    `json:"size"`
}

// Archiver persists summaries of finished runs.
type Archiver interface {
	SaveRun(ctx context.Context, run RunSummary) error
}

// DefaultRetention is how long a finished run stays in memory.
const DefaultRetention = time.Hour

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxRuns   int
	MaxWait   time.Duration
	Retention time.Duration
	Session   SessionOptions
	Archiver  Archiver
}

// Manager owns the live runs of the process. Each run is an independent
// Session; the manager only registers them, bounds their number, drives the
// fix timeout and archives them once they finish.
type Manager struct {
	mu   sync.RWMutex
	runs map[string]*managedRun

	limiter   *RunLimiter
	opts      SessionOptions
	archiver  Archiver
	retention time.Duration
	now       func() time.Time
}

type managedRun struct {
	session   *Session
	holdSlot  bool
	archived  bool
	settledAt time.Time
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		runs:      make(map[string]*managedRun),
		limiter:   NewRunLimiter(cfg.MaxRuns, cfg.MaxWait),
		opts:      cfg.Session,
		archiver:  cfg.Archiver,
		retention: cfg.Retention,
		now:       cfg.Session.Clock,
	}
	if m.retention <= 0 {
		m.retention = DefaultRetention
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Create registers a new run. A non-empty fileName starts the upload step.
// Returns ErrTooManyRuns when no slot frees up within the limiter's wait.
func (m *Manager) Create(ctx context.Context, fileName string) (*Session, error) {
	if err := m.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := NewSession(id, m.opts)
	if fileName != "" {
		if err := s.BeginUpload(fileName); err != nil {
			m.limiter.Release()
			return nil, err
		}
	}

	m.mu.Lock()
	m.runs[id] = &managedRun{session: s, holdSlot: true}
	m.mu.Unlock()

	slog.InfoContext(ctx, "run created", "run_id", id, "file", fileName, "client_ip", ClientIPFromContext(ctx))
	return s, nil
}

// Get returns a run by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return r.session, nil
}

// List returns the state of every run, oldest first.
func (m *Manager) List() []StateView {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.runs))
	for _, r := range m.runs {
		sessions = append(sessions, r.session)
	}
	m.mu.RUnlock()

	out := make([]StateView, len(sessions))
	for i, s := range sessions {
		out[i] = s.State()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

// Remove discards a run and frees its slot.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	if ok {
		delete(m.runs, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if r.holdSlot {
		m.limiter.Release()
	}
	slog.Info("run removed", "run_id", id)
	return nil
}

// Settle releases the slot of a run that reached a terminal status and
// archives it once. Non-terminal runs are left alone. The run stays
// readable until Sweep evicts it after the retention period.
func (m *Manager) Settle(ctx context.Context, id string) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if !r.session.Status().IsTerminal() || r.archived {
		m.mu.Unlock()
		return nil
	}
	release := r.holdSlot
	r.holdSlot = false
	r.archived = true
	r.settledAt = m.now()
	m.mu.Unlock()

	if release {
		m.limiter.Release()
	}
	if m.archiver == nil {
		return nil
	}
	summary := r.session.Summary()
	if err := m.archiver.SaveRun(ctx, summary); err != nil {
		slog.ErrorContext(ctx, "archive run failed", "run_id", id, "error", err)
		return fmt.Errorf("archive run %s: %w", id, err)
	}
	slog.InfoContext(ctx, "run archived", "run_id", id, "status", summary.Status)
	return nil
}

// Sweep evaluates the fix timeout of every run at now, settles runs that
// finished and evicts settled runs older than the retention period.
// Returns the number of runs that auto-skipped.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	fired := 0
	for _, id := range ids {
		s, err := m.Get(id)
		if err != nil {
			continue
		}
		ok, err := s.Tick(now)
		if err != nil {
			slog.ErrorContext(ctx, "timeout sweep failed", "run_id", id, "error", err)
			continue
		}
		if ok {
			fired++
		}
		_ = m.Settle(ctx, id)
	}
	m.evict(now)
	return fired
}

// evict drops settled runs whose retention has passed at now.
func (m *Manager) evict(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.runs {
		if r.archived && now.Sub(r.settledAt) >= m.retention {
			delete(m.runs, id)
			slog.Info("run evicted", "run_id", id)
		}
	}
}

// StartTimeoutSweeper polls every run's fix timeout until ctx is cancelled.
// Polling is safe to repeat: a window fires at most once.
func (m *Manager) StartTimeoutSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	slog.Info("timeout sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("timeout sweeper stopped")
			return
		case now := <-ticker.C:
			if n := m.Sweep(ctx, now); n > 0 {
				slog.Info("fix windows expired", "runs", n)
			}
		}
	}
}

// LimiterStatus reports live-run slot usage.
func (m *Manager) LimiterStatus() RunLimiterStatus {
	return m.limiter.Status()
}

// Summary returns the archive record of the run in its current state.
func (s *Session) Summary() RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := RunSummary{
		RunID:      s.id,
		FileName:   s.fileName,
		Status:     s.machine.Status(),
		TotalRows:  s.store.Len(),
		Skipped:    len(s.ledger.SkippedRows()),
		CreatedAt:  s.createdAt,
		FinishedAt: s.now(),
	}
	if s.result != nil {
		sum.Accepted = s.result.AcceptedCount
		sum.Rejected = s.result.RejectedCount
	}
	for _, a := range s.artifacts {
		sum.Artifacts = append(sum.Artifacts, ArtifactSummary{
			Name: a.Name, MimeType: a.MimeType, Rows: a.Rows, Size: a.Size(),
		})
	}
	if s.failure != nil {
		sum.Error = s.failure.Error()
	}
	return sum
}
