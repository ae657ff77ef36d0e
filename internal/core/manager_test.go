package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingArchiver struct {
	mu   sync.Mutex
	runs []RunSummary
	err  error
}

func (a *recordingArchiver) SaveRun(_ context.Context, run RunSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.runs = append(a.runs, run)
	return nil
}

func (a *recordingArchiver) saved() []RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RunSummary(nil), a.runs...)
}

func newTestManager(maxRuns int, archiver Archiver) (*Manager, *fakeClock) {
	clock := &fakeClock{t: t0}
	m := NewManager(ManagerConfig{
		MaxRuns:  maxRuns,
		MaxWait:  20 * time.Millisecond,
		Session:  SessionOptions{Clock: clock.Now, Format: FormatCSV, FixWindow: 30 * time.Second},
		Archiver: archiver,
	})
	return m, clock
}

func TestManager_CreateGetList(t *testing.T) {
	m, clock := newTestManager(5, nil)
	ctx := context.Background()

	first, err := m.Create(ctx, "march.csv")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	clock.Advance(time.Second)
	second, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if first.Status() != StatusUploading || second.Status() != StatusIdle {
		t.Errorf("statuses = %s, %s, want UPLOADING, IDLE", first.Status(), second.Status())
	}
	got, err := m.Get(first.ID())
	if err != nil || got != first {
		t.Errorf("Get() = %v, %v", got, err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get() error = %v, want ErrRunNotFound", err)
	}

	list := m.List()
	if len(list) != 2 || list[0].RunID != first.ID() || list[0].FileName != "march.csv" {
		t.Errorf("List() = %+v, want oldest first", list)
	}
	if st := m.LimiterStatus(); st.Active != 2 || st.MaxRuns != 5 {
		t.Errorf("LimiterStatus() = %+v", st)
	}
}

func TestManager_TooManyRuns(t *testing.T) {
	m, _ := newTestManager(1, nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Create(ctx, ""); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("Create() error = %v, want ErrTooManyRuns", err)
	}

	if err := m.Remove(s.ID()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Remove(s.ID()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second Remove() error = %v, want ErrRunNotFound", err)
	}
	if _, err := m.Create(ctx, ""); err != nil {
		t.Errorf("Create() after Remove error = %v", err)
	}
}

func TestManager_SettleArchivesOnce(t *testing.T) {
	archiver := &recordingArchiver{}
	m, _ := newTestManager(1, archiver)
	ctx := context.Background()

	s, err := m.Create(ctx, "clean.csv")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Ingest(nil, []map[string]any{validRecord("EMP001")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := m.Settle(ctx, s.ID()); err != nil {
		t.Fatalf("Settle() on live run error = %v", err)
	}
	if len(archiver.saved()) != 0 {
		t.Fatal("live run was archived")
	}

	if _, err := s.Validate(""); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := s.Package(); err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	for range 2 {
		if err := m.Settle(ctx, s.ID()); err != nil {
			t.Fatalf("Settle() error = %v", err)
		}
	}

	saved := archiver.saved()
	if len(saved) != 1 {
		t.Fatalf("archived %d times, want 1", len(saved))
	}
	if saved[0].RunID != s.ID() || saved[0].Status != StatusCompleted || saved[0].Accepted != 1 || saved[0].FileName != "clean.csv" {
		t.Errorf("summary = %+v", saved[0])
	}
	if m.LimiterStatus().Active != 0 {
		t.Error("terminal run still holds its slot")
	}

	// The settled run stays readable and removing it must not release twice.
	if err := m.Remove(s.ID()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := m.LimiterStatus().Active; got != 0 {
		t.Errorf("Active = %d after Remove, want 0", got)
	}
}

func TestManager_SettleReportsArchiveError(t *testing.T) {
	archiver := &recordingArchiver{err: errors.New("db down")}
	m, _ := newTestManager(2, archiver)
	ctx := context.Background()

	s, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Fail(errors.New("boom"))
	if err := m.Settle(ctx, s.ID()); err == nil {
		t.Error("Settle() error = nil, want archive failure")
	}
	if err := m.Settle(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Settle() error = %v, want ErrRunNotFound", err)
	}
}

func TestManager_SweepExpiresWaitingRuns(t *testing.T) {
	m, _ := newTestManager(3, nil)
	ctx := context.Background()

	waiting, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := waiting.Ingest(nil, []map[string]any{withField(validRecord("EMP001"), FieldVendor, "")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := waiting.Validate(""); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := m.Create(ctx, ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if n := m.Sweep(ctx, t0.Add(10*time.Second)); n != 0 {
		t.Errorf("Sweep() before expiry = %d, want 0", n)
	}
	if n := m.Sweep(ctx, t0.Add(31*time.Second)); n != 1 {
		t.Errorf("Sweep() after expiry = %d, want 1", n)
	}
	if n := m.Sweep(ctx, t0.Add(40*time.Second)); n != 0 {
		t.Errorf("second Sweep() = %d, want 0", n)
	}
	if waiting.Status() != StatusRunning {
		t.Errorf("Status() = %s, want RUNNING", waiting.Status())
	}
}

func TestManager_StartTimeoutSweeperStops(t *testing.T) {
	m, _ := newTestManager(1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.StartTimeoutSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestManager_SweepEvictsSettledRuns(t *testing.T) {
	archiver := &recordingArchiver{}
	m, clock := newTestManager(2, archiver)
	ctx := context.Background()

	s, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Fail(errors.New("boom"))
	live, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	m.Sweep(ctx, clock.Now())
	if len(archiver.saved()) != 1 {
		t.Fatalf("archived %d runs, want 1", len(archiver.saved()))
	}

	m.Sweep(ctx, t0.Add(DefaultRetention-time.Second))
	if _, err := m.Get(s.ID()); err != nil {
		t.Fatalf("Get() before retention error = %v", err)
	}

	m.Sweep(ctx, t0.Add(DefaultRetention))
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get() after retention error = %v, want ErrRunNotFound", err)
	}
	if _, err := m.Get(live.ID()); err != nil {
		t.Errorf("live run evicted: %v", err)
	}
	if got := len(m.List()); got != 1 {
		t.Errorf("List() has %d runs, want 1", got)
	}
}
