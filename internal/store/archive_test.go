package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/spendcheck/internal/core"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func summary(id string, finished time.Duration) core.RunSummary {
	return core.RunSummary{
		RunID:      id,
		Status:     core.StatusCompleted,
		TotalRows:  3,
		Accepted:   2,
		Rejected:   1,
		Artifacts:  []core.ArtifactSummary{{Name: "success.csv", MimeType: "text/csv", Rows: 2, Size: 40}},
		CreatedAt:  base,
		FinishedAt: base.Add(finished),
	}
}

func TestMemoryArchive_SaveAndGet(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	run := summary("run-a", time.Minute)
	if err := a.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	run.Artifacts[0].Name = "mutated"

	got, err := a.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if diff := cmp.Diff(summary("run-a", time.Minute), got); diff != "" {
		t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
	}

	if _, err := a.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
	if err := a.SaveRun(ctx, core.RunSummary{}); err == nil {
		t.Error("SaveRun() without run id succeeded")
	}
}

func TestMemoryArchive_SaveReplaces(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()

	first := summary("run-a", time.Minute)
	second := summary("run-a", 2*time.Minute)
	second.Status = core.StatusFailed
	second.Error = "package: boom"
	for _, r := range []core.RunSummary{first, second} {
		if err := a.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	list, err := a.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(list) != 1 || list[0].Status != core.StatusFailed {
		t.Errorf("ListRuns() = %+v, want the replacement only", list)
	}
}

func TestMemoryArchive_ListOrderAndLimit(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	for _, r := range []core.RunSummary{
		summary("run-b", time.Minute),
		summary("run-c", 3*time.Minute),
		summary("run-a", time.Minute),
	} {
		if err := a.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"run-c", "run-a", "run-b"}},
		{2, []string{"run-c", "run-a"}},
	}
	for _, tt := range tests {
		list, err := a.ListRuns(ctx, tt.limit)
		if err != nil {
			t.Fatalf("ListRuns(%d) error = %v", tt.limit, err)
		}
		var ids []string
		for _, r := range list {
			ids = append(ids, r.RunID)
		}
		if diff := cmp.Diff(tt.want, ids); diff != "" {
			t.Errorf("ListRuns(%d) mismatch (-want +got):\n%s", tt.limit, diff)
		}
	}
}
