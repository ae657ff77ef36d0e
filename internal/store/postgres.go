package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/spendcheck/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxDB is a DBTX that can open transactions, such as *pgxpool.Pool.
type TxDB interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// PostgresArchive stores run summaries in PostgreSQL.
type PostgresArchive struct {
	db TxDB
}

// NewPostgresArchive wraps a pool. Call Migrate once before use.
func NewPostgresArchive(db TxDB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// Migrate applies the archive schema. Statements are idempotent.
func (a *PostgresArchive) Migrate(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply archive schema: %w", err)
	}
	slog.Info("archive schema applied")
	return nil
}

const upsertRunSQL = `
INSERT INTO run_archive (run_id, file_name, status, total_rows, accepted, rejected, skipped, error, created_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
    file_name = EXCLUDED.file_name,
    status = EXCLUDED.status,
    total_rows = EXCLUDED.total_rows,
    accepted = EXCLUDED.accepted,
    rejected = EXCLUDED.rejected,
    skipped = EXCLUDED.skipped,
    error = EXCLUDED.error,
    finished_at = EXCLUDED.finished_at`

const insertArtifactSQL = `
INSERT INTO run_artifact (run_id, name, mime_type, row_count, size_bytes)
VALUES ($1, $2, $3, $4, $5)`

// SaveRun upserts the run and replaces its artifact rows in one transaction.
func (a *PostgresArchive) SaveRun(ctx context.Context, run core.RunSummary) error {
	id, err := toPgUUID(run.RunID)
	if err != nil {
		return err
	}

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertRunSQL,
		id,
		toPgText(run.FileName),
		string(run.Status),
		int32(run.TotalRows),
		int32(run.Accepted),
		int32(run.Rejected),
		int32(run.Skipped),
		toPgText(run.Error),
		toPgTimestamptz(run.CreatedAt),
		toPgTimestamptz(run.FinishedAt),
	); err != nil {
		return fmt.Errorf("archive run %s: %w", run.RunID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_artifact WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("clear artifacts for %s: %w", run.RunID, err)
	}
	for _, art := range run.Artifacts {
		if _, err := tx.Exec(ctx, insertArtifactSQL, id, art.Name, art.MimeType, int32(art.Rows), int32(art.Size)); err != nil {
			return fmt.Errorf("archive artifact %s: %w", art.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

const selectRunColumns = `run_id, file_name, status, total_rows, accepted, rejected, skipped, error, created_at, finished_at`

// GetRun returns one archived run with its artifacts.
func (a *PostgresArchive) GetRun(ctx context.Context, runID string) (core.RunSummary, error) {
	id, err := toPgUUID(runID)
	if err != nil {
		return core.RunSummary{}, ErrNotFound
	}

	row := a.db.QueryRow(ctx, `SELECT `+selectRunColumns+` FROM run_archive WHERE run_id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.RunSummary{}, ErrNotFound
	}
	if err != nil {
		return core.RunSummary{}, fmt.Errorf("get archived run: %w", err)
	}

	arts, err := a.artifacts(ctx, []string{run.RunID})
	if err != nil {
		return core.RunSummary{}, err
	}
	run.Artifacts = arts[run.RunID]
	return run, nil
}

// ListRuns returns the most recently finished runs first.
func (a *PostgresArchive) ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := a.db.Query(ctx,
		`SELECT `+selectRunColumns+` FROM run_archive ORDER BY finished_at DESC, run_id LIMIT $1`,
		int32(limit))
	if err != nil {
		return nil, fmt.Errorf("list archived runs: %w", err)
	}
	defer rows.Close()

	var (
		out []core.RunSummary
		ids []string
	)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived run: %w", err)
		}
		out = append(out, run)
		ids = append(ids, run.RunID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archived runs: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	arts, err := a.artifacts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Artifacts = arts[out[i].RunID]
	}
	return out, nil
}

func (a *PostgresArchive) artifacts(ctx context.Context, runIDs []string) (map[string][]core.ArtifactSummary, error) {
	rows, err := a.db.Query(ctx,
		`SELECT run_id, name, mime_type, row_count, size_bytes FROM run_artifact
		 WHERE run_id = ANY($1::uuid[]) ORDER BY run_id, name`,
		runIDs)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]core.ArtifactSummary)
	for rows.Next() {
		var (
			id       pgtype.UUID
			art      core.ArtifactSummary
			rowCount int32
			size     int32
		)
		if err := rows.Scan(&id, &art.Name, &art.MimeType, &rowCount, &size); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		art.Rows = int(rowCount)
		art.Size = int(size)
		key := fromPgUUID(id)
		out[key] = append(out[key], art)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (core.RunSummary, error) {
	var (
		id                                 pgtype.UUID
		fileName, errText                  pgtype.Text
		status                             string
		total, accepted, rejected, skipped int32
		createdAt, finishedAt              pgtype.Timestamptz
	)
	if err := row.Scan(&id, &fileName, &status, &total, &accepted, &rejected, &skipped, &errText, &createdAt, &finishedAt); err != nil {
		return core.RunSummary{}, err
	}
	return core.RunSummary{
		RunID:      fromPgUUID(id),
		FileName:   fileName.String,
		Status:     core.Status(status),
		TotalRows:  int(total),
		Accepted:   int(accepted),
		Rejected:   int(rejected),
		Skipped:    int(skipped),
		Error:      errText.String,
		CreatedAt:  createdAt.Time,
		FinishedAt: finishedAt.Time,
	}, nil
}

/* ----------------------------------------
	Pgx Helpers
---------------------------------------- */

func toPgUUID(s string) (pgtype.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

func fromPgUUID(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}
