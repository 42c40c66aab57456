package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sheet-downloader/internal/domain"
	"sheet-downloader/internal/repository"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	sheet_url TEXT NOT NULL,
	export_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	destination TEXT NOT NULL DEFAULT '',
	s3_location TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	finished_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

const selectRunColumns = `
SELECT id, uuid, sheet_url, export_url, status, destination, s3_location, error_kind, error_message, created_at, updated_at, finished_at
FROM runs`

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) repository.RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.Run) (int64, error) {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO runs (uuid, sheet_url, export_url, status, destination, s3_location, error_kind, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.UUID,
		run.SheetURL,
		run.ExportURL,
		string(run.Status),
		run.Destination,
		run.S3Location,
		run.ErrorKind,
		run.ErrorMessage,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	run.ID = id
	return id, nil
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id int64, status domain.RunStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE runs
SET status=?, updated_at=?
WHERE id=?`,
		string(status),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return expectRow(res)
}

func (r *RunRepository) Finish(ctx context.Context, id int64, outcome repository.Outcome, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE runs
SET status=?, export_url=?, destination=?, s3_location=?, error_kind=?, error_message=?, updated_at=?, finished_at=?
WHERE id=?`,
		string(outcome.Status),
		outcome.ExportURL,
		outcome.Destination,
		outcome.S3Location,
		outcome.ErrorKind,
		outcome.ErrorMessage,
		time.Now().UTC(),
		finishedAt.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return expectRow(res)
}

func (r *RunRepository) Get(ctx context.Context, id int64) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, selectRunColumns+`
WHERE id=?`,
		id,
	)
	return scanRun(row)
}

// List returns the most recent runs first. A non-positive limit returns all runs.
func (r *RunRepository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, selectRunColumns+`
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func expectRow(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("run rows affected: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*domain.Run, error) {
	var (
		run        domain.Run
		status     string
		createdAt  time.Time
		updatedAt  time.Time
		finishedAt sql.NullTime
	)

	if err := scanner.Scan(
		&run.ID,
		&run.UUID,
		&run.SheetURL,
		&run.ExportURL,
		&status,
		&run.Destination,
		&run.S3Location,
		&run.ErrorKind,
		&run.ErrorMessage,
		&createdAt,
		&updatedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.CreatedAt = createdAt.Local()
	run.UpdatedAt = updatedAt.Local()
	if finishedAt.Valid {
		t := finishedAt.Time.Local()
		run.FinishedAt = &t
	}

	return &run, nil
}
