package repository

import (
	"context"
	"errors"
	"time"

	"sheet-downloader/internal/domain"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// RunRepository exposes persistence operations for the fetch history.
type RunRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, run *domain.Run) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.RunStatus) error
	Finish(ctx context.Context, id int64, outcome Outcome, finishedAt time.Time) error
	Get(ctx context.Context, id int64) (*domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
}

// Outcome is the terminal state recorded by Finish.
type Outcome struct {
	Status       domain.RunStatus
	ExportURL    string
	Destination  string
	S3Location   string
	ErrorKind    string
	ErrorMessage string
}
