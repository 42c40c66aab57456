package domain

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusTimedOut  RunStatus = "timed_out"
	RunStatusConflict  RunStatus = "conflict"
)

// Run is the history record of one fetch of a spreadsheet.
type Run struct {
	ID           int64
	UUID         string
	SheetURL     string
	ExportURL    string
	Status       RunStatus
	Destination  string
	S3Location   string
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// IsFinished reports whether the run reached a terminal status.
func (r Run) IsFinished() bool {
	switch r.Status {
	case RunStatusPending, RunStatusRunning:
		return false
	}
	return true
}

// StatusForError maps the outcome of a fetch to the run status stored for it.
func StatusForError(err error) RunStatus {
	switch ErrorKind(err) {
	case "":
		return RunStatusCompleted
	case "user_cancelled", "client_closed":
		return RunStatusCancelled
	case "timed_out":
		return RunStatusTimedOut
	case "filesystem_conflict":
		return RunStatusConflict
	default:
		return RunStatusFailed
	}
}
