package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput indicates a malformed spreadsheet URL or a blank export URL.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfiguration indicates a request that cannot be constructed, such as a missing watched directory.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUserCancelled is returned when the caller cancelled the download while it was being watched.
	ErrUserCancelled = errors.New("download cancelled by caller")
	// ErrClientClosed is returned when the downloader was closed while a download was being watched.
	ErrClientClosed = errors.New("downloader is closed")
	// ErrTimedOut is matched by every TimeoutError.
	ErrTimedOut = errors.New("download timed out")
	// ErrFilesystemConflict indicates the destination file exists and overwriting is disabled.
	ErrFilesystemConflict = errors.New("destination already exists")
)

// TimeoutError reports that no finished download appeared within Timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("the download was canceled due to the configured timeout of %s elapsing", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

// ErrorKind returns a short, stable label for err suitable for persisting and API responses.
func ErrorKind(err error) string {
	var timeoutErr *TimeoutError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, ErrUserCancelled):
		return "user_cancelled"
	case errors.Is(err, ErrClientClosed):
		return "client_closed"
	case errors.As(err, &timeoutErr):
		return "timed_out"
	case errors.Is(err, ErrFilesystemConflict):
		return "filesystem_conflict"
	default:
		return "internal"
	}
}
