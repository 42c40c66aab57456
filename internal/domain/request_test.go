package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloadRequest(t *testing.T) {
	dir := t.TempDir()

	req, err := NewDownloadRequest(" https://example.test/d/x/edit#gid=0 ", dir, "Assets", "sheet.csv", true, " chrome ", 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/d/x/edit#gid=0", req.SheetURL)
	assert.Equal(t, "chrome", req.LaunchCommand)
	assert.Equal(t, filepath.Join("Assets", "sheet.csv"), req.OutputPath())
}

func TestNewDownloadRequestInvalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name    string
		dir     string
		outName string
		timeout time.Duration
	}{
		{"missing directory", filepath.Join(dir, "missing"), "a.csv", time.Second},
		{"empty directory", "", "a.csv", time.Second},
		{"directory is a file", file, "a.csv", time.Second},
		{"zero timeout", dir, "a.csv", 0},
		{"negative timeout", dir, "a.csv", -time.Second},
		{"blank file name", dir, " ", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDownloadRequest("", tt.dir, "out", tt.outName, false, "", tt.timeout)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration))
		})
	}
}

func TestErrorKindAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		kind   string
		status RunStatus
	}{
		{nil, "", RunStatusCompleted},
		{ErrInvalidInput, "invalid_input", RunStatusFailed},
		{ErrInvalidConfiguration, "invalid_configuration", RunStatusFailed},
		{ErrUserCancelled, "user_cancelled", RunStatusCancelled},
		{ErrClientClosed, "client_closed", RunStatusCancelled},
		{&TimeoutError{Timeout: time.Second}, "timed_out", RunStatusTimedOut},
		{ErrFilesystemConflict, "filesystem_conflict", RunStatusConflict},
		{os.ErrPermission, "internal", RunStatusFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, ErrorKind(tt.err))
		assert.Equal(t, tt.status, StatusForError(tt.err))
	}
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{Timeout: 15 * time.Second})
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Contains(t, err.Error(), "15s")
}
