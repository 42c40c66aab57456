package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DownloadRequest describes one spreadsheet CSV download. Build it with
// NewDownloadRequest and pass it by value.
type DownloadRequest struct {
	SheetURL           string
	DownloadDirectory  string
	OutputDirectory    string
	OutputFileName     string
	OverwritesExisting bool
	// LaunchCommand is the browser binary to open the export URL with.
	// Empty means the platform's default URL handler.
	LaunchCommand string
	Timeout       time.Duration
}

// NewDownloadRequest validates the request; the watched directory must already exist.
func NewDownloadRequest(sheetURL, downloadDir, outputDir, outputFileName string, overwrite bool, launchCommand string, timeout time.Duration) (DownloadRequest, error) {
	req := DownloadRequest{
		SheetURL:           strings.TrimSpace(sheetURL),
		DownloadDirectory:  downloadDir,
		OutputDirectory:    outputDir,
		OutputFileName:     outputFileName,
		OverwritesExisting: overwrite,
		LaunchCommand:      strings.TrimSpace(launchCommand),
		Timeout:            timeout,
	}
	if err := req.Validate(); err != nil {
		return DownloadRequest{}, err
	}
	return req, nil
}

// Validate checks the construction invariants of the request.
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.DownloadDirectory) == "" {
		return fmt.Errorf("%w: download directory is required", ErrInvalidConfiguration)
	}
	info, err := os.Stat(r.DownloadDirectory)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: invalid path: %s", ErrInvalidConfiguration, r.DownloadDirectory)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfiguration, r.Timeout)
	}
	if strings.TrimSpace(r.OutputFileName) == "" {
		return fmt.Errorf("%w: output file name is required", ErrInvalidConfiguration)
	}
	return nil
}

// OutputPath is where the finished CSV is moved to.
func (r DownloadRequest) OutputPath() string {
	return filepath.Join(r.OutputDirectory, r.OutputFileName)
}
