package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheet-downloader/internal/config"
	"sheet-downloader/internal/domain"
	"sheet-downloader/internal/launcher"
	"sheet-downloader/internal/repository"
	"sheet-downloader/internal/repository/sqlite"
	"sheet-downloader/internal/storage"
)

const sheetURL = "https://docs.google.com/spreadsheets/d/abc123/edit?gid=0#gid=7"

type browserStub struct {
	dir      string
	delay    time.Duration
	launches atomic.Int32
}

func (b *browserStub) Launch(ctx context.Context, url string) error {
	b.launches.Add(1)
	time.AfterFunc(b.delay, func() {
		_ = os.WriteFile(filepath.Join(b.dir, "abc123.csv"), []byte("a,b\n"), 0o644)
	})
	return nil
}

type storageStub struct {
	err      error
	uploaded []string
}

func (s *storageStub) UploadFile(ctx context.Context, localPath string, opts storage.UploadOptions) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploaded = append(s.uploaded, localPath)
	return "s3://" + opts.Bucket + "/" + storage.ObjectKey(opts.KeyPrefix, localPath), nil
}

func (s *storageStub) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

type fetchFixture struct {
	svc      FetchService
	runs     repository.RunRepository
	store    *storageStub
	browser  *browserStub
	outDir   string
	download string
	// commands records the launch command of every launcher built.
	commands []string
}

func newFetchFixture(t *testing.T, delay time.Duration) *fetchFixture {
	t.Helper()
	root := t.TempDir()
	download := filepath.Join(root, "Downloads")
	require.NoError(t, os.Mkdir(download, 0o755))

	db, err := sqlite.Open(filepath.Join(root, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	runs := sqlite.NewRunRepository(db)
	require.NoError(t, runs.Init(context.Background()))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fetchFixture{
		runs:     runs,
		store:    &storageStub{},
		browser:  &browserStub{dir: download, delay: delay},
		outDir:   filepath.Join(root, "Assets"),
		download: download,
	}
	f.svc = NewFetchService(FetchConfig{
		Defaults: config.DownloadConfig{
			Directory:       download,
			OutputDirectory: f.outDir,
			OutputFileName:  "sheet.csv",
			LaunchCommand:   "chrome",
			Timeout:         2 * time.Second,
			PollInterval:    20 * time.Millisecond,
		},
		Upload: storage.UploadOptions{Bucket: "mirror", KeyPrefix: "sheets"},
		NewLauncher: func(launchCommand string) launcher.Launcher {
			f.commands = append(f.commands, launchCommand)
			return f.browser
		},
		Logger: logger,
	}, runs, f.store)
	t.Cleanup(f.svc.Close)
	return f
}

func TestFetchRecordsCompletedRun(t *testing.T) {
	f := newFetchFixture(t, 40*time.Millisecond)

	run, err := f.svc.Fetch(context.Background(), FetchInput{SheetURL: sheetURL})
	require.NoError(t, err)

	dest := filepath.Join(f.outDir, "sheet.csv")
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=0", run.ExportURL)
	assert.Equal(t, dest, run.Destination)
	assert.Equal(t, "s3://mirror/sheets/sheet.csv", run.S3Location)
	assert.FileExists(t, dest)
	assert.Equal(t, []string{dest}, f.store.uploaded)

	stored, err := f.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.UUID, stored.UUID)
	assert.Equal(t, domain.RunStatusCompleted, stored.Status)
	assert.Equal(t, dest, stored.Destination)
	require.NotNil(t, stored.FinishedAt)
}

func TestFetchUsesRequestLaunchCommand(t *testing.T) {
	f := newFetchFixture(t, 40*time.Millisecond)

	_, err := f.svc.Fetch(context.Background(), FetchInput{SheetURL: sheetURL})
	require.NoError(t, err)

	overwrite := true
	_, err = f.svc.Fetch(context.Background(), FetchInput{
		SheetURL:      sheetURL,
		LaunchCommand: "firefox",
		Overwrite:     &overwrite,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"chrome", "firefox"}, f.commands)
	assert.Equal(t, int32(2), f.browser.launches.Load())
}

func TestFetchStartsRequestLaunchCommandProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the browser")
	}
	root := t.TempDir()
	download := filepath.Join(root, "Downloads")
	require.NoError(t, os.Mkdir(download, 0o755))

	script := filepath.Join(root, "browser.sh")
	body := "#!/bin/sh\nprintf 'a,b\\n' > '" + filepath.Join(download, "s.csv") + "'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewFetchService(FetchConfig{
		Defaults: config.DownloadConfig{
			Directory:       download,
			OutputDirectory: filepath.Join(root, "Assets"),
			OutputFileName:  "sheet.csv",
			LaunchCommand:   "/bin/true",
			Timeout:         2 * time.Second,
			PollInterval:    20 * time.Millisecond,
		},
		Logger: logger,
	}, nil, nil)
	defer svc.Close()

	run, err := svc.Fetch(context.Background(), FetchInput{SheetURL: sheetURL, LaunchCommand: script})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.FileExists(t, filepath.Join(root, "Assets", "sheet.csv"))
}

func TestFetchInvalidSheetURL(t *testing.T) {
	f := newFetchFixture(t, 0)

	run, err := f.svc.Fetch(context.Background(), FetchInput{SheetURL: "https://example.test/nothing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, int32(0), f.browser.launches.Load())
	assert.Empty(t, f.commands)

	stored, err := f.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, stored.Status)
	assert.Equal(t, "invalid_input", stored.ErrorKind)
}

func TestFetchConflictWithOverrides(t *testing.T) {
	f := newFetchFixture(t, 40*time.Millisecond)
	require.NoError(t, os.MkdirAll(f.outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.outDir, "custom.csv"), []byte("old"), 0o644))

	overwrite := false
	run, err := f.svc.Fetch(context.Background(), FetchInput{
		SheetURL:       sheetURL,
		OutputFileName: "custom.csv",
		Overwrite:      &overwrite,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFilesystemConflict))
	assert.Equal(t, domain.RunStatusConflict, run.Status)
	assert.Empty(t, f.store.uploaded)
}

func TestFetchMirrorFailure(t *testing.T) {
	f := newFetchFixture(t, 40*time.Millisecond)
	f.store.err = errors.New("access denied")

	run, err := f.svc.Fetch(context.Background(), FetchInput{SheetURL: sheetURL})
	require.Error(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, filepath.Join(f.outDir, "sheet.csv"), run.Destination)
	assert.Contains(t, run.ErrorMessage, "access denied")
}

func TestFetchCloseAbortsRun(t *testing.T) {
	f := newFetchFixture(t, time.Hour)
	time.AfterFunc(60*time.Millisecond, f.svc.Close)

	run, err := f.svc.Fetch(context.Background(), FetchInput{SheetURL: sheetURL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrClientClosed))
	assert.Equal(t, domain.RunStatusCancelled, run.Status)

	stored, err := f.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "client_closed", stored.ErrorKind)
}

func TestFetchWithoutHistory(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewFetchService(FetchConfig{
		Defaults: config.DownloadConfig{Directory: dir, OutputFileName: "x.csv", Timeout: time.Second},
		Logger:   logger,
	}, nil, nil)
	defer svc.Close()

	runs, err := svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = svc.GetRun(context.Background(), 1)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
