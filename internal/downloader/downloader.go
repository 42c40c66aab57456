package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"sheet-downloader/internal/domain"
	"sheet-downloader/internal/launcher"
	"sheet-downloader/internal/watcher"
)

// Downloader fetches a spreadsheet CSV through the user's browser and moves
// it to the request's output path.
type Downloader interface {
	DownloadCSV(ctx context.Context, exportURL string) (string, error)
	Close()
}

type Config struct {
	PollInterval   time.Duration
	SkewMargin     time.Duration
	MarkerSuffixes []string
	// Launcher overrides the process launcher built from the request's launch command.
	Launcher launcher.Launcher
	Logger   *logrus.Logger
}

type downloader struct {
	cfg      Config
	req      domain.DownloadRequest
	watcher  *watcher.Watcher
	launcher launcher.Launcher

	sem       chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New validates req and returns a Downloader that runs at most one download
// at a time. Close releases it.
func New(req domain.DownloadRequest, cfg Config) (Downloader, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SkewMargin <= 0 {
		cfg.SkewMargin = cfg.PollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Launcher == nil {
		cfg.Launcher = launcher.NewProcessLauncher(req.LaunchCommand, cfg.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &downloader{
		cfg: cfg,
		req: req,
		watcher: watcher.New(ctx, watcher.Config{
			Interval:       cfg.PollInterval,
			MarkerSuffixes: cfg.MarkerSuffixes,
			Logger:         cfg.Logger,
		}),
		launcher: cfg.Launcher,
		sem:      make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (d *downloader) DownloadCSV(ctx context.Context, exportURL string) (string, error) {
	if strings.TrimSpace(exportURL) == "" {
		return "", fmt.Errorf("%w: csv export url is required", domain.ErrInvalidInput)
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", domain.ErrUserCancelled, ctx.Err())
	case <-d.ctx.Done():
		return "", domain.ErrClientClosed
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	}
	if d.ctx.Err() != nil {
		return "", domain.ErrClientClosed
	}

	logger := d.cfg.Logger.WithField("dir", d.req.DownloadDirectory)

	since := time.Now().Add(-d.cfg.SkewMargin)
	go func() {
		if err := d.launcher.Launch(d.ctx, exportURL); err != nil {
			logger.Warnf("launch browser: %v", err)
		}
	}()
	logger.Infof("waiting up to %s for %s", d.req.Timeout, exportURL)

	src, err := d.watcher.Await(ctx, d.req.DownloadDirectory, since, d.req.Timeout)
	if err != nil {
		return "", err
	}

	dest, err := d.place(src)
	if err != nil {
		return "", err
	}
	logger.Infof("download moved to %s", dest)
	return dest, nil
}

// place moves src to the output path, honoring the overwrite policy.
func (d *downloader) place(src string) (string, error) {
	dest := d.req.OutputPath()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	if _, err := os.Lstat(dest); err == nil {
		if !d.req.OverwritesExisting {
			return "", fmt.Errorf("%w: %s", domain.ErrFilesystemConflict, dest)
		}
		if err := os.Remove(dest); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if err := moveFile(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (d *downloader) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		d.cfg.Logger.Debug("downloader closed")
	})
}

// moveFile renames src to dst, falling back to copy and remove when they live
// on different devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var _ Downloader = (*downloader)(nil)
