package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sheet-downloader/internal/config"
	"sheet-downloader/internal/domain"
	"sheet-downloader/internal/downloader"
	"sheet-downloader/internal/launcher"
	"sheet-downloader/internal/repository"
	"sheet-downloader/internal/sheets"
	"sheet-downloader/internal/storage"
)

// FetchInput names the sheet to fetch. Zero-valued overrides fall back to the
// service defaults.
type FetchInput struct {
	SheetURL        string
	OutputDirectory string
	OutputFileName  string
	Overwrite       *bool
	LaunchCommand   string
	Timeout         time.Duration
}

// FetchService runs spreadsheet downloads one at a time and keeps their history.
type FetchService interface {
	Fetch(ctx context.Context, in FetchInput) (*domain.Run, error)
	GetRun(ctx context.Context, id int64) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	Close()
}

type FetchConfig struct {
	Defaults config.DownloadConfig
	// Upload enables mirroring finished files when Bucket is set.
	Upload storage.UploadOptions
	// NewLauncher builds the browser launcher for a request's launch command.
	// Defaults to launcher.NewProcessLauncher.
	NewLauncher func(launchCommand string) launcher.Launcher
	Logger      *logrus.Logger
}

type fetchService struct {
	cfg     FetchConfig
	runs    repository.RunRepository
	storage storage.Service

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewFetchService wires a fetch service. runs and store may be nil, which
// disables history and mirroring respectively.
func NewFetchService(cfg FetchConfig, runs repository.RunRepository, store storage.Service) FetchService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.NewLauncher == nil {
		logger := cfg.Logger
		cfg.NewLauncher = func(launchCommand string) launcher.Launcher {
			return launcher.NewProcessLauncher(launchCommand, logger)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &fetchService{
		cfg:     cfg,
		runs:    runs,
		storage: store,
		sem:     make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *fetchService) Fetch(ctx context.Context, in FetchInput) (*domain.Run, error) {
	run := &domain.Run{
		UUID:     uuid.NewString(),
		SheetURL: in.SheetURL,
		Status:   domain.RunStatusPending,
	}
	logger := s.cfg.Logger.WithField("run", run.UUID)

	if s.runs != nil {
		if _, err := s.runs.Create(ctx, run); err != nil {
			return nil, err
		}
	}

	err := s.fetch(ctx, logger, run, in)
	s.finish(ctx, logger, run, err)
	return run, err
}

func (s *fetchService) fetch(ctx context.Context, logger *logrus.Entry, run *domain.Run, in FetchInput) error {
	exportURL, err := sheets.ExportURL(run.SheetURL)
	if err != nil {
		return err
	}
	run.ExportURL = exportURL

	req, err := s.request(in)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrUserCancelled, ctx.Err())
	case <-s.ctx.Done():
		return domain.ErrClientClosed
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	}

	d, err := downloader.New(req, downloader.Config{
		PollInterval:   s.cfg.Defaults.PollInterval,
		MarkerSuffixes: s.cfg.Defaults.MarkerSuffixes,
		Launcher:       s.cfg.NewLauncher(req.LaunchCommand),
		Logger:         s.cfg.Logger,
	})
	if err != nil {
		return err
	}
	defer d.Close()
	stop := context.AfterFunc(s.ctx, d.Close)
	defer stop()

	run.Status = domain.RunStatusRunning
	if s.runs != nil {
		if err := s.runs.UpdateStatus(ctx, run.ID, run.Status); err != nil {
			logger.Warnf("update run status: %v", err)
		}
	}

	logger.Infof("fetching %s", exportURL)
	dest, err := d.DownloadCSV(ctx, exportURL)
	if err != nil {
		return err
	}
	run.Destination = dest

	if s.storage != nil && s.cfg.Upload.Bucket != "" {
		location, err := s.storage.UploadFile(ctx, dest, s.cfg.Upload)
		if err != nil {
			return fmt.Errorf("mirror to storage: %w", err)
		}
		run.S3Location = location
		logger.Infof("mirrored to %s", location)
	}
	return nil
}

func (s *fetchService) request(in FetchInput) (domain.DownloadRequest, error) {
	d := s.cfg.Defaults
	outDir := d.OutputDirectory
	if in.OutputDirectory != "" {
		outDir = in.OutputDirectory
	}
	outName := d.OutputFileName
	if in.OutputFileName != "" {
		outName = in.OutputFileName
	}
	overwrite := d.OverwritesExisting
	if in.Overwrite != nil {
		overwrite = *in.Overwrite
	}
	launch := d.LaunchCommand
	if in.LaunchCommand != "" {
		launch = in.LaunchCommand
	}
	timeout := d.Timeout
	if in.Timeout > 0 {
		timeout = in.Timeout
	}
	return domain.NewDownloadRequest(in.SheetURL, d.Directory, outDir, outName, overwrite, launch, timeout)
}

// finish records the outcome even when ctx was cancelled.
func (s *fetchService) finish(ctx context.Context, logger *logrus.Entry, run *domain.Run, err error) {
	now := time.Now()
	run.Status = domain.StatusForError(err)
	run.ErrorKind = domain.ErrorKind(err)
	if err != nil {
		run.ErrorMessage = err.Error()
		logger.WithField("kind", run.ErrorKind).Errorf("fetch failed: %v", err)
	}
	run.FinishedAt = &now

	if s.runs == nil {
		return
	}
	if ferr := s.runs.Finish(context.WithoutCancel(ctx), run.ID, repository.Outcome{
		Status:       run.Status,
		ExportURL:    run.ExportURL,
		Destination:  run.Destination,
		S3Location:   run.S3Location,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
	}, now); ferr != nil {
		logger.Warnf("record run outcome: %v", ferr)
	}
}

func (s *fetchService) GetRun(ctx context.Context, id int64) (*domain.Run, error) {
	if s.runs == nil {
		return nil, repository.ErrNotFound
	}
	return s.runs.Get(ctx, id)
}

func (s *fetchService) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if s.runs == nil {
		return []domain.Run{}, nil
	}
	return s.runs.List(ctx, limit)
}

// Close aborts an in-flight fetch with domain.ErrClientClosed. It is safe to call more than once.
func (s *fetchService) Close() {
	s.cancel()
}
