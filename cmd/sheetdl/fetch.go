package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sheet-downloader/internal/config"
	"sheet-downloader/internal/repository"
	"sheet-downloader/internal/repository/sqlite"
	"sheet-downloader/internal/service"
	"sheet-downloader/internal/sheets"
	"sheet-downloader/internal/storage"
)

func (a *app) fetchCommand() *cobra.Command {
	var sample bool
	cmd := &cobra.Command{
		Use:   "fetch [sheet-url]",
		Short: "Download a spreadsheet tab as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, err := a.fetchDefaults(cmd, sample)
			if err != nil {
				return err
			}
			sheetURL := ""
			if len(args) == 1 {
				sheetURL = args[0]
			}
			if sample && sheetURL == "" {
				sheetURL = config.SampleSheetURL
			}
			if sheetURL == "" {
				return errors.New("a sheet url is required unless --sample is set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runs, closeDB := a.openHistory(ctx)
			defer closeDB()
			store, err := buildStorage(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("setup storage: %w", err)
			}

			svc := service.NewFetchService(service.FetchConfig{
				Defaults: defaults,
				Upload: storage.UploadOptions{
					Bucket:    a.cfg.Storage.Bucket,
					KeyPrefix: a.cfg.Storage.KeyPrefix,
				},
				Logger: a.logger,
			}, runs, store)
			defer svc.Close()

			run, err := svc.Fetch(ctx, service.FetchInput{SheetURL: sheetURL})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), run.Destination)
			if run.S3Location != "" {
				fmt.Fprintln(cmd.OutOrStdout(), run.S3Location)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("download-dir", "", "directory the browser saves downloads into")
	flags.String("output-dir", "", "directory the CSV is moved into")
	flags.String("output-name", "", "file name of the moved CSV")
	flags.Bool("overwrite", false, "replace an existing destination file")
	flags.String("browser", "", "browser to open the export URL with (default, chrome, msedge, firefox or a path)")
	flags.Duration("timeout", 0, "how long to wait for the download")
	flags.Duration("poll-interval", 0, "how often the download directory is scanned")
	flags.BoolVar(&sample, "sample", false, "use the bundled sample preset; explicit download flags still apply on top of it")

	a.bindFlag(cmd, "download.directory", "download-dir")
	a.bindFlag(cmd, "download.outputdirectory", "output-dir")
	a.bindFlag(cmd, "download.outputfilename", "output-name")
	a.bindFlag(cmd, "download.overwritesexisting", "overwrite")
	a.bindFlag(cmd, "download.launchcommand", "browser")
	a.bindFlag(cmd, "download.timeout", "timeout")
	a.bindFlag(cmd, "download.pollinterval", "poll-interval")
	return cmd
}

// fetchDefaults returns the validated download options for a fetch. The sample
// preset replaces the configured values except for the download directory,
// the browser and any flag given on the command line.
func (a *app) fetchDefaults(cmd *cobra.Command, sample bool) (config.DownloadConfig, error) {
	cfg := a.cfg
	if sample {
		configured := cfg.Download
		preset := config.Sample()
		preset.Directory = configured.Directory
		preset.LaunchCommand = configured.LaunchCommand

		flags := cmd.Flags()
		if flags.Changed("output-dir") {
			preset.OutputDirectory = configured.OutputDirectory
		}
		if flags.Changed("output-name") {
			preset.OutputFileName = configured.OutputFileName
		}
		if flags.Changed("overwrite") {
			preset.OverwritesExisting = configured.OverwritesExisting
		}
		if flags.Changed("timeout") {
			preset.Timeout = configured.Timeout
		}
		if flags.Changed("poll-interval") {
			preset.PollInterval = configured.PollInterval
		}
		cfg.Download = preset
	}
	if err := cfg.Validate(); err != nil {
		return config.DownloadConfig{}, err
	}
	return cfg.Download, nil
}

func (a *app) exportURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export-url <sheet-url>",
		Short: "Print the CSV export URL of a spreadsheet tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportURL, err := sheets.ExportURL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exportURL)
			return nil
		},
	}
}

// openHistory returns a nil repository when the database cannot be opened so
// that fetching still works without a writable data directory.
func (a *app) openHistory(ctx context.Context) (repository.RunRepository, func()) {
	db, err := sqlite.Open(a.cfg.Database.Path)
	if err != nil {
		a.logger.Warnf("run history disabled: %v", err)
		return nil, func() {}
	}
	runs := sqlite.NewRunRepository(db)
	if err := runs.Init(ctx); err != nil {
		a.logger.Warnf("run history disabled: %v", err)
		_ = db.Close()
		return nil, func() {}
	}
	return runs, closer(db)
}

func closer(db *sql.DB) func() {
	return func() { _ = db.Close() }
}
