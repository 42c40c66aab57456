// Command sheetdl downloads Google Sheets tabs as CSV files through the local browser.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sheet-downloader/internal/config"
)

type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger *logrus.Logger
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	a := &app{v: config.New(), logger: logger}
	root := a.rootCommand()
	root.AddCommand(
		a.fetchCommand(),
		a.exportURLCommand(),
		a.serveCommand(),
		a.historyCommand(),
		a.hashPasswordCommand(),
	)

	if err := root.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	var (
		configFile string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "sheetdl",
		Short: "Download Google Sheets tabs as CSV files",
		Long: `Download a Google Sheets tab as CSV by opening its export URL in a browser,
waiting for the file to land in the download directory and moving it into place.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				a.logger.SetLevel(logrus.DebugLevel)
			}
			if configFile != "" {
				a.v.SetConfigFile(configFile)
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml or ~/.sheetdl/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		a.logger.Fatalf("bind flag %s: %v", flag, err)
	}
}
