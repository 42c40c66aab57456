package main

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheet-downloader/internal/config"
)

func newFetchApp(t *testing.T, args ...string) (*app, *cobra.Command) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a := &app{v: config.New(), logger: logger}
	cmd := a.fetchCommand()
	require.NoError(t, cmd.ParseFlags(append([]string{"--download-dir", t.TempDir()}, args...)))

	cfg, err := config.Load(a.v)
	require.NoError(t, err)
	a.cfg = cfg
	return a, cmd
}

func TestFetchDefaultsSamplePreset(t *testing.T) {
	a, cmd := newFetchApp(t, "--browser", "firefox")

	defaults, err := a.fetchDefaults(cmd, true)
	require.NoError(t, err)
	sample := config.Sample()
	assert.Equal(t, a.cfg.Download.Directory, defaults.Directory)
	assert.Equal(t, sample.OutputFileName, defaults.OutputFileName)
	assert.Equal(t, sample.OutputDirectory, defaults.OutputDirectory)
	assert.True(t, defaults.OverwritesExisting)
	assert.Equal(t, "firefox", defaults.LaunchCommand)
}

func TestFetchDefaultsFlagsOverrideSamplePreset(t *testing.T) {
	a, cmd := newFetchApp(t,
		"--overwrite=false",
		"--output-dir", "exports",
		"--output-name", "mine.csv",
		"--timeout", "20s",
	)

	defaults, err := a.fetchDefaults(cmd, true)
	require.NoError(t, err)
	assert.False(t, defaults.OverwritesExisting)
	assert.Equal(t, "exports", defaults.OutputDirectory)
	assert.Equal(t, "mine.csv", defaults.OutputFileName)
	assert.Equal(t, 20*time.Second, defaults.Timeout)
	assert.Equal(t, config.Sample().PollInterval, defaults.PollInterval)
}

func TestFetchDefaultsRejectsInvalidConfig(t *testing.T) {
	a, cmd := newFetchApp(t, "--poll-interval", "0s")
	_, err := a.fetchDefaults(cmd, false)
	assert.ErrorContains(t, err, "pollinterval")

	a, cmd = newFetchApp(t, "--timeout", "0s")
	_, err = a.fetchDefaults(cmd, true)
	assert.ErrorContains(t, err, "timeout")
}

func TestFetchDefaultsWithoutSample(t *testing.T) {
	a, cmd := newFetchApp(t, "--output-name", "plain.csv")

	defaults, err := a.fetchDefaults(cmd, false)
	require.NoError(t, err)
	assert.Equal(t, "plain.csv", defaults.OutputFileName)
	assert.False(t, defaults.OverwritesExisting)
	assert.Equal(t, 15*time.Second, defaults.Timeout)
}
