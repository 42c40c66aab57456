package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "Assets/", cfg.Download.OutputDirectory)
	assert.Equal(t, "sample.csv", cfg.Download.OutputFileName)
	assert.False(t, cfg.Download.OverwritesExisting)
	assert.Equal(t, "", cfg.Download.LaunchCommand)
	assert.Equal(t, 15*time.Second, cfg.Download.Timeout)
	assert.Equal(t, time.Second, cfg.Download.PollInterval)
	assert.Equal(t, []string{".crdownload", ".part", ".download"}, cfg.Download.MarkerSuffixes)
	assert.Equal(t, "Downloads", filepath.Base(cfg.Download.Directory))
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "sheets", cfg.Storage.KeyPrefix)
	assert.Equal(t, 60, cfg.Auth.TokenTTLMinutes)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHEETDL_DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("SHEETDL_DOWNLOAD_OVERWRITESEXISTING", "true")
	t.Setenv("SHEETDL_DOWNLOAD_LAUNCHCOMMAND", "chrome")
	t.Setenv("SHEETDL_STORAGE_BUCKET", "csv-mirror")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.True(t, cfg.Download.OverwritesExisting)
	assert.Equal(t, "chrome", cfg.Download.LaunchCommand)
	assert.Equal(t, "csv-mirror", cfg.Storage.Bucket)
}

func TestLoadFromFile(t *testing.T) {
	content := `
download:
  directory: /tmp/dl
  outputdirectory: data/sheets
  outputfilename: items.csv
  timeout: 20s
auth:
  tokenttlminutes: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/dl", cfg.Download.Directory)
	assert.Equal(t, "data/sheets", cfg.Download.OutputDirectory)
	assert.Equal(t, "items.csv", cfg.Download.OutputFileName)
	assert.Equal(t, 20*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 5, cfg.Auth.TokenTTLMinutes)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download: [yaml: content"), 0o644))

	v := New()
	v.SetConfigFile(path)
	_, err := Load(v)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.Download = Sample()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing directory", func(c *Config) { c.Download.Directory = "" }, true},
		{"missing file name", func(c *Config) { c.Download.OutputFileName = " " }, true},
		{"zero timeout", func(c *Config) { c.Download.Timeout = 0 }, true},
		{"zero poll interval", func(c *Config) { c.Download.PollInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() error = %v", err)
		})
	}
}

func TestSample(t *testing.T) {
	s := Sample()
	assert.True(t, s.OverwritesExisting)
	assert.Equal(t, "SpreadsheetDownloaderSample.csv", s.OutputFileName)
	assert.Equal(t, 15*time.Second, s.Timeout)
}
