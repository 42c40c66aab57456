package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DownloadConfig holds the options consumed by a single CSV download.
type DownloadConfig struct {
	Directory          string
	OutputDirectory    string
	OutputFileName     string
	OverwritesExisting bool
	LaunchCommand      string
	Timeout            time.Duration
	PollInterval       time.Duration
	MarkerSuffixes     []string
}

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Download DownloadConfig
	Server   struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Auth struct {
		JWTSecret       string
		PasswordHash    string
		TokenTTLMinutes int
	}
}

// New returns a viper instance with the sheet downloader defaults registered.
// Callers may bind flags to it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SHEETDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("download.directory", defaultDownloadDirectory())
	v.SetDefault("download.outputdirectory", "Assets/")
	v.SetDefault("download.outputfilename", "sample.csv")
	v.SetDefault("download.overwritesexisting", false)
	v.SetDefault("download.launchcommand", "")
	v.SetDefault("download.timeout", 15*time.Second)
	v.SetDefault("download.pollinterval", time.Second)
	v.SetDefault("download.markersuffixes", []string{".crdownload", ".part", ".download"})
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("database.path", "data/sheetdl.db")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "sheets")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.passwordhash", "")
	v.SetDefault("auth.tokenttlminutes", 60)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".sheetdl"))
	}
	return v
}

// Load reads configuration from environment variables and optional config files.
func Load(v *viper.Viper) (Config, error) {
	loadDotEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Download.Directory) == "" {
		return errors.New("config: download.directory is required")
	}
	if strings.TrimSpace(c.Download.OutputFileName) == "" {
		return errors.New("config: download.outputfilename is required")
	}
	if c.Download.Timeout <= 0 {
		return errors.New("config: download.timeout must be positive")
	}
	if c.Download.PollInterval <= 0 {
		return errors.New("config: download.pollinterval must be positive")
	}
	return nil
}

// Sample is the pre-filled preset that downloads the public sample sheet and
// overwrites the previous copy.
func Sample() DownloadConfig {
	return DownloadConfig{
		Directory:          defaultDownloadDirectory(),
		OutputDirectory:    "Assets/",
		OutputFileName:     "SpreadsheetDownloaderSample.csv",
		OverwritesExisting: true,
		Timeout:            15 * time.Second,
		PollInterval:       time.Second,
		MarkerSuffixes:     []string{".crdownload", ".part", ".download"},
	}
}

// SampleSheetURL is the public spreadsheet used by the Sample preset.
const SampleSheetURL = "https://docs.google.com/spreadsheets/d/1yr_XvnNwMYrADDH_v4caCumOFEfYsI5mBXB20HapJrQ/edit?gid=0#gid=0"

func defaultDownloadDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
