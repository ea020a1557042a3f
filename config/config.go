package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X bmod-manager/config.Version=...".
var Version = "dev"

// Config holds all configuration for the application.
// Values are loaded by Viper from a config file and/or environment variables.
type Config struct {
	ModsDir        string `mapstructure:"MODS_DIR"`
	WorkerCommand  string `mapstructure:"WORKER_COMMAND"` // Empty runs this executable's worker subcommand
	PollIntervalMS int    `mapstructure:"POLL_INTERVAL_MS"`
	DownloadURL    string `mapstructure:"DOWNLOAD_URL"` // Must contain exactly one %s for the download id
	URLScheme      string `mapstructure:"URL_SCHEME"`
	UserAgent      string `mapstructure:"USERAGENT"`
	BaseModLabel   string `mapstructure:"BASE_MOD_LABEL"`
	LogFile        string `mapstructure:"LOG_FILE"`
	SortBy         string `mapstructure:"SORT_BY"`
	DatabasePath   string `mapstructure:"-"` // Not from env, derived
	CacheDir       string `mapstructure:"-"` // Not from env, derived
	LockPath       string `mapstructure:"-"` // Not from env, derived
}

var envKeys = []string{
	"MODS_DIR",
	"WORKER_COMMAND",
	"POLL_INTERVAL_MS",
	"DOWNLOAD_URL",
	"URL_SCHEME",
	"USERAGENT",
	"BASE_MOD_LABEL",
	"LOG_FILE",
	"SORT_BY",
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	vipErr := viper.ReadInConfig()
	if _, ok := vipErr.(viper.ConfigFileNotFoundError); ok {
		slog.Info("Config file (.env) not found, relying on environment variables.")
	} else if vipErr != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vipErr)
	}

	viper.AutomaticEnv()

	// Unmarshal only sees keys viper already knows about, so every key is
	// bound explicitly.
	for _, key := range envKeys {
		if err := viper.BindEnv(strings.ToLower(key), key); err != nil {
			slog.Warn("Unable to bind env var", "key", key, "error", err)
		}
	}

	if vipErr = viper.Unmarshal(&config); vipErr != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", vipErr)
	}

	processConfigDefaults(&config)
	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func processConfigDefaults(config *Config) {
	if config.ModsDir == "" {
		config.ModsDir = "Mods"
	}
	if config.PollIntervalMS <= 0 {
		config.PollIntervalMS = 10
	}
	if config.DownloadURL == "" {
		config.DownloadURL = "http://gamebanana.com/dl/%s"
	}
	if config.URLScheme == "" {
		config.URLScheme = "bmodloader"
	}
	if config.UserAgent == "" {
		config.UserAgent = "bmod-manager/" + Version
		slog.Warn("USERAGENT not set in config or environment, using default.")
	}
	if config.BaseModLabel == "" {
		config.BaseModLabel = "BMod Manager: " + Version
	}
	if config.LogFile == "" {
		config.LogFile = filepath.Join(filepath.Dir(filepath.Clean(config.ModsDir)), "bmod-manager.log")
	}
	if config.SortBy == "" {
		config.SortBy = "name"
	}
}

func validateAndEnsureDirectories(config *Config) error {
	if config.ModsDir == "" {
		slog.Error("MODS_DIR is not set")
		return fmt.Errorf("MODS_DIR is required")
	}
	if n := strings.Count(config.DownloadURL, "%s"); n != 1 {
		return fmt.Errorf("DOWNLOAD_URL must contain exactly one %%s, found %d", n)
	}

	config.DatabasePath = filepath.Join(config.ModsDir, ".bmod-manager.db")
	config.CacheDir = filepath.Join(config.ModsDir, ".cache")
	config.LockPath = filepath.Join(config.ModsDir, ".lock")

	for _, dir := range []string{config.ModsDir, config.CacheDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Info("Directory does not exist, creating it", "path", dir)
			if err := os.MkdirAll(dir, 0755); err != nil {
				slog.Error("Failed to create directory", "path", dir, "error", err)
				return err
			}
		} else if err != nil {
			slog.Error("Failed to check directory", "path", dir, "error", err)
			return err
		}
	}
	return nil
}

// WorkerArgs returns the command line that starts the worker process.
func (c Config) WorkerArgs() ([]string, error) {
	if fields := strings.Fields(c.WorkerCommand); len(fields) > 0 {
		return fields, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return []string{exe, "worker"}, nil
}

// PollInterval is how often the front end drains worker messages.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
