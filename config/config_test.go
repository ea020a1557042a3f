package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestProcessConfigDefaults(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{}
		processConfigDefaults(&cfg)

		if cfg.ModsDir != "Mods" {
			t.Errorf("Expected ModsDir to be Mods, got %s", cfg.ModsDir)
		}
		if cfg.PollIntervalMS != 10 {
			t.Errorf("Expected PollIntervalMS to be 10, got %d", cfg.PollIntervalMS)
		}
		if cfg.DownloadURL != "http://gamebanana.com/dl/%s" {
			t.Errorf("Unexpected DownloadURL %s", cfg.DownloadURL)
		}
		if cfg.URLScheme != "bmodloader" {
			t.Errorf("Expected URLScheme to be bmodloader, got %s", cfg.URLScheme)
		}
		if cfg.UserAgent == "" {
			t.Error("Expected UserAgent to have a default value")
		}
		if cfg.BaseModLabel != "BMod Manager: "+Version {
			t.Errorf("Unexpected BaseModLabel %s", cfg.BaseModLabel)
		}
		if cfg.LogFile != "bmod-manager.log" {
			t.Errorf("Expected LogFile next to the mods dir, got %s", cfg.LogFile)
		}
		if cfg.SortBy != "name" {
			t.Errorf("Expected SortBy to be name, got %s", cfg.SortBy)
		}
	})

	t.Run("respects existing values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{
			ModsDir:        "/games/bm/Mods",
			PollIntervalMS: 50,
			URLScheme:      "custom",
			UserAgent:      "custom-agent",
			LogFile:        "/tmp/x.log",
		}
		processConfigDefaults(&cfg)

		if cfg.PollIntervalMS != 50 {
			t.Errorf("Expected PollIntervalMS to stay 50, got %d", cfg.PollIntervalMS)
		}
		if cfg.URLScheme != "custom" {
			t.Errorf("Expected URLScheme to stay custom, got %s", cfg.URLScheme)
		}
		if cfg.UserAgent != "custom-agent" {
			t.Errorf("Expected UserAgent to stay custom-agent, got %s", cfg.UserAgent)
		}
		if cfg.LogFile != "/tmp/x.log" {
			t.Errorf("Expected LogFile to stay /tmp/x.log, got %s", cfg.LogFile)
		}
	})

	t.Run("log file beside mods dir", func(t *testing.T) {
		cfg := Config{ModsDir: "/games/bm/Mods/"}
		processConfigDefaults(&cfg)
		if want := filepath.Join("/games/bm", "bmod-manager.log"); cfg.LogFile != want {
			t.Errorf("LogFile = %s, want %s", cfg.LogFile, want)
		}
	})
}

func TestValidateAndEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing mods dir", func(t *testing.T) {
		cfg := Config{ModsDir: "", DownloadURL: "http://x/%s"}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for missing ModsDir")
		}
	})

	t.Run("bad download url", func(t *testing.T) {
		for _, url := range []string{"http://x/", "http://x/%s/%s"} {
			cfg := Config{ModsDir: filepath.Join(tmpDir, "bad"), DownloadURL: url}
			if err := validateAndEnsureDirectories(&cfg); err == nil {
				t.Errorf("Expected error for DownloadURL %q", url)
			}
		}
	})

	t.Run("creates directories", func(t *testing.T) {
		modsDir := filepath.Join(tmpDir, "Mods")
		cfg := Config{ModsDir: modsDir, DownloadURL: "http://x/%s"}
		if err := validateAndEnsureDirectories(&cfg); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		for _, path := range []string{modsDir, cfg.CacheDir} {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				t.Errorf("Directory %s was not created", path)
			}
		}
		if cfg.DatabasePath != filepath.Join(modsDir, ".bmod-manager.db") {
			t.Errorf("Unexpected DatabasePath %s", cfg.DatabasePath)
		}
		if cfg.LockPath != filepath.Join(modsDir, ".lock") {
			t.Errorf("Unexpected LockPath %s", cfg.LockPath)
		}
	})
}

func TestWorkerArgs(t *testing.T) {
	cfg := Config{WorkerCommand: "  python  controller.py --quiet "}
	args, err := cfg.WorkerArgs()
	if err != nil {
		t.Fatalf("WorkerArgs: %v", err)
	}
	if len(args) != 3 || args[0] != "python" || args[2] != "--quiet" {
		t.Errorf("WorkerArgs = %q", args)
	}

	args, err = Config{}.WorkerArgs()
	if err != nil {
		t.Fatalf("WorkerArgs: %v", err)
	}
	if len(args) != 2 || args[1] != "worker" {
		t.Errorf("default WorkerArgs = %q", args)
	}
}

func TestPollInterval(t *testing.T) {
	if got := (Config{PollIntervalMS: 25}).PollInterval(); got != 25*time.Millisecond {
		t.Errorf("PollInterval = %v", got)
	}
}
