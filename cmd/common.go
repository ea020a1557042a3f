package cmd

import (
	"context"
	"fmt"
	"os"

	"bmod-manager/config"
	"bmod-manager/download"
	"bmod-manager/importer"
	"bmod-manager/ingest"
	"bmod-manager/logger"
	"bmod-manager/orchestrator"
	"bmod-manager/registry"
	"bmod-manager/worker"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

// bootstrap handles shared initialization logic for front-end commands.
func bootstrap(path string) config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Log.Fatalw("Failed to load configuration", zap.Error(err))
	}
	if err := logger.InitLogger(cfg.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Log.Infow("Configuration loaded", zap.String("mods_dir", cfg.ModsDir), zap.String("version", config.Version))
	return cfg
}

// lockModsDir makes sure only one manager works on the mods directory.
func lockModsDir(cfg config.Config) *flock.Flock {
	lock := flock.New(cfg.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		logger.Log.Fatalw("Failed to acquire mods directory lock", zap.String("lock", cfg.LockPath), zap.Error(err))
	}
	if !ok {
		logger.Log.Fatalw("Another instance is using the mods directory", zap.String("mods_dir", cfg.ModsDir))
	}
	return lock
}

func unlock(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		logger.Log.Warnw("Failed to release mods directory lock", zap.Error(err))
	}
}

// startWorker launches the configured worker process.
func startWorker(ctx context.Context, cfg config.Config) *worker.Process {
	command, err := cfg.WorkerArgs()
	if err != nil {
		logger.Log.Fatalw("Failed to resolve worker command", zap.Error(err))
	}
	proc, err := worker.Start(ctx, command, logger.Log)
	if err != nil {
		logger.Log.Fatalw("Failed to start worker", zap.Strings("command", command), zap.Error(err))
	}
	return proc
}

// newOrchestrator builds the registry, its sort index and the orchestrator
// driving them.
func newOrchestrator(cfg config.Config, ch orchestrator.Sender, ui orchestrator.Presenter) *orchestrator.Orchestrator {
	reg := registry.New()
	index := registry.NewSortIndex(reg, registry.NewFootprint(cfg.ModsDir, logger.Log))
	key, err := registry.ParseSortKey(cfg.SortBy)
	if err != nil {
		logger.Log.Warnw("Unknown sort key, sorting by name", zap.String("sort_by", cfg.SortBy))
	}
	index.SetCriterion(key, false)
	return orchestrator.New(ch, reg, index, ui, logger.Log)
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ingestor turns queued imports into files in the mods directory.
type ingestor struct {
	imp         *importer.Importer
	client      *download.Client
	downloadURL string
}

func newIngestor(cfg config.Config) *ingestor {
	client, err := download.NewClient(cfg, logger.Log)
	if err != nil {
		logger.Log.Fatalw("Failed to create download client", zap.Error(err))
	}
	return &ingestor{
		imp:         importer.New(cfg.ModsDir, logger.Log),
		client:      client,
		downloadURL: cfg.DownloadURL,
	}
}

func (in *ingestor) importFile(path string) ([]string, error) {
	added, err := in.imp.ImportFile(path)
	if err != nil {
		logger.Log.Warnw("Import failed", zap.String("path", path), zap.Error(err))
		return added, fmt.Errorf("import %s: %w", path, err)
	}
	logger.Log.Infow("Imported file", zap.String("path", path), zap.Int("files", len(added)))
	return added, nil
}

// importLink downloads the archive a deep link points at and extracts it.
func (in *ingestor) importLink(ctx context.Context, link ingest.Link, progress download.ProgressFunc) ([]string, error) {
	url := link.DownloadURL(in.downloadURL)
	resp, err := in.client.Open(ctx, url)
	if err != nil {
		logger.Log.Warnw("Download failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("download %s: %w", link.Raw, err)
	}
	defer resp.Body.Close()

	added, err := in.imp.ImportStream(download.WithProgress(resp.Body, resp.Size, progress))
	if err != nil {
		logger.Log.Warnw("Import of download failed", zap.String("url", url), zap.Error(err))
		return added, fmt.Errorf("import %s: %w", link.Raw, err)
	}
	logger.Log.Infow("Imported download", zap.String("link", link.Raw), zap.Int("files", len(added)))
	return added, nil
}

// enqueueArgs queues command-line arguments for import.
func enqueueArgs(imports *ingest.Imports, args []string) {
	for _, arg := range args {
		if err := imports.AddArg(arg); err != nil {
			logger.Log.Warnw("Ignoring argument", zap.String("arg", arg), zap.Error(err))
		}
	}
}
