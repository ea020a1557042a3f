package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bmod-manager/config"
	"bmod-manager/db"
	"bmod-manager/engine"
	"bmod-manager/logger"
	"bmod-manager/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd runs the reference engine on stdin/stdout. The front end starts
// it as a child process; it is not meant to be run by hand.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve mod operations over stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runWorker()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker() {
	logger.InitStderrLogger()
	defer logger.Sync()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalw("Failed to load configuration", zap.Error(err))
	}

	store, err := db.InitDatabase(cfg.DatabasePath, logger.Log)
	if err != nil {
		logger.Log.Fatalw("Failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	logger.Log.Infow("Database initialized", zap.String("path", cfg.DatabasePath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(store, cfg.CacheDir, logger.Log)
	if err := worker.Serve(ctx, os.Stdin, os.Stdout, eng, logger.Log); err != nil && ctx.Err() == nil {
		logger.Log.Fatalw("Worker stopped", zap.Error(err))
	}
	logger.Log.Info("Worker exiting")
}
