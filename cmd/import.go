package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"bmod-manager/download"
	"bmod-manager/ingest"
	"bmod-manager/logger"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <files or links...>",
	Short: "Copies mod files, archives and download links into the mods directory",
	Long: `Copies mod files into the mods directory. Archives (.zip, .7z, .rar) are
unpacked and only mod assets are kept. Download links using the configured URL
scheme are fetched first. The worker then reloads the mods directory.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if failed := runImport(args); failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(args []string) int {
	cfg := bootstrap(".")
	defer logger.Sync()
	lock := lockModsDir(cfg)
	defer unlock(lock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	imports := ingest.NewImports(cfg.URLScheme)
	enqueueArgs(imports, args)

	added, failed := drainImports(ctx, imports, newIngestor(cfg), os.Stdout)
	fmt.Printf("Imported %d file(s), %d failure(s)\n", added, failed)

	if added > 0 {
		s := openSession(ctx, cfg)
		fmt.Printf("%d mod(s) loaded\n", s.orch.Registry().Len())
		s.close()
	}
	return failed
}

// drainImports processes every queued file, then every queued link, and
// reports how many files were added and how many imports failed.
func drainImports(ctx context.Context, imports *ingest.Imports, in *ingestor, out *os.File) (added, failed int) {
	for path := range imports.Files.Drain() {
		files, err := in.importFile(path)
		added += len(files)
		if err != nil {
			failed++
			fmt.Fprintln(out, err)
		}
	}
	for link := range imports.Links.Drain() {
		files, err := in.importLink(ctx, link, consoleDownloadProgress(out, link))
		added += len(files)
		if err != nil {
			failed++
			fmt.Fprintln(out, err)
		}
	}
	return added, failed
}

// consoleDownloadProgress draws a byte counter for a download when out is a
// terminal.
func consoleDownloadProgress(out *os.File, link ingest.Link) download.ProgressFunc {
	if !isTerminal(out) {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(read, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription("Downloading "+link.ModID),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}
		if err := bar.Set64(read); err != nil {
			logger.Log.Debugw("Progress bar update failed", zap.Error(err))
		}
		if total > 0 && read >= total {
			_ = bar.Finish()
		}
	}
}
