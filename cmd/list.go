package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"bmod-manager/logger"
	"bmod-manager/registry"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the mods in the mods directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sortBy, _ := cmd.Flags().GetString("sort")
		desc, _ := cmd.Flags().GetBool("desc")
		filter, _ := cmd.Flags().GetString("filter")
		runList(sortBy, desc, filter)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("sort", "s", "", "Sort by name, date or size (defaults to SORT_BY)")
	listCmd.Flags().BoolP("desc", "d", false, "Reverse the sort order")
	listCmd.Flags().StringP("filter", "f", "", "Only list mods matching a search query")
}

func runList(sortBy string, desc bool, filter string) {
	cfg := bootstrap(".")
	defer logger.Sync()
	lock := lockModsDir(cfg)
	defer unlock(lock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := openSession(ctx, cfg)
	defer s.close()

	if sortBy == "" {
		sortBy = cfg.SortBy
	}
	key, err := registry.ParseSortKey(sortBy)
	if err != nil {
		logger.Log.Warnw("Unknown sort key, sorting by name", zap.String("sort", sortBy))
	}
	index := s.orch.Index()
	index.SetCriterion(key, desc)
	index.SetFilter(filter)

	fmt.Println(renderModTable(index))
}

func renderModTable(index *registry.SortIndex) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Name", "Author", "Version", "Status", "Size", "Hash"})

	key, _ := index.Criterion()
	for _, rec := range index.Visible() {
		size := ""
		if key == registry.SortBySize {
			size = humanize.Bytes(uint64(max(index.Size(rec.Hash), 0)))
		}
		hash := rec.Hash
		if len(hash) > 10 {
			hash = hash[:10]
		}
		tw.AppendRow(table.Row{rec.Name, rec.Author, rec.Version, modStatus(rec), size, hash})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.AppendFooter(table.Row{fmt.Sprintf("%d mod(s)", len(index.Visible()))})
	return tw.Render()
}

func modStatus(rec *registry.ModRecord) string {
	switch {
	case rec.Installed && !rec.ModFileExists:
		return "installed (file missing)"
	case rec.Installed:
		return "installed"
	case !rec.ModFileExists:
		return "missing"
	}
	return "available"
}
