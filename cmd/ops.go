package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"bmod-manager/logger"
	"bmod-manager/orchestrator"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// operation starts one orchestrated action on a mod.
type operation func(o *orchestrator.Orchestrator, hash string) error

func newOperationCmd(use, short string, op operation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <name or hash>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			yes, _ := cmd.Flags().GetBool("yes")
			if err := runOperation(args[0], op, yes); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		},
	}
	return cmd
}

var (
	installCmd = newOperationCmd("install", "Install a mod into the game",
		(*orchestrator.Orchestrator).RequestInstall)
	uninstallCmd = newOperationCmd("uninstall", "Remove a mod from the game",
		(*orchestrator.Orchestrator).RequestUninstall)
	reinstallCmd = newOperationCmd("reinstall", "Uninstall and install a mod again",
		(*orchestrator.Orchestrator).RequestReinstall)
	decompileCmd = newOperationCmd("decompile", "Unpack a mod into an editable folder",
		(*orchestrator.Orchestrator).RequestDecompile)
	deleteCmd = newOperationCmd("delete", "Delete the file of an uninstalled mod",
		(*orchestrator.Orchestrator).DeleteMod)
)

func init() {
	for _, cmd := range []*cobra.Command{installCmd, uninstallCmd, reinstallCmd, decompileCmd, deleteCmd} {
		rootCmd.AddCommand(cmd)
	}
	installCmd.Flags().BoolP("yes", "y", false, "Install even when other installed mods conflict")
	reinstallCmd.Flags().BoolP("yes", "y", false, "Install even when other installed mods conflict")
}

// errReported marks a run whose problems were already printed.
var errReported = errors.New("operation finished with errors")

func runOperation(ref string, op operation, acceptConflicts bool) error {
	cfg := bootstrap(".")
	defer logger.Sync()
	lock := lockModsDir(cfg)
	defer unlock(lock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := openSession(ctx, cfg)
	defer s.close()
	return s.run(ctx, ref, op, acceptConflicts)
}

func (s *session) run(ctx context.Context, ref string, op operation, acceptConflicts bool) error {
	rec, err := resolve(s.orch.Registry(), ref)
	if err != nil {
		return err
	}
	s.orch.Focus(rec.Hash)
	logger.Log.Infow("Running operation", zap.String("mod", rec.Name), zap.String("hash", rec.Hash))

	if err := op(s.orch, rec.Hash); err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}

	if s.orch.State() == orchestrator.ConflictPresented {
		if !acceptConflicts {
			if err := s.orch.Cancel(); err != nil {
				return err
			}
			return fmt.Errorf("install of '%s' cancelled, run again with --yes to install anyway", rec.Name)
		}
		if err := s.orch.Accept(); err != nil {
			return err
		}
		if err := s.settle(ctx); err != nil {
			return err
		}
	}

	// Deletes trigger a reload; wait for it so the registry reflects the disk.
	if err := s.settle(ctx); err != nil {
		return err
	}
	if len(s.ui.errors) > 0 {
		return errReported
	}
	return nil
}
