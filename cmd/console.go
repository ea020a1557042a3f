package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"bmod-manager/config"
	"bmod-manager/logger"
	"bmod-manager/orchestrator"
	"bmod-manager/registry"
	"bmod-manager/worker"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// consolePresenter prints orchestrator events for the headless commands.
// With a terminal it draws a progress bar, otherwise it prints one line per
// caption change.
type consolePresenter struct {
	out   io.Writer
	fancy bool

	bar      *progressbar.ProgressBar
	barTitle string
	caption  string

	errors []string
	info   []string
}

func newConsolePresenter(out *os.File) *consolePresenter {
	return &consolePresenter{out: out, fancy: isTerminal(out)}
}

func (c *consolePresenter) ProgressChanged(p orchestrator.Progress) {
	if !p.Visible {
		c.closeBar()
		return
	}
	if !c.fancy {
		if p.Title != c.barTitle {
			c.barTitle = p.Title
			fmt.Fprintln(c.out, p.Title)
		}
		if p.Caption != "" && p.Caption != c.caption {
			c.caption = p.Caption
			fmt.Fprintf(c.out, "  %s\n", p.Caption)
		}
		return
	}

	if c.bar == nil || p.Title != c.barTitle {
		c.closeBar()
		c.barTitle = p.Title
		c.bar = progressbar.NewOptions(max(p.Max, 1),
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription(p.Title),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	if p.Max > 0 {
		c.bar.ChangeMax(p.Max)
	}
	desc := p.Title
	if p.Caption != "" {
		desc += " " + p.Caption
	}
	c.bar.Describe(desc)
	_ = c.bar.Set(min(p.Value, max(p.Max, 1)))
}

func (c *consolePresenter) closeBar() {
	if c.bar != nil {
		_ = c.bar.Finish()
		c.bar = nil
	}
	c.barTitle = ""
	c.caption = ""
}

func (c *consolePresenter) LoadingChanged(active bool, caption string) {
	if active && !c.fancy && caption != "" {
		fmt.Fprintln(c.out, caption)
	}
}

func (c *consolePresenter) ConflictFound(conflict orchestrator.Conflict) {
	c.closeBar()
	fmt.Fprintf(c.out, "%s\n%s\n", orchestrator.ConflictTitle, conflict.Body())
}

func (c *consolePresenter) ShowErrors(lines []string) {
	c.closeBar()
	c.errors = append(c.errors, lines...)
	fmt.Fprintln(c.out, orchestrator.ErrorsTitle)
	for _, line := range lines {
		fmt.Fprintf(c.out, "  %s\n", line)
	}
}

func (c *consolePresenter) ShowInfo(title, body string) {
	c.closeBar()
	c.info = append(c.info, title)
	fmt.Fprintf(c.out, "%s: %s\n", title, body)
}

func (c *consolePresenter) ModsChanged() {}

// session is a headless front end: a worker, an orchestrator and a presenter,
// driven from the calling goroutine.
type session struct {
	cfg  config.Config
	proc *worker.Process
	orch *orchestrator.Orchestrator
	ui   *consolePresenter
}

func openSession(ctx context.Context, cfg config.Config) *session {
	s := &session{cfg: cfg, ui: newConsolePresenter(os.Stdout)}
	s.proc = startWorker(ctx, cfg)
	s.orch = newOrchestrator(cfg, s.proc, s.ui)
	if err := s.orch.Start(cfg.ModsDir, cfg.BaseModLabel); err != nil {
		logger.Log.Fatalw("Failed to start loading mods", zap.Error(err))
	}
	if err := s.settle(ctx); err != nil {
		logger.Log.Fatalw("Failed to load mods", zap.Error(err))
	}
	return s
}

func (s *session) close() {
	if err := s.proc.Close(); err != nil {
		logger.Log.Warnw("Worker did not stop cleanly", zap.Error(err))
	}
}

// settle pumps worker messages every poll interval until the orchestrator is
// idle or waits for a conflict decision.
func (s *session) settle(ctx context.Context) error {
	return pumpUntil(ctx, s.orch, s.proc, s.cfg.PollInterval(), func() bool {
		return !s.orch.Busy() || s.orch.State() == orchestrator.ConflictPresented
	})
}

// pollChannel is the part of a worker channel the pump loop needs.
type pollChannel interface {
	orchestrator.Poller
	Err() error
}

func pumpUntil(ctx context.Context, o *orchestrator.Orchestrator, ch pollChannel, interval time.Duration, done func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		// Err is read first: once it is set every message is already queued.
		err := ch.Err()
		for o.Pump(ch) {
			if done() {
				return nil
			}
		}
		if err != nil {
			return fmt.Errorf("worker exited: %w", err)
		}
	}
	return nil
}

// resolve finds a mod by hash, hash prefix or case-insensitive name.
func resolve(reg *registry.Registry, ref string) (*registry.ModRecord, error) {
	if rec, ok := reg.Get(ref); ok {
		return rec, nil
	}
	var matches []*registry.ModRecord
	for _, rec := range reg.Records() {
		if strings.EqualFold(rec.Name, ref) || (len(ref) >= 6 && strings.HasPrefix(rec.Hash, strings.ToLower(ref))) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrUnknownMod, ref)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("%q matches %d mods, use the hash", ref, len(matches))
}
