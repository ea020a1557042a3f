package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bmod-manager/config"
	"bmod-manager/ingest"
	"bmod-manager/logger"
	"bmod-manager/orchestrator"
	"bmod-manager/registry"
	"bmod-manager/ui"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// guiCmd represents the interactive manager
var guiCmd = &cobra.Command{
	Use:   "gui [files or links...]",
	Short: "Opens the interactive mod manager",
	Long: `Opens the interactive mod manager. Files and download links given as
arguments are imported once the manager is ready.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runGUI(args)
	},
}

func init() {
	rootCmd.AddCommand(guiCmd)
}

// frontChannel is what the interactive front end needs from the worker.
type frontChannel interface {
	orchestrator.Sender
	pollChannel
}

// view collects what the orchestrator reports. The Model holds it by pointer
// so updates survive bubbletea copying the Model.
type view struct {
	loading        bool
	loadingCaption string
	progress       orchestrator.Progress
	conflict       *orchestrator.Conflict
	errors         []string
	infoTitle      string
	infoBody       string
}

func (v *view) ProgressChanged(p orchestrator.Progress) { v.progress = p }

func (v *view) LoadingChanged(active bool, caption string) {
	v.loading = active
	v.loadingCaption = caption
}

func (v *view) ConflictFound(c orchestrator.Conflict) { v.conflict = &c }

func (v *view) ShowErrors(lines []string) { v.errors = append(v.errors, lines...) }

func (v *view) ShowInfo(title, body string) {
	v.infoTitle = title
	v.infoBody = body
}

func (v *view) ModsChanged() {}

// importJob is one queued import, either a file or a link.
type importJob struct {
	path string
	link *ingest.Link
}

func (j importJob) label() string {
	if j.link != nil {
		return j.link.Raw
	}
	return j.path
}

// Message types
type startMsg struct{}

type pollMsg struct{}

type filesReadyMsg struct{}

type linksReadyMsg struct{}

type downloadProgressMsg struct {
	read, total int64
}

type importDoneMsg struct {
	job   importJob
	added []string
	err   error
}

type clearMessageMsg struct{}

// Model is the interactive manager.
type Model struct {
	cfg     config.Config
	ch      frontChannel
	orch    *orchestrator.Orchestrator
	imports *ingest.Imports
	in      *ingestor
	ctx     context.Context
	events  chan tea.Msg
	ui      *view

	spinner   spinner.Model
	bar       progress.Model
	search    textinput.Model
	searching bool

	pending       []importJob
	importing     *importJob
	downloaded    downloadProgressMsg
	reloadWanted  bool
	message       string
	messageIsErr  bool
	fatal         error
	width, height int
}

func newModel(ctx context.Context, cfg config.Config, ch frontChannel, in *ingestor, imports *ingest.Imports) Model {
	v := &view{}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.Highlight)

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search name, author, version or tag"

	return Model{
		cfg:     cfg,
		ch:      ch,
		orch:    newOrchestrator(cfg, ch, v),
		imports: imports,
		in:      in,
		ctx:     ctx,
		events:  make(chan tea.Msg, 64),
		ui:      v,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		search:  search,
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return startMsg{} },
		waitForEvent(m.events),
	)
}

func (m Model) poll() tea.Cmd {
	return tea.Tick(m.cfg.PollInterval(), func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

// waitForEvent delivers messages produced outside the bubbletea loop.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(min(msg.Width-4, 60), 10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startMsg:
		if err := m.orch.Start(m.cfg.ModsDir, m.cfg.BaseModLabel); err != nil {
			m.fatal = fmt.Errorf("failed to talk to the worker: %w", err)
			return m, nil
		}
		m.registerImports()
		return m, m.poll()

	case pollMsg:
		return m.handlePoll()

	case filesReadyMsg:
		for path := range m.imports.Files.Drain() {
			m.pending = append(m.pending, importJob{path: path})
		}
		next := m.nextImport()
		return m, tea.Batch(waitForEvent(m.events), next)

	case linksReadyMsg:
		for link := range m.imports.Links.Drain() {
			m.pending = append(m.pending, importJob{link: &link})
		}
		next := m.nextImport()
		return m, tea.Batch(waitForEvent(m.events), next)

	case downloadProgressMsg:
		m.downloaded = msg
		return m, waitForEvent(m.events)

	case importDoneMsg:
		return m.handleImportDone(msg)

	case clearMessageMsg:
		m.message = ""
		m.messageIsErr = false
		return m, nil
	}
	return m, nil
}

// registerImports marks the UI ready for imports. Anything queued earlier,
// such as command-line arguments, is signalled right away.
func (m Model) registerImports() {
	events := m.events
	m.imports.Files.SetSignal(func() { events <- filesReadyMsg{} })
	m.imports.Links.SetSignal(func() { events <- linksReadyMsg{} })
}

func (m Model) handlePoll() (tea.Model, tea.Cmd) {
	// Err is read first: once it is set every message is already queued.
	err := m.ch.Err()
	for m.orch.Pump(m.ch) {
	}
	m.syncFocus()
	if err != nil {
		logger.Log.Errorw("Worker stopped", zap.Error(err))
		m.fatal = fmt.Errorf("the worker stopped: %w", err)
		return m, nil
	}
	if m.reloadWanted && m.importing == nil && len(m.pending) == 0 {
		m.reloadWanted = false
		if err := m.orch.Reload(); err != nil {
			m.fatal = fmt.Errorf("failed to talk to the worker: %w", err)
			return m, nil
		}
	}
	return m, m.poll()
}

// nextImport starts the next queued import unless one is running. Imports
// run one at a time so collision renaming sees every earlier file.
func (m *Model) nextImport() tea.Cmd {
	if m.importing != nil || len(m.pending) == 0 {
		return nil
	}
	job := m.pending[0]
	m.pending = m.pending[1:]
	m.importing = &job
	m.downloaded = downloadProgressMsg{}

	in, ctx, events := m.in, m.ctx, m.events
	return func() tea.Msg {
		if job.link == nil {
			added, err := in.importFile(job.path)
			return importDoneMsg{job: job, added: added, err: err}
		}
		added, err := in.importLink(ctx, *job.link, func(read, total int64) {
			select {
			case events <- downloadProgressMsg{read: read, total: total}:
			default:
			}
		})
		return importDoneMsg{job: job, added: added, err: err}
	}
}

func (m Model) handleImportDone(msg importDoneMsg) (tea.Model, tea.Cmd) {
	m.importing = nil
	if len(msg.added) > 0 {
		m.reloadWanted = true
	}
	if msg.err != nil {
		m.message = msg.err.Error()
		m.messageIsErr = true
	} else {
		m.message = fmt.Sprintf("Imported %d file(s) from %s", len(msg.added), msg.job.label())
		m.messageIsErr = false
	}
	next := m.nextImport()
	return m, tea.Batch(next, clearMessageAfter(5*time.Second))
}

func clearMessageAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearMessageMsg{} })
}

// syncFocus keeps the focus on a visible record.
func (m Model) syncFocus() {
	visible := m.orch.Index().Visible()
	if len(visible) == 0 {
		return
	}
	if rec, ok := m.orch.Focused(); ok && m.orch.Index().IndexOf(rec.Hash) >= 0 {
		return
	}
	m.orch.Focus(visible[0].Hash)
}

func (m Model) cursor() int {
	rec, ok := m.orch.Focused()
	if !ok {
		return -1
	}
	return m.orch.Index().IndexOf(rec.Hash)
}

func (m Model) moveCursor(delta int) {
	visible := m.orch.Index().Visible()
	if len(visible) == 0 {
		return
	}
	i := m.cursor() + delta
	i = max(0, min(i, len(visible)-1))
	m.orch.Focus(visible[i].Hash)
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch {
	case m.fatal != nil:
		return m, tea.Quit
	case m.ui.conflict != nil:
		return m.handleConflictKey(key)
	case len(m.ui.errors) > 0:
		m.ui.errors = nil
		return m, nil
	case m.ui.infoTitle != "":
		m.ui.infoTitle, m.ui.infoBody = "", ""
		return m, nil
	case m.searching:
		return m.handleSearchKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "home", "g":
		m.moveCursor(-len(m.orch.Index().Visible()))
	case "end", "G":
		m.moveCursor(len(m.orch.Index().Visible()))
	case "/":
		m.searching = true
		cmd := m.search.Focus()
		return m, cmd
	case "s":
		sortKey, desc := m.orch.Index().Criterion()
		m.orch.Index().SetCriterion((sortKey+1)%3, desc)
	case "o":
		sortKey, desc := m.orch.Index().Criterion()
		m.orch.Index().SetCriterion(sortKey, !desc)
	case "ctrl+r", "f5":
		m.report(m.orch.Reload())
	case "i", "u", "r", "c", "x":
		m.runAction(key)
	}
	return m, nil
}

var actionKeys = []struct {
	key    string
	action orchestrator.Action
}{
	{"i", orchestrator.ActionInstall},
	{"u", orchestrator.ActionUninstall},
	{"r", orchestrator.ActionReinstall},
	{"c", orchestrator.ActionDecompile},
	{"x", orchestrator.ActionDelete},
}

func actionKey(a orchestrator.Action) string {
	for _, b := range actionKeys {
		if b.action == a {
			return b.key
		}
	}
	return ""
}

func (m *Model) runAction(key string) {
	rec, ok := m.orch.Focused()
	if !ok {
		return
	}
	var action orchestrator.Action
	offered := false
	for _, a := range orchestrator.Actions(rec) {
		if actionKey(a) == key {
			action, offered = a, true
		}
	}
	if !offered {
		return
	}

	var err error
	switch action {
	case orchestrator.ActionInstall:
		err = m.orch.RequestInstall(rec.Hash)
	case orchestrator.ActionUninstall:
		err = m.orch.RequestUninstall(rec.Hash)
	case orchestrator.ActionReinstall:
		err = m.orch.RequestReinstall(rec.Hash)
	case orchestrator.ActionDecompile:
		err = m.orch.RequestDecompile(rec.Hash)
	case orchestrator.ActionDelete:
		err = m.orch.DeleteMod(rec.Hash)
	}
	m.report(err)
}

// report shows a request error. Refusals are shown as an error dialog;
// anything else means the worker is unreachable.
func (m *Model) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrInstalled):
		m.ui.errors = append(m.ui.errors, orchestrator.ErrInstalled.Error())
	case errors.Is(err, orchestrator.ErrBusy), errors.Is(err, orchestrator.ErrUnknownMod):
		m.message = err.Error()
		m.messageIsErr = true
	default:
		m.fatal = fmt.Errorf("failed to talk to the worker: %w", err)
	}
}

func (m Model) handleConflictKey(key string) (tea.Model, tea.Cmd) {
	var err error
	switch key {
	case "y", "enter":
		m.ui.conflict = nil
		err = m.orch.Accept()
	case "n", "esc":
		m.ui.conflict = nil
		err = m.orch.Cancel()
	default:
		return m, nil
	}
	if err != nil && !errors.Is(err, orchestrator.ErrNoConflict) {
		m.report(err)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.SetValue("")
		m.searching = false
		m.search.Blur()
	case "enter":
		m.searching = false
		m.search.Blur()
		return m, nil
	default:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.orch.Index().SetFilter(m.search.Value())
		m.syncFocus()
		return m, cmd
	}
	m.orch.Index().SetFilter("")
	m.syncFocus()
	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.fatal != nil {
		return ui.Dialog("Fatal error", m.fatal.Error(), "press any key to exit", ui.Bad) + "\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch {
	case m.ui.conflict != nil:
		b.WriteString(ui.Dialog(orchestrator.ConflictTitle, m.ui.conflict.Body(), "y: install anyway  n: cancel", ui.Warn))
	case len(m.ui.errors) > 0:
		b.WriteString(ui.Dialog(orchestrator.ErrorsTitle, strings.Join(m.ui.errors, "\n"), "press any key", ui.Bad))
	case m.ui.infoTitle != "":
		b.WriteString(ui.Dialog(m.ui.infoTitle, m.ui.infoBody, "press any key", ui.Good))
	case m.ui.loading:
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), m.ui.loadingCaption))
	default:
		b.WriteString(m.renderList())
	}
	b.WriteString("\n")

	if p := m.ui.progress; p.Visible {
		b.WriteString("\n" + ui.TitleStyle.Render(p.Title) + "\n")
		b.WriteString(m.bar.ViewAs(p.Fraction()) + "\n")
		b.WriteString(ui.FooterStyle.Render(p.Caption) + "\n")
	}
	if m.importing != nil {
		b.WriteString("\n" + m.renderImport() + "\n")
	}
	if m.searching || m.orch.Index().Filter() != "" {
		b.WriteString("\n" + m.search.View() + "\n")
	}
	b.WriteString("\n" + m.renderFooter())
	if m.message != "" {
		style := ui.MessageStyle
		if m.messageIsErr {
			style = style.Foreground(ui.Bad)
		}
		b.WriteString("\n" + style.Render(m.message))
	}
	return b.String()
}

func (m Model) renderHeader() string {
	key, desc := m.orch.Index().Criterion()
	order := "asc"
	if desc {
		order = "desc"
	}
	return ui.TitleStyle.Render(m.cfg.BaseModLabel) +
		ui.FooterStyle.Render(fmt.Sprintf("  %d mods  sort: %s %s", m.orch.Registry().Len(), key, order))
}

func (m Model) renderList() string {
	visible := m.orch.Index().Visible()
	if len(visible) == 0 {
		if m.orch.Registry().Len() == 0 {
			return "No mods found. Drop .bmod files or archives into " + m.cfg.ModsDir
		}
		return "No mods match the search."
	}

	rows := max(m.height-12, 5)
	cur := m.cursor()
	start := 0
	if cur >= rows {
		start = cur - rows + 1
	}
	end := min(start+rows, len(visible))

	key, _ := m.orch.Index().Criterion()
	var b strings.Builder
	b.WriteString(ui.HeaderStyle.Render(fmt.Sprintf("%-36s %-18s %-10s %-10s %10s", "Mod", "Author", "Version", "Status", "Size")))
	for i := start; i < end; i++ {
		rec := visible[i]
		b.WriteString("\n")
		b.WriteString(m.renderRow(rec, i == cur, key))
	}
	return b.String()
}

func (m Model) renderRow(rec *registry.ModRecord, focused bool, key registry.SortKey) string {
	size := ""
	if key == registry.SortBySize {
		if n := m.orch.Index().Size(rec.Hash); n >= 0 {
			size = humanize.Bytes(uint64(n))
		}
	}
	// Pad status before applying color to maintain column alignment
	status := ui.Status(rec.Installed, rec.ModFileExists)
	pad := strings.Repeat(" ", max(10-lipgloss.Width(status), 0))
	row := fmt.Sprintf("%-36s %-18s %-10s %s %10s",
		ui.Truncate(rec.Name, 36),
		ui.Truncate(rec.Author, 18),
		ui.Truncate(rec.Version, 10),
		status+pad,
		size,
	)
	if focused {
		return ui.CursorStyle.Render(row)
	}
	return ui.RowStyle.Render(row)
}

func (m Model) renderImport() string {
	job := m.importing
	if job.link == nil {
		return fmt.Sprintf("%s Importing %s", m.spinner.View(), job.path)
	}
	d := m.downloaded
	if d.total > 0 {
		return fmt.Sprintf("%s Downloading %s  %s / %s", m.spinner.View(), job.link.ModID,
			humanize.Bytes(uint64(d.read)), humanize.Bytes(uint64(d.total)))
	}
	return fmt.Sprintf("%s Downloading %s  %s", m.spinner.View(), job.link.ModID, humanize.Bytes(uint64(d.read)))
}

func (m Model) renderFooter() string {
	hints := []string{"↑/k ↓/j: move", "/: search", "s: sort", "o: order"}
	if rec, ok := m.orch.Focused(); ok && !m.orch.Busy() {
		for _, a := range orchestrator.Actions(rec) {
			hints = append(hints, actionKey(a)+": "+a.String())
		}
	}
	hints = append(hints, "q: quit")
	return ui.FooterStyle.Render(strings.Join(hints, "  "))
}

func runGUI(args []string) {
	if !isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr, "the interactive manager needs a terminal; see --help for headless commands")
		os.Exit(1)
	}

	cfg := bootstrap(".")
	defer logger.Sync()
	lock := lockModsDir(cfg)
	defer unlock(lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	imports := ingest.NewImports(cfg.URLScheme)
	// Queued before the UI registers for them.
	enqueueArgs(imports, args)

	proc := startWorker(ctx, cfg)
	defer func() {
		if err := proc.Close(); err != nil {
			logger.Log.Warnw("Worker did not stop cleanly", zap.Error(err))
		}
	}()

	m := newModel(ctx, cfg, proc, newIngestor(cfg), imports)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		logger.Log.Fatalw("Failed to run GUI", zap.Error(err))
	}
	if fm, ok := final.(Model); ok && fm.fatal != nil {
		logger.Log.Errorw("Exiting after fatal error", zap.Error(fm.fatal))
		cancel()
		_ = proc.Close()
		unlock(lock)
		logger.Sync()
		os.Exit(1)
	}
}
