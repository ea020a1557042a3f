// Package orchestrator sequences conflict checks, installs, uninstalls and
// decompiles against the worker and turns its notifications into registry
// updates and user-facing events.
//
// An Orchestrator is owned by a single goroutine. Requests and worker
// messages must be fed to it from that goroutine only.
package orchestrator

import (
	"errors"
	"fmt"

	"bmod-manager/registry"
	"bmod-manager/worker"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when an operation is requested while another one
	// is still running.
	ErrBusy = errors.New("another operation is in progress")
	// ErrInstalled is returned when deleting a mod that is still installed.
	ErrInstalled = errors.New("to delete mod, you need to uninstall it")
	// ErrUnknownMod is returned for hashes the registry does not hold.
	ErrUnknownMod = errors.New("unknown mod")
	// ErrNoConflict is returned by Accept and Cancel when no conflict is
	// waiting for a decision.
	ErrNoConflict = errors.New("no conflict is waiting for a decision")
)

// Sender delivers requests to the worker.
type Sender interface {
	Send(req worker.Request) error
}

// Poller hands out pending worker messages without blocking.
type Poller interface {
	Poll() (worker.Message, bool)
}

// Presenter receives everything the user should see. Calls are made on the
// orchestrator's goroutine.
type Presenter interface {
	ProgressChanged(p Progress)
	LoadingChanged(active bool, caption string)
	ConflictFound(c Conflict)
	// ShowErrors is called once per finished operation that buffered errors.
	ShowErrors(lines []string)
	ShowInfo(title, body string)
	ModsChanged()
}

// Orchestrator is the install/uninstall state machine.
type Orchestrator struct {
	ch    Sender
	reg   *registry.Registry
	index *registry.SortIndex
	ui    Presenter
	log   *zap.SugaredLogger

	state   State
	subject string
	// pendingID is the request whose reply or failure ends the current phase.
	pendingID string
	// reinstall holds the id of the conflict check queued behind an uninstall.
	reinstall     string
	reloadPending bool

	conflict *Conflict
	progress Progress
	errors   []worker.Notification
	focus    string
}

// New wires an orchestrator. index may be nil, in which case a name-sorted
// index without filesystem heuristics is used. ui may be nil.
func New(ch Sender, reg *registry.Registry, index *registry.SortIndex, ui Presenter, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if index == nil {
		index = registry.NewSortIndex(reg, nil)
	}
	if ui == nil {
		ui = nopPresenter{}
	}
	return &Orchestrator{ch: ch, reg: reg, index: index, ui: ui, log: log}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Busy reports whether an operation is running.
func (o *Orchestrator) Busy() bool { return o.state != Idle }

// Progress returns the current progress view.
func (o *Orchestrator) Progress() Progress { return o.progress }

// Conflict returns the conflict awaiting a decision, if any.
func (o *Orchestrator) Conflict() *Conflict { return o.conflict }

// Registry returns the registry the orchestrator mutates.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Index returns the display ordering.
func (o *Orchestrator) Index() *registry.SortIndex { return o.index }

// PendingErrors reports how many errors are buffered.
func (o *Orchestrator) PendingErrors() int { return len(o.errors) }

// Focus selects the record the user is looking at. The selection is kept by
// hash, so it survives re-sorts, filters and reloads while the mod exists.
func (o *Orchestrator) Focus(hash string) { o.focus = hash }

// Focused returns the focused record, if it is still in the registry.
func (o *Orchestrator) Focused() (*registry.ModRecord, bool) {
	if o.focus == "" {
		return nil, false
	}
	return o.reg.Get(o.focus)
}

// Start points the worker at modsDir, loads the registry and applies the
// base mod.
func (o *Orchestrator) Start(modsDir, baseLabel string) error {
	if o.state != Idle {
		return ErrBusy
	}
	o.setLoading("Loading mods sources...")

	if err := o.ch.Send(worker.SetModsPathRequest(modsDir)); err != nil {
		return o.abort(err)
	}
	if err := o.sendReload(); err != nil {
		return o.abort(err)
	}
	if err := o.ch.Send(worker.InstallBaseModRequest(baseLabel)); err != nil {
		return o.abort(err)
	}
	return nil
}

// Reload asks the worker to rescan the mods directory. While an operation is
// running the reload is deferred until it ends.
func (o *Orchestrator) Reload() error {
	if o.state != Idle {
		o.log.Debugw("Deferring reload", zap.String("state", o.state.String()))
		o.reloadPending = true
		return nil
	}
	o.setLoading("Loading mods sources...")
	if err := o.sendReload(); err != nil {
		return o.abort(err)
	}
	return nil
}

func (o *Orchestrator) sendReload() error {
	if err := o.ch.Send(worker.NewRequest(worker.KindReloadMods)); err != nil {
		return err
	}
	data := worker.NewRequest(worker.KindGetModsData)
	o.pendingID = data.ID
	return o.ch.Send(data)
}

func (o *Orchestrator) begin(hash string) (*registry.ModRecord, error) {
	if o.state != Idle {
		return nil, ErrBusy
	}
	rec, ok := o.reg.Get(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMod, hash)
	}
	return rec, nil
}

// dispatch sends req as the request that drives state next.
func (o *Orchestrator) dispatch(next State, req worker.Request) error {
	o.state = next
	o.subject = req.Hash
	o.pendingID = req.ID
	if err := o.ch.Send(req); err != nil {
		return o.abort(err)
	}
	o.log.Infow("Operation started", zap.String("state", next.String()), zap.String("hash", req.Hash))
	return nil
}

// abort returns to Idle after a request could not be sent.
func (o *Orchestrator) abort(err error) error {
	o.log.Errorw("Failed to send worker request", zap.Error(err))
	o.state = Idle
	o.subject = ""
	o.pendingID = ""
	o.reinstall = ""
	o.conflict = nil
	o.hideProgress()
	o.ui.LoadingChanged(false, "")
	return err
}

// RequestInstall checks for conflicts and installs hash when there are none.
func (o *Orchestrator) RequestInstall(hash string) error {
	if _, err := o.begin(hash); err != nil {
		return err
	}
	return o.dispatch(ConflictChecking, worker.HashRequest(worker.KindGetModConflict, hash))
}

// RequestUninstall removes hash from the game.
func (o *Orchestrator) RequestUninstall(hash string) error {
	if _, err := o.begin(hash); err != nil {
		return err
	}
	return o.dispatch(Uninstalling, worker.HashRequest(worker.KindUninstallMod, hash))
}

// RequestReinstall uninstalls hash and immediately queues the conflict check
// for the fresh install. The worker serializes the two.
func (o *Orchestrator) RequestReinstall(hash string) error {
	if _, err := o.begin(hash); err != nil {
		return err
	}
	if err := o.dispatch(Uninstalling, worker.HashRequest(worker.KindUninstallMod, hash)); err != nil {
		return err
	}
	check := worker.HashRequest(worker.KindGetModConflict, hash)
	o.reinstall = check.ID
	if err := o.ch.Send(check); err != nil {
		return o.abort(err)
	}
	return nil
}

// RequestDecompile unpacks hash into an editable source folder.
func (o *Orchestrator) RequestDecompile(hash string) error {
	if _, err := o.begin(hash); err != nil {
		return err
	}
	return o.dispatch(Decompiling, worker.HashRequest(worker.KindDecompileMod, hash))
}

// DeleteMod removes the source file of an uninstalled mod and reloads.
// Installed mods are refused with ErrInstalled and nothing is sent.
func (o *Orchestrator) DeleteMod(hash string) error {
	rec, err := o.begin(hash)
	if err != nil {
		return err
	}
	if rec.Installed {
		return fmt.Errorf("delete mod '%s': %w", rec.Name, ErrInstalled)
	}
	o.reg.MarkFileMissing(hash)
	if err := o.ch.Send(worker.HashRequest(worker.KindDeleteMod, hash)); err != nil {
		return o.abort(err)
	}
	return o.Reload()
}

// Accept proceeds with an install despite the presented conflict.
func (o *Orchestrator) Accept() error {
	if o.state != ConflictPresented || o.conflict == nil {
		return ErrNoConflict
	}
	hash := o.conflict.Hash
	o.conflict = nil
	o.progress.Value = 0
	return o.dispatch(Installing, worker.HashRequest(worker.KindInstallMod, hash))
}

// Cancel drops the presented conflict without installing.
func (o *Orchestrator) Cancel() error {
	if o.state != ConflictPresented {
		return ErrNoConflict
	}
	o.log.Infow("Install cancelled", zap.String("hash", o.subject))
	o.finish()
	return nil
}

// Pump consumes at most one pending message from p. It reports whether a
// message was handled.
func (o *Orchestrator) Pump(p Poller) bool {
	msg, ok := p.Poll()
	if !ok {
		return false
	}
	o.Handle(msg)
	return true
}

// finish ends the running operation: back to Idle, progress hidden, the
// error batch shown once, then any deferred reload started.
func (o *Orchestrator) finish() {
	wasLoading := o.state == Loading
	o.state = Idle
	o.subject = ""
	o.pendingID = ""
	o.reinstall = ""
	o.conflict = nil
	o.hideProgress()
	if wasLoading {
		o.ui.LoadingChanged(false, "")
	}
	o.flushErrors()

	if o.reloadPending {
		o.reloadPending = false
		if err := o.Reload(); err != nil {
			o.log.Errorw("Deferred reload failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) flushErrors() {
	if len(o.errors) == 0 {
		return
	}
	lines := make([]string, len(o.errors))
	for i, n := range o.errors {
		lines[i] = FormatNotification(n)
	}
	o.errors = nil
	o.ui.ShowErrors(lines)
}

func (o *Orchestrator) setLoading(caption string) {
	o.state = Loading
	o.ui.LoadingChanged(true, caption)
}

func (o *Orchestrator) openProgress(title, caption string) {
	o.progress = Progress{Visible: true, Title: title, Caption: caption}
	o.ui.ProgressChanged(o.progress)
}

func (o *Orchestrator) hideProgress() {
	if !o.progress.Visible {
		return
	}
	o.progress = Progress{}
	o.ui.ProgressChanged(o.progress)
}

func (o *Orchestrator) setCaption(caption string, advance bool) {
	o.progress.Caption = caption
	if advance {
		o.progress.Value++
	}
	o.ui.ProgressChanged(o.progress)
}

func (o *Orchestrator) displayName(hash string) string {
	if name := o.reg.Name(hash); name != "" {
		return name
	}
	return hash
}

type nopPresenter struct{}

func (nopPresenter) ProgressChanged(Progress) {}
func (nopPresenter) LoadingChanged(bool, string) {}
func (nopPresenter) ConflictFound(Conflict) {}
func (nopPresenter) ShowErrors([]string) {}
func (nopPresenter) ShowInfo(string, string) {}
func (nopPresenter) ModsChanged() {}
