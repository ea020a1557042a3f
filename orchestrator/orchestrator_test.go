package orchestrator

import (
	"errors"
	"strings"
	"testing"

	"bmod-manager/registry"
	"bmod-manager/worker"

	"go.uber.org/zap"
)

type recordingChannel struct {
	sent []worker.Request
	err  error
}

func (c *recordingChannel) Send(req worker.Request) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, req)
	return nil
}

func (c *recordingChannel) kinds() []worker.MessageKind {
	out := make([]worker.MessageKind, len(c.sent))
	for i, r := range c.sent {
		out[i] = r.Kind
	}
	return out
}

func (c *recordingChannel) count(kind worker.MessageKind) int {
	n := 0
	for _, r := range c.sent {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (c *recordingChannel) last() worker.Request {
	return c.sent[len(c.sent)-1]
}

type recordingPresenter struct {
	progress   []Progress
	loading    []string
	loadingOn  bool
	conflicts  []Conflict
	errors     [][]string
	infos      []string
	refreshes  int
	onConflict func(Conflict)
}

func (p *recordingPresenter) ProgressChanged(pr Progress) { p.progress = append(p.progress, pr) }

func (p *recordingPresenter) LoadingChanged(active bool, caption string) {
	p.loadingOn = active
	if active {
		p.loading = append(p.loading, caption)
	}
}

func (p *recordingPresenter) ConflictFound(c Conflict) {
	p.conflicts = append(p.conflicts, c)
	if p.onConflict != nil {
		p.onConflict(c)
	}
}

func (p *recordingPresenter) ShowErrors(lines []string) { p.errors = append(p.errors, lines) }

func (p *recordingPresenter) ShowInfo(title, body string) { p.infos = append(p.infos, title+": "+body) }

func (p *recordingPresenter) ModsChanged() { p.refreshes++ }

func setup(t *testing.T, recs ...*registry.ModRecord) (*Orchestrator, *recordingChannel, *recordingPresenter) {
	t.Helper()
	reg := registry.New()
	for _, r := range recs {
		reg.Put(r)
	}
	ch := &recordingChannel{}
	ui := &recordingPresenter{}
	return New(ch, reg, nil, ui, zap.NewNop().Sugar()), ch, ui
}

func defaultMods() []*registry.ModRecord {
	return []*registry.ModRecord{
		{Hash: "h1", Name: "First", ModFileExists: true},
		{Hash: "h2", Name: "Second", ModFileExists: true, Installed: true},
		{Hash: "h3", Name: "Third", ModFileExists: true},
	}
}

func notify(kind worker.NotificationKind, hash string, args ...any) worker.Message {
	return worker.NewNotification(kind, hash, args...)
}

func ack(kind worker.MessageKind, hash string) worker.Message {
	return worker.Message{Kind: kind, Hash: hash, Active: true}
}

func TestInstallAutoProceedsWithoutConflict(t *testing.T) {
	for _, hash := range []string{"h1", "h3"} {
		t.Run(hash, func(t *testing.T) {
			o, ch, ui := setup(t, defaultMods()...)

			if err := o.RequestInstall(hash); err != nil {
				t.Fatalf("RequestInstall: %v", err)
			}
			if o.State() != ConflictChecking || ch.last().Kind != worker.KindGetModConflict || ch.last().Hash != hash {
				t.Fatalf("state=%v sent=%v", o.State(), ch.kinds())
			}

			o.Handle(ack(worker.KindGetModConflict, hash))
			o.Handle(notify(worker.ModConflictNotFound, hash))

			if o.State() != Installing {
				t.Errorf("state = %v, want Installing", o.State())
			}
			if ch.count(worker.KindInstallMod) != 1 || ch.last().Hash != hash {
				t.Errorf("InstallMod not sent for %s: %v", hash, ch.kinds())
			}
			if len(ui.conflicts) != 0 {
				t.Error("conflict presented without a conflict")
			}

			o.Handle(ack(worker.KindInstallMod, hash))
			o.Handle(notify(worker.InstallingModFinished, hash))

			rec, _ := o.Registry().Get(hash)
			if !rec.Installed {
				t.Error("installed flag not set")
			}
			if o.State() != Idle || o.Progress().Visible {
				t.Errorf("state=%v progress=%+v after finish", o.State(), o.Progress())
			}
		})
	}
}

func TestConflictGating(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		o, ch, ui := setup(t, defaultMods()...)
		o.RequestInstall("h1")
		o.Handle(notify(worker.ModConflict, "h1", []string{"h2", "deadbeef"}))

		if o.State() != ConflictPresented {
			t.Fatalf("state = %v, want ConflictPresented", o.State())
		}
		if ch.count(worker.KindInstallMod) != 0 {
			t.Fatal("InstallMod sent before accept")
		}
		if len(ui.conflicts) != 1 {
			t.Fatalf("conflicts presented = %d", len(ui.conflicts))
		}
		if body := ui.conflicts[0].Body(); body != "Mods:\n- Second\n- UNKNOWN MOD: deadbeef" {
			t.Errorf("conflict body = %q", body)
		}

		if err := o.Accept(); err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if ch.count(worker.KindInstallMod) != 1 || ch.last().Hash != "h1" {
			t.Errorf("InstallMod not sent after accept: %v", ch.kinds())
		}
		if o.State() != Installing || o.Conflict() != nil {
			t.Errorf("state = %v, conflict = %v", o.State(), o.Conflict())
		}
	})

	t.Run("cancel", func(t *testing.T) {
		o, ch, _ := setup(t, defaultMods()...)
		o.RequestInstall("h1")
		o.Handle(notify(worker.ModConflict, "h1", []string{"h2"}))

		if err := o.Cancel(); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if ch.count(worker.KindInstallMod) != 0 {
			t.Error("InstallMod sent after cancel")
		}
		if o.State() != Idle {
			t.Errorf("state = %v, want Idle", o.State())
		}
		if err := o.Accept(); !errors.Is(err, ErrNoConflict) {
			t.Errorf("Accept after cancel = %v, want ErrNoConflict", err)
		}
	})

	t.Run("accept from presenter", func(t *testing.T) {
		o, ch, ui := setup(t, defaultMods()...)
		ui.onConflict = func(Conflict) { o.Accept() }
		o.RequestInstall("h3")
		o.Handle(notify(worker.ModConflict, "h3", []string{"h2"}))
		if ch.count(worker.KindInstallMod) != 1 || o.State() != Installing {
			t.Errorf("state=%v sent=%v", o.State(), ch.kinds())
		}
	})
}

func TestErrorBatching(t *testing.T) {
	o, _, ui := setup(t, defaultMods()...)
	o.RequestInstall("h1")
	o.Handle(notify(worker.ModConflictNotFound, "h1"))

	o.Handle(notify(worker.InstallingModNotFoundFileElement, "h1", "hat"))
	o.Handle(notify(worker.InstallingModFile, "h1", "a.swf"))
	o.Handle(notify(worker.InstallingModSoundNotExist, "h1", "boom", 12, "ui.swf"))
	o.Handle(notify(worker.InstallingModSpriteNotExist, "h1", "shield", 3))

	if len(ui.errors) != 0 {
		t.Fatal("errors shown before the operation ended")
	}
	if o.State() != Installing {
		t.Fatalf("recoverable error changed state to %v", o.State())
	}

	o.Handle(notify(worker.InstallingModFinished, "h1"))

	if len(ui.errors) != 1 {
		t.Fatalf("error displays = %d, want 1", len(ui.errors))
	}
	want := []string{
		"Not found element 'hat' in mod package",
		"Not found sound 'boom (12)' in 'ui.swf'",
		"Not found sprite 'shield (3)' in mod file",
	}
	if got := ui.errors[0]; strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("error lines = %q", got)
	}
	if o.PendingErrors() != 0 {
		t.Errorf("buffer holds %d errors after flush", o.PendingErrors())
	}

	o.RequestUninstall("h1")
	o.Handle(notify(worker.UninstallingModFinished, "h1"))
	if len(ui.errors) != 1 {
		t.Errorf("empty batch displayed: %v", ui.errors)
	}
}

func TestDeleteGating(t *testing.T) {
	o, ch, _ := setup(t, defaultMods()...)

	err := o.DeleteMod("h2")
	if !errors.Is(err, ErrInstalled) {
		t.Fatalf("DeleteMod installed = %v, want ErrInstalled", err)
	}
	if len(ch.sent) != 0 || o.State() != Idle {
		t.Errorf("rejected delete sent %v, state %v", ch.kinds(), o.State())
	}

	if err := o.DeleteMod("h1"); err != nil {
		t.Fatalf("DeleteMod: %v", err)
	}
	got := ch.kinds()
	want := []worker.MessageKind{worker.KindDeleteMod, worker.KindReloadMods, worker.KindGetModsData}
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %s, want %s", i, got[i], want[i])
		}
	}
	if rec, _ := o.Registry().Get("h1"); rec.ModFileExists {
		t.Error("source file still marked present")
	}
	if o.State() != Loading {
		t.Errorf("state = %v, want Loading", o.State())
	}
}

func TestReinstall(t *testing.T) {
	o, ch, ui := setup(t, defaultMods()...)

	if err := o.RequestReinstall("h2"); err != nil {
		t.Fatalf("RequestReinstall: %v", err)
	}
	got := ch.kinds()
	if len(got) != 2 || got[0] != worker.KindUninstallMod || got[1] != worker.KindGetModConflict {
		t.Fatalf("sent %v, want UninstallMod then GetModConflict", got)
	}

	o.Handle(ack(worker.KindUninstallMod, "h2"))
	o.Handle(notify(worker.UninstallingModFile, "h2", "a.swf"))
	o.Handle(notify(worker.UninstallingModFinished, "h2"))
	if rec, _ := o.Registry().Get("h2"); rec.Installed {
		t.Error("installed flag still set after uninstall")
	}
	if o.State() != ConflictChecking {
		t.Fatalf("state = %v, want ConflictChecking", o.State())
	}

	o.Handle(ack(worker.KindGetModConflict, "h2"))
	o.Handle(notify(worker.ModConflictNotFound, "h2"))
	o.Handle(notify(worker.InstallingModFinished, "h2"))

	if rec, _ := o.Registry().Get("h2"); !rec.Installed {
		t.Error("reinstall did not set installed")
	}
	if o.State() != Idle || len(ui.errors) != 0 {
		t.Errorf("state=%v errors=%v", o.State(), ui.errors)
	}
}

func TestDecompile(t *testing.T) {
	o, ch, ui := setup(t, defaultMods()...)
	if err := o.RequestDecompile("h3"); err != nil {
		t.Fatal(err)
	}
	if o.State() != Decompiling || ch.last().Kind != worker.KindDecompileMod {
		t.Fatalf("state=%v sent=%v", o.State(), ch.kinds())
	}
	o.Handle(ack(worker.KindDecompileMod, "h3"))
	o.Handle(notify(worker.DecompilingMod, "h3"))
	if o.Progress().Caption != "Decompiling..." || o.Progress().Title != "Decompiling mod 'Third'..." {
		t.Errorf("progress = %+v", o.Progress())
	}
	o.Handle(notify(worker.DecompilingModFinished, "h3"))
	if o.State() != Idle {
		t.Errorf("state = %v, want Idle", o.State())
	}
	if len(ui.infos) != 1 || ui.infos[0] != DecompileFinishedTitle+": "+DecompileFinishedBody {
		t.Errorf("infos = %v", ui.infos)
	}
}

func TestStartupLoading(t *testing.T) {
	o, ch, ui := setup(t)
	o.Focus("b")

	if err := o.Start("/mods", "BMod Manager: 1.0"); err != nil {
		t.Fatal(err)
	}
	want := []worker.MessageKind{worker.KindSetModsPath, worker.KindReloadMods, worker.KindGetModsData, worker.KindInstallBaseMod}
	if got := ch.kinds(); strings.Join(kindStrings(got), ",") != strings.Join(kindStrings(want), ",") {
		t.Fatalf("startup sent %v", got)
	}
	if ch.sent[0].Path != "/mods" || ch.sent[3].Label != "BMod Manager: 1.0" {
		t.Errorf("startup payloads: %+v", ch.sent)
	}
	if o.State() != Loading || !ui.loadingOn {
		t.Fatalf("state = %v, loading = %v", o.State(), ui.loadingOn)
	}

	o.Handle(notify(worker.LoadingMod, "", "/mods/a.bmod"))
	o.Handle(notify(worker.LoadingMod, ""))
	o.Handle(notify(worker.LoadingModIsEmpty, "", "Empty One"))
	o.Handle(worker.Message{Kind: worker.KindReloadMods})
	o.Handle(worker.Message{Kind: worker.KindGetModsData, Mods: []worker.ModData{
		{Hash: "b", Name: "Beta"},
		{Hash: "a", Name: "alpha"},
	}})

	if o.State() != Idle || ui.loadingOn {
		t.Errorf("still loading: state=%v", o.State())
	}
	captions := strings.Join(ui.loading, "|")
	if !strings.Contains(captions, "Loading mod '/mods/a.bmod'") || !strings.Contains(captions, "Loading mod 'from cache'") {
		t.Errorf("loading captions = %v", ui.loading)
	}
	if len(ui.errors) != 1 || ui.errors[0][0] != "Mod 'Empty One' is empty" {
		t.Errorf("errors = %v", ui.errors)
	}
	if names := o.Index().Visible(); len(names) != 2 || names[0].Name != "alpha" {
		t.Errorf("index not resorted after load")
	}
	if rec, ok := o.Focused(); !ok || rec.Name != "Beta" {
		t.Errorf("focus not resolved after reload: %v %v", rec, ok)
	}
	if ui.refreshes == 0 {
		t.Error("mods change not announced")
	}
}

func kindStrings(kinds []worker.MessageKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func TestRequestFailedEndsOperation(t *testing.T) {
	o, ch, ui := setup(t, defaultMods()...)
	o.RequestInstall("h1")
	o.Handle(notify(worker.ModConflictNotFound, "h1"))
	install := ch.last()

	// A failure reported for another request is buffered only.
	other := notify(worker.RequestFailed, "h9", "unrelated")
	other.ID = "not-ours"
	o.Handle(other)
	if o.State() != Installing {
		t.Fatalf("unrelated failure ended the operation")
	}

	failed := notify(worker.RequestFailed, "h1", "disk full")
	failed.ID = install.ID
	o.Handle(failed)

	if o.State() != Idle {
		t.Errorf("state = %v, want Idle", o.State())
	}
	if rec, _ := o.Registry().Get("h1"); rec.Installed {
		t.Error("failed install marked the mod installed")
	}
	if len(ui.errors) != 1 || len(ui.errors[0]) != 2 || ui.errors[0][1] != "Worker error: disk full" {
		t.Errorf("errors = %v", ui.errors)
	}
}

func TestRequestFailedDuringReinstallMovesOn(t *testing.T) {
	o, ch, _ := setup(t, defaultMods()...)
	o.RequestReinstall("h2")
	uninstall := ch.sent[0]

	failed := notify(worker.RequestFailed, "h2", "locked")
	failed.ID = uninstall.ID
	o.Handle(failed)

	if o.State() != ConflictChecking {
		t.Errorf("state = %v, want ConflictChecking", o.State())
	}
}

func TestBusyAndUnknown(t *testing.T) {
	o, ch, _ := setup(t, defaultMods()...)
	if err := o.RequestInstall("nope"); !errors.Is(err, ErrUnknownMod) {
		t.Errorf("unknown hash = %v, want ErrUnknownMod", err)
	}
	o.RequestInstall("h1")
	for name, fn := range map[string]func(string) error{
		"install":   o.RequestInstall,
		"uninstall": o.RequestUninstall,
		"reinstall": o.RequestReinstall,
		"decompile": o.RequestDecompile,
		"delete":    o.DeleteMod,
	} {
		if err := fn("h3"); !errors.Is(err, ErrBusy) {
			t.Errorf("%s while busy = %v, want ErrBusy", name, err)
		}
	}
	if len(ch.sent) != 1 {
		t.Errorf("busy requests reached the worker: %v", ch.kinds())
	}
}

func TestSendFailureReturnsToIdle(t *testing.T) {
	o, ch, _ := setup(t, defaultMods()...)
	ch.err = errors.New("pipe closed")
	if err := o.RequestInstall("h1"); err == nil {
		t.Fatal("expected send error")
	}
	if o.State() != Idle {
		t.Errorf("state = %v, want Idle", o.State())
	}
}

func TestProgressCounting(t *testing.T) {
	o, _, _ := setup(t, defaultMods()...)
	o.RequestInstall("h1")
	o.Handle(ack(worker.KindGetModConflict, "h1"))
	o.Handle(notify(worker.ModElementsCount, "h1", 2))
	o.Handle(notify(worker.ModConflictSearchInSwf, "h1", "game.swf"))
	if p := o.Progress(); p.Value != 1 || p.Max != 2 || p.Caption != "Searching in: game.swf" {
		t.Errorf("conflict progress = %+v", p)
	}

	o.Handle(notify(worker.ModConflictNotFound, "h1"))
	if o.Progress().Value != 0 {
		t.Errorf("progress not reset before install: %+v", o.Progress())
	}
	o.Handle(ack(worker.KindInstallMod, "h1"))
	o.Handle(notify(worker.ModElementsCount, "h1", 3))
	o.Handle(notify(worker.InstallingModSwf, "h1", "game.swf"))
	o.Handle(notify(worker.InstallingModSwfSprite, "h1", "hat"))
	o.Handle(notify(worker.InstallingModFile, "h1", "a.wem"))

	p := o.Progress()
	if p.Title != "Installing mod 'First'..." || p.Value != 2 || p.Max != 3 || p.Caption != "Installing file: a.wem" {
		t.Errorf("install progress = %+v", p)
	}
	if f := p.Fraction(); f < 0.66 || f > 0.67 {
		t.Errorf("Fraction = %v", f)
	}
}

func TestReloadDeferredWhileBusy(t *testing.T) {
	o, ch, _ := setup(t, defaultMods()...)
	o.RequestUninstall("h2")
	if err := o.Reload(); err != nil {
		t.Fatal(err)
	}
	if ch.count(worker.KindReloadMods) != 0 {
		t.Fatal("reload sent while uninstalling")
	}
	o.Handle(notify(worker.UninstallingModFinished, "h2"))
	if ch.count(worker.KindReloadMods) != 1 || o.State() != Loading {
		t.Errorf("deferred reload not started: state=%v sent=%v", o.State(), ch.kinds())
	}
}

func TestErrorWhileIdleShownImmediately(t *testing.T) {
	o, _, ui := setup(t, defaultMods()...)
	o.Handle(notify(worker.CompileModSourcesSaveError, "h1", "x"))
	if len(ui.errors) != 1 || o.PendingErrors() != 0 {
		t.Errorf("errors = %v pending = %d", ui.errors, o.PendingErrors())
	}
	if !strings.HasPrefix(ui.errors[0][0], "Notification") {
		t.Errorf("untemplated kind rendered as %q", ui.errors[0][0])
	}
}

func TestRecoverableKindsBuffered(t *testing.T) {
	kinds := []worker.NotificationKind{
		worker.LoadingModIsEmpty,
		worker.InstallingModNotFoundFileElement,
		worker.InstallingModNotFoundGameSwf,
		worker.InstallingModSwfScriptError,
		worker.InstallingModSwfSoundSymbolclassNotExist,
		worker.InstallingModSoundNotExist,
		worker.InstallingModSwfSpriteSymbolclassNotExist,
		worker.InstallingModSpriteNotExist,
		worker.UninstallingModSwfOriginalElementNotFound,
		worker.UninstallingModSwfElementNotFound,
		worker.CompileModSourcesSpriteHasNoSymbolclass,
		worker.CompileModSourcesSpriteEmpty,
		worker.CompileModSourcesSpriteNotFoundInFolder,
		worker.CompileModSourcesUnsupportedCategory,
		worker.CompileModSourcesUnknownFile,
		worker.CompileModSourcesSaveError,
		worker.RequestFailed,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			if !kind.Recoverable() {
				t.Fatal("kind not recoverable")
			}
			o, _, ui := setup(t, defaultMods()...)
			o.RequestInstall("h1")
			o.Handle(notify(worker.ModConflictNotFound, "h1"))

			o.Handle(notify(kind, "h1", "x"))
			if o.PendingErrors() != 1 || len(ui.errors) != 0 {
				t.Fatalf("pending = %d, shown = %v", o.PendingErrors(), ui.errors)
			}
			o.Handle(notify(worker.InstallingModFinished, "h1"))
			if len(ui.errors) != 1 || len(ui.errors[0]) != 1 {
				t.Errorf("errors shown = %v", ui.errors)
			}
		})
	}

	o, _, ui := setup(t, defaultMods()...)
	o.Handle(notify(worker.NotificationKind("SomethingNew"), "h1"))
	if o.PendingErrors() != 0 || len(ui.errors) != 0 {
		t.Errorf("unknown kind treated as error: %v", ui.errors)
	}
}

func TestFormatNotification(t *testing.T) {
	tests := []struct {
		n    worker.Notification
		want string
	}{
		{worker.Notification{Kind: worker.InstallingModNotFoundGameSwf, Args: []any{"game.swf"}}, "Not found game file 'game.swf'"},
		{worker.Notification{Kind: worker.InstallingModSwfScriptError, Args: []any{"Main"}}, "Script 'Main' not installed"},
		{worker.Notification{Kind: worker.InstallingModSwfSoundSymbolclassNotExist, Args: []any{"s", "f.swf"}}, "Not found sound 's' in 'f.swf'"},
		{worker.Notification{Kind: worker.InstallingModSwfSpriteSymbolclassNotExist, Args: []any{"p", "f.swf"}}, "Not found sprite 'p' in 'f.swf'"},
		{worker.Notification{Kind: worker.UninstallingModSwfOriginalElementNotFound, Args: []any{"e", "f.swf"}}, "Not found orig element 'e' in 'f.swf'"},
		{worker.Notification{Kind: worker.UninstallingModSwfElementNotFound, Args: []any{"e", "f.swf"}}, "Not found mod element 'e' in 'f.swf'"},
	}
	for _, tt := range tests {
		t.Run(string(tt.n.Kind), func(t *testing.T) {
			if got := FormatNotification(tt.n); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActions(t *testing.T) {
	tests := []struct {
		name string
		rec  registry.ModRecord
		want string
	}{
		{"installed with file", registry.ModRecord{Installed: true, ModFileExists: true}, "uninstall,reinstall,decompile,delete"},
		{"installed without file", registry.ModRecord{Installed: true}, "uninstall,delete"},
		{"available", registry.ModRecord{ModFileExists: true}, "install,decompile,delete"},
		{"missing", registry.ModRecord{}, "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, a := range Actions(&tt.rec) {
				got = append(got, a.String())
			}
			if strings.Join(got, ",") != tt.want {
				t.Errorf("Actions = %v, want %s", got, tt.want)
			}
		})
	}
}
