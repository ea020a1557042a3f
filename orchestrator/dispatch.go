package orchestrator

import (
	"fmt"

	"bmod-manager/registry"
	"bmod-manager/worker"

	"go.uber.org/zap"
)

// DecompileFinishedTitle and DecompileFinishedBody make up the notice shown
// after a successful decompile.
const (
	DecompileFinishedTitle = "Decompile Finished"
	DecompileFinishedBody  = "The mod has been decompiled successfully."
)

// Handle reacts to one worker message. Messages are processed in the order
// given; nothing is reordered or coalesced.
func (o *Orchestrator) Handle(msg worker.Message) {
	switch msg.Kind {
	case worker.KindNotification:
		if msg.Notification == nil {
			o.log.Warnw("Notification message without payload", zap.String("id", msg.ID))
			return
		}
		o.handleNotification(msg.ID, *msg.Notification)
	case worker.KindReloadMods:
		o.reg.Clear()
		o.index.Resort()
	case worker.KindGetModsData:
		for _, data := range msg.Mods {
			o.reg.Put(registry.FromModData(data))
		}
		o.index.Resort()
		o.ui.ModsChanged()
		if o.state == Loading {
			o.finish()
		}
	case worker.KindGetModConflict:
		if msg.Active {
			o.openProgress(fmt.Sprintf("Searching conflicts '%s'...", o.displayName(msg.Hash)), "Searching...")
		}
	case worker.KindInstallMod:
		if msg.Active {
			o.openProgress(fmt.Sprintf("Installing mod '%s'...", o.displayName(msg.Hash)), "Loading mod...")
		}
	case worker.KindUninstallMod:
		if msg.Active {
			o.openProgress(fmt.Sprintf("Uninstalling mod '%s'...", o.displayName(msg.Hash)), "")
		}
	case worker.KindDecompileMod:
		if msg.Active {
			o.openProgress(fmt.Sprintf("Decompiling mod '%s'...", o.displayName(msg.Hash)), "Starting...")
		}
	case worker.KindInstallBaseMod:
		if o.state == Loading {
			o.ui.LoadingChanged(true, "Installing base mod...")
		}
	case worker.KindDeleteMod, worker.KindSetModsPath:
		o.log.Debugw("Worker acknowledged request", zap.String("kind", string(msg.Kind)), zap.String("hash", msg.Hash))
	default:
		o.log.Warnw("Unhandled worker message", zap.String("kind", string(msg.Kind)))
	}
}

func (o *Orchestrator) handleNotification(id string, n worker.Notification) {
	switch n.Kind {
	case worker.LoadingMod:
		if o.state == Loading {
			path := n.Arg(0)
			if path == "" {
				path = "from cache"
			}
			o.ui.LoadingChanged(true, fmt.Sprintf("Loading mod '%s'", path))
		}
	case worker.ModElementsCount:
		if n.Hash == o.subject {
			o.progress.Max = n.IntArg(0)
			o.ui.ProgressChanged(o.progress)
		}

	case worker.ModConflictSearchInSwf:
		o.setCaption("Searching in: "+n.Arg(0), true)
	case worker.ModConflictNotFound:
		if o.state != ConflictChecking || n.Hash != o.subject {
			o.log.Warnw("Stray conflict result", zap.String("hash", n.Hash), zap.String("state", o.state.String()))
			return
		}
		o.progress.Value = 0
		if err := o.dispatch(Installing, worker.HashRequest(worker.KindInstallMod, n.Hash)); err != nil {
			o.log.Errorw("Failed to request install", zap.String("hash", n.Hash), zap.Error(err))
		}
	case worker.ModConflict:
		if o.state != ConflictChecking || n.Hash != o.subject {
			o.log.Warnw("Stray conflict result", zap.String("hash", n.Hash), zap.String("state", o.state.String()))
			return
		}
		o.presentConflict(n.Hash, n.StringsArg(0))

	case worker.InstallingModSwf:
		o.setCaption("Open game file: "+n.Arg(0), false)
	case worker.InstallingModSwfSprite:
		o.setCaption("Installing sprite: "+n.Arg(0), true)
	case worker.InstallingModSwfSound:
		o.setCaption("Installing sound: "+n.Arg(0), true)
	case worker.InstallingModFile:
		o.setCaption("Installing file: "+n.Arg(0), true)
	case worker.InstallingModFileCache:
		o.setCaption(n.Arg(0), true)
	case worker.InstallingModFinished:
		o.reg.SetInstalled(n.Hash, true)
		o.ui.ModsChanged()
		if o.state == Installing && n.Hash == o.subject {
			o.log.Infow("Mod installed", zap.String("hash", n.Hash))
			o.finish()
		}

	case worker.UninstallingModSwf, worker.UninstallingModFile:
		o.setCaption(n.Arg(0), n.Kind == worker.UninstallingModFile)
	case worker.UninstallingModSwfSprite, worker.UninstallingModSwfSound:
		o.setCaption(n.Arg(0), true)
	case worker.UninstallingModFinished:
		o.reg.SetInstalled(n.Hash, false)
		o.ui.ModsChanged()
		if o.state == Uninstalling && n.Hash == o.subject {
			o.log.Infow("Mod uninstalled", zap.String("hash", n.Hash))
			o.endUninstall()
		}

	case worker.DecompilingMod:
		o.setCaption("Decompiling...", false)
	case worker.DecompilingModFinished:
		if o.state == Decompiling && n.Hash == o.subject {
			o.hideProgress()
			o.ui.ShowInfo(DecompileFinishedTitle, DecompileFinishedBody)
			o.finish()
		}

	case worker.RequestFailed:
		o.bufferError(n)
		if id != "" && id == o.pendingID {
			o.requestFailed()
		}
	default:
		if n.Kind.Recoverable() {
			o.bufferError(n)
			return
		}
		o.log.Warnw("Unhandled notification", zap.String("type", string(n.Kind)), zap.String("hash", n.Hash))
	}
}

// bufferError holds n until the running operation ends. With nothing
// running it is shown straight away.
func (o *Orchestrator) bufferError(n worker.Notification) {
	o.log.Warnw("Worker reported error", zap.String("type", string(n.Kind)), zap.String("hash", n.Hash), zap.Any("args", n.Args))
	o.errors = append(o.errors, n)
	if o.state == Idle {
		o.flushErrors()
	}
}

// requestFailed ends the phase whose driving request the worker gave up on.
func (o *Orchestrator) requestFailed() {
	o.log.Warnw("Worker request failed", zap.String("state", o.state.String()), zap.String("hash", o.subject))
	switch o.state {
	case Uninstalling:
		o.endUninstall()
	case Loading, ConflictChecking, Installing, Decompiling:
		o.finish()
	}
}

// endUninstall finishes an uninstall, or moves a reinstall on to the
// conflict check that was queued with it.
func (o *Orchestrator) endUninstall() {
	if o.reinstall == "" {
		o.finish()
		return
	}
	o.state = ConflictChecking
	o.pendingID = o.reinstall
	o.reinstall = ""
	o.progress.Value = 0
}

func (o *Orchestrator) presentConflict(hash string, conflicting []string) {
	c := Conflict{Hash: hash, Name: o.displayName(hash), Hashes: conflicting}
	for _, h := range conflicting {
		if name := o.reg.Name(h); name != "" {
			c.Names = append(c.Names, name)
		} else {
			c.Names = append(c.Names, "UNKNOWN MOD: "+h)
			o.log.Errorw("Conflicting mod is not in the registry", zap.String("hash", h))
		}
	}
	o.state = ConflictPresented
	o.conflict = &c
	o.hideProgress()
	o.ui.ConflictFound(c)
}
