package orchestrator

import (
	"fmt"

	"bmod-manager/worker"
)

// ErrorsTitle heads the batched error report.
const ErrorsTitle = "Errors:"

// FormatNotification renders a buffered error notification as one line.
// Kinds without a template fall back to a structural dump.
func FormatNotification(n worker.Notification) string {
	switch n.Kind {
	case worker.LoadingModIsEmpty:
		return fmt.Sprintf("Mod '%s' is empty", n.Arg(0))
	case worker.InstallingModNotFoundFileElement:
		return fmt.Sprintf("Not found element '%s' in mod package", n.Arg(0))
	case worker.InstallingModNotFoundGameSwf:
		return fmt.Sprintf("Not found game file '%s'", n.Arg(0))
	case worker.InstallingModSwfScriptError:
		return fmt.Sprintf("Script '%s' not installed", n.Arg(0))
	case worker.InstallingModSwfSoundSymbolclassNotExist:
		return fmt.Sprintf("Not found sound '%s' in '%s'", n.Arg(0), n.Arg(1))
	case worker.InstallingModSoundNotExist:
		return fmt.Sprintf("Not found sound '%s (%s)' in '%s'", n.Arg(0), n.Arg(1), n.Arg(2))
	case worker.InstallingModSwfSpriteSymbolclassNotExist:
		return fmt.Sprintf("Not found sprite '%s' in '%s'", n.Arg(0), n.Arg(1))
	case worker.InstallingModSpriteNotExist:
		return fmt.Sprintf("Not found sprite '%s (%s)' in mod file", n.Arg(0), n.Arg(1))
	case worker.UninstallingModSwfOriginalElementNotFound:
		return fmt.Sprintf("Not found orig element '%s' in '%s'", n.Arg(0), n.Arg(1))
	case worker.UninstallingModSwfElementNotFound:
		return fmt.Sprintf("Not found mod element '%s' in '%s'", n.Arg(0), n.Arg(1))
	case worker.RequestFailed:
		return fmt.Sprintf("Worker error: %s", n.Arg(0))
	}
	return n.String()
}
