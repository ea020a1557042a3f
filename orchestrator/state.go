package orchestrator

import (
	"fmt"
	"strings"

	"bmod-manager/registry"
)

// State is the orchestrator's position in an operation.
type State int

const (
	Idle State = iota
	Loading
	ConflictChecking
	ConflictPresented
	Installing
	Uninstalling
	Decompiling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Loading:
		return "Loading"
	case ConflictChecking:
		return "ConflictChecking"
	case ConflictPresented:
		return "ConflictPresented"
	case Installing:
		return "Installing"
	case Uninstalling:
		return "Uninstalling"
	case Decompiling:
		return "Decompiling"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Progress is the determinate progress view of the running operation.
type Progress struct {
	Visible bool
	Title   string
	Caption string
	Value   int
	Max     int
}

// Fraction returns Value/Max clamped to [0,1], or 0 when Max is unknown.
func (p Progress) Fraction() float64 {
	if p.Max <= 0 {
		return 0
	}
	f := float64(p.Value) / float64(p.Max)
	if f > 1 {
		return 1
	}
	return f
}

// ConflictTitle heads every conflict prompt.
const ConflictTitle = "Conflict mods!"

// Conflict is an install waiting for the user's decision.
type Conflict struct {
	Hash   string
	Name   string
	Hashes []string
	// Names has one entry per conflicting hash; unknown mods are described
	// by their hash.
	Names []string
}

// Body renders the list of conflicting mods.
func (c Conflict) Body() string {
	var b strings.Builder
	b.WriteString("Mods:")
	for _, name := range c.Names {
		b.WriteString("\n- ")
		b.WriteString(name)
	}
	return b.String()
}

// Action is something the user can do to the focused mod.
type Action int

const (
	ActionInstall Action = iota
	ActionUninstall
	ActionReinstall
	ActionDecompile
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionUninstall:
		return "uninstall"
	case ActionReinstall:
		return "reinstall"
	case ActionDecompile:
		return "decompile"
	case ActionDelete:
		return "delete"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Actions lists what the action bar offers for rec. Delete is always listed
// and refused later while the mod is installed.
func Actions(rec *registry.ModRecord) []Action {
	if rec == nil {
		return nil
	}
	var out []Action
	switch {
	case rec.Installed:
		out = append(out, ActionUninstall)
		if rec.ModFileExists {
			out = append(out, ActionReinstall)
		}
	case rec.ModFileExists:
		out = append(out, ActionInstall)
	}
	if rec.ModFileExists {
		out = append(out, ActionDecompile)
	}
	return append(out, ActionDelete)
}
