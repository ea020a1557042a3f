// Package worker defines the wire protocol spoken between the front end and
// the long-lived worker process that performs the actual mod patching.
//
// The front end sends Requests; the worker answers asynchronously with zero
// or more Notification messages followed by one reply of the request's own
// kind. Messages are newline-delimited JSON over the worker's stdin/stdout.
package worker

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// MessageKind is the top-level tag of every request and reply.
type MessageKind string

const (
	KindReloadMods     MessageKind = "ReloadMods"
	KindGetModsData    MessageKind = "GetModsData"
	KindGetModConflict MessageKind = "GetModConflict"
	KindInstallMod     MessageKind = "InstallMod"
	KindUninstallMod   MessageKind = "UninstallMod"
	KindDecompileMod   MessageKind = "DecompileMod"
	KindDeleteMod      MessageKind = "DeleteMod"
	KindSetModsPath    MessageKind = "SetModsPath"
	KindInstallBaseMod MessageKind = "InstallBaseMod"
	KindNotification   MessageKind = "Notification"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindReloadMods, KindGetModsData, KindGetModConflict, KindInstallMod,
		KindUninstallMod, KindDecompileMod, KindDeleteMod, KindSetModsPath,
		KindInstallBaseMod, KindNotification:
		return true
	}
	return false
}

// Request is a single command sent to the worker.
type Request struct {
	ID    string      `json:"id"`
	Kind  MessageKind `json:"kind"`
	Hash  string      `json:"hash,omitempty"`
	Path  string      `json:"path,omitempty"`
	Label string      `json:"label,omitempty"`
}

// NewRequest builds a request of the given kind with a fresh correlation id.
func NewRequest(kind MessageKind) Request {
	return Request{ID: uuid.NewString(), Kind: kind}
}

// HashRequest builds a request addressed to a single mod.
func HashRequest(kind MessageKind, hash string) Request {
	req := NewRequest(kind)
	req.Hash = hash
	return req
}

// SetModsPathRequest points the worker at the managed mods directory.
func SetModsPathRequest(path string) Request {
	req := NewRequest(KindSetModsPath)
	req.Path = path
	return req
}

// InstallBaseModRequest asks the worker to apply the loader's base mod.
func InstallBaseModRequest(label string) Request {
	req := NewRequest(KindInstallBaseMod)
	req.Label = label
	return req
}

// Message is anything the worker sends back.
type Message struct {
	// ID echoes the Request.ID this message belongs to.
	ID           string        `json:"id,omitempty"`
	Kind         MessageKind   `json:"kind"`
	Hash         string        `json:"hash,omitempty"`
	Active       bool          `json:"active,omitempty"`
	Mods         []ModData     `json:"mods,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// ModData is the worker's description of one mod, as returned by GetModsData.
type ModData struct {
	Hash           string   `json:"hash"`
	Name           string   `json:"name"`
	Author         string   `json:"author"`
	Version        string   `json:"version"`
	Description    string   `json:"description"`
	GameVersion    string   `json:"gameVersion"`
	Tags           []string `json:"tags"`
	PreviewPaths   []string `json:"previewsPaths"`
	Platform       string   `json:"platform"`
	Installed      bool     `json:"installed"`
	CurrentVersion bool     `json:"currentVersion"`
	ModFileExists  bool     `json:"modFileExist"`
	ModPath        string   `json:"modPath"`
	CachePath      string   `json:"modCachePath"`
	// DateAdded is seconds since the epoch; zero when unknown.
	DateAdded float64 `json:"dateAdded"`
}

// Notification is a progress or error report about one subject.
// Args never include the subject hash.
type Notification struct {
	Kind NotificationKind `json:"type"`
	Hash string           `json:"hash,omitempty"`
	Args []any            `json:"args,omitempty"`
}

// NewNotification wraps a notification into a Message.
func NewNotification(kind NotificationKind, hash string, args ...any) Message {
	return Message{
		Kind:         KindNotification,
		Hash:         hash,
		Notification: &Notification{Kind: kind, Hash: hash, Args: args},
	}
}

// Arg returns argument i rendered as text, or "" when absent.
func (n Notification) Arg(i int) string {
	if i < 0 || i >= len(n.Args) || n.Args[i] == nil {
		return ""
	}
	switch v := n.Args[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// IntArg returns argument i as an int. JSON numbers arrive as float64.
func (n Notification) IntArg(i int) int {
	if i < 0 || i >= len(n.Args) {
		return 0
	}
	switch v := n.Args[i].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		x, _ := v.Int64()
		return int(x)
	case string:
		x, _ := strconv.Atoi(v)
		return x
	}
	return 0
}

// StringsArg returns argument i as a list of strings.
func (n Notification) StringsArg(i int) []string {
	if i < 0 || i >= len(n.Args) {
		return nil
	}
	switch v := n.Args[i].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// String renders the notification structurally. Used when no message
// template exists for its kind.
func (n Notification) String() string {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Sprintf("Notification(%s, %s, %v)", n.Kind, n.Hash, n.Args)
	}
	return "Notification" + string(data)
}
