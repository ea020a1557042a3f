// Package registry holds the in-memory view of the mods the worker knows
// about and derives display orderings over it.
package registry

import (
	"math"
	"time"

	"bmod-manager/worker"
)

// ModRecord describes one mod, keyed by its content hash.
type ModRecord struct {
	Hash        string
	Name        string
	Author      string
	Version     string
	Description string
	GameVersion string
	Platform    string
	Tags        []string
	Previews    []string

	Installed      bool
	ModFileExists  bool
	CurrentVersion bool

	SourcePath string
	CachePath  string
	DateAdded  time.Time
}

// FromModData converts the worker's description of a mod.
func FromModData(d worker.ModData) *ModRecord {
	rec := &ModRecord{
		Hash:           d.Hash,
		Name:           d.Name,
		Author:         d.Author,
		Version:        d.Version,
		Description:    d.Description,
		GameVersion:    d.GameVersion,
		Platform:       d.Platform,
		Tags:           append([]string(nil), d.Tags...),
		Previews:       append([]string(nil), d.PreviewPaths...),
		Installed:      d.Installed,
		ModFileExists:  d.ModFileExists,
		CurrentVersion: d.CurrentVersion,
		SourcePath:     d.ModPath,
		CachePath:      d.CachePath,
	}
	if d.DateAdded > 0 {
		sec, frac := math.Modf(d.DateAdded)
		rec.DateAdded = time.Unix(int64(sec), int64(frac*1e9))
	}
	return rec
}

// Registry owns every ModRecord. It is not safe for concurrent use; only the
// orchestration goroutine touches it.
type Registry struct {
	records map[string]*ModRecord
	order   []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*ModRecord)}
}

// Put adds rec, or replaces the record with the same hash in place.
func (r *Registry) Put(rec *ModRecord) {
	if _, ok := r.records[rec.Hash]; !ok {
		r.order = append(r.order, rec.Hash)
	}
	r.records[rec.Hash] = rec
}

// Get looks a record up by hash.
func (r *Registry) Get(hash string) (*ModRecord, bool) {
	rec, ok := r.records[hash]
	return rec, ok
}

// Name returns the display name for hash, or "" when unknown.
func (r *Registry) Name(hash string) string {
	if rec, ok := r.records[hash]; ok {
		return rec.Name
	}
	return ""
}

// SetInstalled updates the installed flag. It reports false for unknown
// hashes.
func (r *Registry) SetInstalled(hash string, installed bool) bool {
	rec, ok := r.records[hash]
	if ok {
		rec.Installed = installed
	}
	return ok
}

// MarkFileMissing records that the source asset of hash is gone.
func (r *Registry) MarkFileMissing(hash string) bool {
	rec, ok := r.records[hash]
	if ok {
		rec.ModFileExists = false
	}
	return ok
}

// Records returns all records in insertion order.
func (r *Registry) Records() []*ModRecord {
	out := make([]*ModRecord, 0, len(r.order))
	for _, hash := range r.order {
		out = append(out, r.records[hash])
	}
	return out
}

// Len reports the number of records.
func (r *Registry) Len() int { return len(r.order) }

// Clear drops every record.
func (r *Registry) Clear() {
	r.records = make(map[string]*ModRecord)
	r.order = nil
}
