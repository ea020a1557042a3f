package registry

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Footprint attributes files in the mods directory to mods by name. It is a
// heuristic: mods with overlapping names can be credited with each other's
// files. Lookups never fail; an unattributed mod has size zero and a zero
// time.
type Footprint struct {
	ModsDir string
	log     *zap.SugaredLogger
}

// NewFootprint returns a resolver rooted at modsDir.
func NewFootprint(modsDir string, log *zap.SugaredLogger) *Footprint {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Footprint{ModsDir: modsDir, log: log}
}

type modFile struct {
	path      string
	base      string
	sanitized string
	size      int64
	modTime   time.Time
}

// snapshot is one walk of the mods directory shared by every lookup of a
// single sort.
type snapshot struct {
	files []modFile
	dirs  []string
	mods  int
}

func (f *Footprint) scan(mods int) *snapshot {
	snap := &snapshot{mods: mods}
	if f.ModsDir == "" {
		return snap
	}
	err := filepath.WalkDir(f.ModsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if d.IsDir() {
			if path == f.ModsDir {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			snap.dirs = append(snap.dirs, path)
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".bmod") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		snap.files = append(snap.files, modFile{
			path:      path,
			base:      d.Name(),
			sanitized: sanitize(stem),
			size:      info.Size(),
			modTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		f.log.Debugw("Mods directory scan incomplete", zap.Error(err))
	}
	return snap
}

// file picks the asset attributed to rec: the recorded source path, then a
// file carrying the hash in its name, then a sanitized name match, then the
// only file when there is only one mod.
func (s *snapshot) file(rec *ModRecord) (modFile, bool) {
	if rec.SourcePath != "" {
		if info, err := os.Stat(rec.SourcePath); err == nil && !info.IsDir() {
			return modFile{path: rec.SourcePath, size: info.Size(), modTime: info.ModTime()}, true
		}
	}
	if rec.Hash != "" {
		for _, mf := range s.files {
			if strings.Contains(mf.base, rec.Hash) {
				return mf, true
			}
		}
	}
	if name := sanitize(rec.Name); name != "" {
		for _, mf := range s.files {
			if strings.Contains(mf.sanitized, name) {
				return mf, true
			}
		}
	}
	if s.mods == 1 && len(s.files) == 1 {
		return s.files[0], true
	}
	return modFile{}, false
}

func (s *snapshot) size(rec *ModRecord) int64 {
	if !rec.ModFileExists {
		return 0
	}
	if mf, ok := s.file(rec); ok {
		return mf.size
	}
	name := sanitize(rec.Name)
	if name == "" {
		return 0
	}
	for _, dir := range s.dirs {
		if strings.Contains(sanitize(filepath.Base(dir)), name) {
			return dirSize(dir)
		}
	}
	return 0
}

func (s *snapshot) modTime(rec *ModRecord) time.Time {
	if !rec.DateAdded.IsZero() {
		return rec.DateAdded
	}
	if mf, ok := s.file(rec); ok {
		return mf.modTime
	}
	return time.Time{}
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Size returns the best-effort on-disk size of rec.
func (f *Footprint) Size(rec *ModRecord, mods int) int64 {
	return f.scan(mods).size(rec)
}

// ModTime returns rec's authoritative date added, or the modification time
// of its attributed file.
func (f *Footprint) ModTime(rec *ModRecord, mods int) time.Time {
	return f.scan(mods).modTime(rec)
}

// sanitize keeps letters and digits only, case folded.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range cases.Fold().String(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
