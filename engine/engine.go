// Package engine is the reference worker. It keeps track of which mods are
// applied to the game and reports its progress through worker notifications.
// It does bookkeeping only; game files are never patched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bmod-manager/db"
	"bmod-manager/worker"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoModsPath is returned for requests that need the mods directory
	// before SetModsPath was received.
	ErrNoModsPath = errors.New("mods path is not set")
	// ErrModNotLoaded is returned for hashes not seen by the last reload.
	ErrModNotLoaded = errors.New("mod is not loaded")
)

// Engine serves worker requests. It is not safe for concurrent use;
// worker.Serve calls it one request at a time.
type Engine struct {
	db  *gorm.DB
	log *zap.SugaredLogger

	modsDir  string
	cacheDir string

	mods  map[string]*modFile
	order []string
	// seen remembers files by path so unchanged files skip rehashing.
	seen map[string]*modFile
}

// New returns an engine storing its applied state in store. cacheDir may be
// empty, in which case ".cache" inside the mods directory is used.
func New(store *gorm.DB, cacheDir string, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		db:       store,
		log:      log,
		cacheDir: cacheDir,
		mods:     make(map[string]*modFile),
		seen:     make(map[string]*modFile),
	}
}

// Handle implements worker.Handler.
func (e *Engine) Handle(ctx context.Context, req worker.Request, emit worker.Emitter) error {
	if req.Kind != worker.KindSetModsPath && e.modsDir == "" {
		return ErrNoModsPath
	}
	switch req.Kind {
	case worker.KindSetModsPath:
		return e.setModsPath(req.Path, emit)
	case worker.KindReloadMods:
		return e.reload(ctx, emit)
	case worker.KindGetModsData:
		return e.modsData(emit)
	case worker.KindGetModConflict:
		return e.conflicts(req.Hash, emit)
	case worker.KindInstallMod:
		return e.install(ctx, req.Hash, emit)
	case worker.KindUninstallMod:
		return e.uninstall(ctx, req.Hash, emit)
	case worker.KindDecompileMod:
		return e.decompile(req.Hash, emit)
	case worker.KindDeleteMod:
		return e.remove(req.Hash, emit)
	case worker.KindInstallBaseMod:
		return e.installBase(req.Label, emit)
	}
	return fmt.Errorf("unsupported request %q", req.Kind)
}

func (e *Engine) setModsPath(dir string, emit worker.Emitter) error {
	if dir == "" {
		return fmt.Errorf("%w: empty path", ErrNoModsPath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create mods dir: %w", err)
	}
	if e.modsDir != abs {
		e.mods = make(map[string]*modFile)
		e.order = nil
		e.seen = make(map[string]*modFile)
	}
	e.modsDir = abs
	e.log.Infow("Mods path set", zap.String("path", abs))
	return emit.Emit(worker.Message{Kind: worker.KindSetModsPath})
}

func (e *Engine) cache() string {
	if e.cacheDir != "" {
		return e.cacheDir
	}
	return filepath.Join(e.modsDir, ".cache")
}

// reload rescans the mods directory.
func (e *Engine) reload(ctx context.Context, emit worker.Emitter) error {
	mods := make(map[string]*modFile)
	var order []string
	seen := make(map[string]*modFile)

	err := filepath.WalkDir(e.modsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != e.modsDir && (strings.HasPrefix(d.Name(), ".") || strings.HasSuffix(d.Name(), DecompiledSuffix)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(p), ModExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		m, cached := e.seen[p]
		if cached && m.Size == info.Size() && m.ModTime.Equal(info.ModTime()) {
			if err := emit.Notify(worker.LoadingMod, ""); err != nil {
				return err
			}
		} else {
			if err := emit.Notify(worker.LoadingMod, "", p); err != nil {
				return err
			}
			if m, err = readModFile(p, info); err != nil {
				e.log.Warnw("Skipping unreadable mod", zap.String("path", p), zap.Error(err))
				return nil
			}
			if err := e.extractPreviews(m); err != nil {
				e.log.Warnw("Failed to extract previews", zap.String("path", p), zap.Error(err))
			}
		}
		seen[p] = m

		if len(m.Elements) == 0 {
			return emit.Notify(worker.LoadingModIsEmpty, m.Hash, p)
		}
		if _, dup := mods[m.Hash]; dup {
			e.log.Infow("Duplicate mod content", zap.String("path", p), zap.String("hash", m.Hash))
			return nil
		}
		mods[m.Hash] = m
		order = append(order, m.Hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan mods dir: %w", err)
	}

	e.mods, e.order, e.seen = mods, order, seen
	e.log.Infow("Mods reloaded", zap.Int("count", len(order)))
	return emit.Emit(worker.Message{Kind: worker.KindReloadMods})
}

func (e *Engine) previewDir(hash string) string {
	return filepath.Join(e.cache(), "previews", hash)
}

func (e *Engine) extractPreviews(m *modFile) error {
	if len(m.Previews) == 0 {
		return nil
	}
	_, err := unpack(m, e.previewDir(m.Hash), func(name string) bool {
		return strings.HasPrefix(name, previewsDir)
	})
	return err
}

func (e *Engine) previewPaths(m *modFile) []string {
	out := make([]string, 0, len(m.Previews))
	for _, name := range m.Previews {
		out = append(out, filepath.Join(e.previewDir(m.Hash), filepath.FromSlash(name)))
	}
	return out
}

// modsData reports every loaded mod plus installed mods whose source file is
// gone.
func (e *Engine) modsData(emit worker.Emitter) error {
	rows, err := e.appliedMods()
	if err != nil {
		return err
	}
	applied := make(map[string]db.AppliedMod, len(rows))
	for _, a := range rows {
		applied[a.Hash] = a
	}

	out := make([]worker.ModData, 0, len(e.order)+len(applied))
	for _, hash := range e.order {
		m := e.mods[hash]
		data := worker.ModData{
			Hash:          m.Hash,
			Name:          m.Name(),
			Author:        m.Manifest.Author,
			Version:       m.Manifest.Version,
			Description:   m.Manifest.Description,
			GameVersion:   m.Manifest.GameVersion,
			Tags:          m.Manifest.Tags,
			PreviewPaths:  e.previewPaths(m),
			Platform:      "bmod",
			ModFileExists: true,
			ModPath:       m.Path,
			DateAdded:     float64(m.ModTime.UnixNano()) / float64(time.Second),
		}
		if a, ok := applied[hash]; ok {
			data.Installed = true
			data.CurrentVersion = a.Version == m.Manifest.Version
			data.CachePath = a.CachePath
		}
		out = append(out, data)
	}
	for _, a := range rows {
		if _, ok := e.mods[a.Hash]; ok {
			continue
		}
		out = append(out, worker.ModData{
			Hash:           a.Hash,
			Name:           a.Name,
			Author:         a.Author,
			Version:        a.Version,
			GameVersion:    a.GameVersion,
			Platform:       "bmod",
			Installed:      true,
			CurrentVersion: true,
			ModPath:        a.SourcePath,
			CachePath:      a.CachePath,
			DateAdded:      float64(a.InstalledAt.UnixNano()) / float64(time.Second),
		})
	}
	return emit.Emit(worker.Message{Kind: worker.KindGetModsData, Mods: out})
}

func (e *Engine) loaded(hash string) (*modFile, error) {
	m, ok := e.mods[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModNotLoaded, hash)
	}
	return m, nil
}
