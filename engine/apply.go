package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"bmod-manager/db"
	"bmod-manager/worker"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	historyInstall   = "install"
	historyUninstall = "uninstall"
	historyBase      = "base"
)

func (e *Engine) appliedMods() ([]db.AppliedMod, error) {
	var rows []db.AppliedMod
	if err := e.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query applied mods: %w", err)
	}
	return rows, nil
}

// conflicts looks for installed mods overriding any element of hash.
func (e *Engine) conflicts(hash string, emit worker.Emitter) error {
	m, err := e.loaded(hash)
	if err != nil {
		return err
	}
	if err := emit.Emit(worker.Message{Kind: worker.KindGetModConflict, Active: true, Hash: hash}); err != nil {
		return err
	}

	rows, err := e.appliedMods()
	if err != nil {
		return err
	}
	rows = slices.DeleteFunc(rows, func(a db.AppliedMod) bool { return a.Hash == hash })
	if err := emit.Notify(worker.ModElementsCount, hash, len(rows)); err != nil {
		return err
	}

	var found []string
	for _, other := range rows {
		if err := emit.Notify(worker.ModConflictSearchInSwf, hash, other.Name); err != nil {
			return err
		}
		var n int64
		err := e.db.Model(&db.AppliedElement{}).
			Where("mod_hash = ? AND name IN ?", other.Hash, m.Elements).
			Count(&n).Error
		if err != nil {
			return fmt.Errorf("query elements of %s: %w", other.Hash, err)
		}
		if n > 0 {
			found = append(found, other.Hash)
		}
	}

	if len(found) == 0 {
		return emit.Notify(worker.ModConflictNotFound, hash)
	}
	e.log.Infow("Conflicts found", zap.String("hash", hash), zap.Strings("with", found))
	return emit.Notify(worker.ModConflict, hash, found)
}

func (e *Engine) cachedCopy(hash string) string {
	return filepath.Join(e.cache(), hash+ModExt)
}

func (e *Engine) install(ctx context.Context, hash string, emit worker.Emitter) error {
	m, err := e.loaded(hash)
	if err != nil {
		return err
	}
	if err := emit.Emit(worker.Message{Kind: worker.KindInstallMod, Active: true, Hash: hash}); err != nil {
		return err
	}
	if err := emit.Notify(worker.ModElementsCount, hash, len(m.Elements)+1); err != nil {
		return err
	}

	cachePath := e.cachedCopy(hash)
	if err := emit.Notify(worker.InstallingModFileCache, hash, "Caching mod file..."); err != nil {
		return err
	}
	if err := copyFile(m.Path, cachePath); err != nil {
		return fmt.Errorf("cache mod file: %w", err)
	}

	elements := make([]db.AppliedElement, 0, len(m.Elements))
	for _, name := range m.Elements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit.Notify(worker.InstallingModFile, hash, name); err != nil {
			return err
		}
		elements = append(elements, db.AppliedElement{ModHash: hash, Name: name})
	}

	applied := db.AppliedMod{
		Hash:        hash,
		Name:        m.Name(),
		Author:      m.Manifest.Author,
		Version:     m.Manifest.Version,
		GameVersion: m.Manifest.GameVersion,
		SourcePath:  m.Path,
		CachePath:   cachePath,
		InstalledAt: time.Now(),
	}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := forget(tx, hash); err != nil {
			return err
		}
		if err := tx.Create(&applied).Error; err != nil {
			return err
		}
		if len(elements) > 0 {
			if err := tx.CreateInBatches(elements, 100).Error; err != nil {
				return err
			}
		}
		return tx.Create(&db.InstallHistory{Action: historyInstall, Hash: hash, Label: applied.Name}).Error
	})
	if err != nil {
		return fmt.Errorf("record install: %w", err)
	}

	e.log.Infow("Mod installed", zap.String("hash", hash), zap.String("name", applied.Name), zap.Int("elements", len(elements)))
	return emit.Notify(worker.InstallingModFinished, hash)
}

// forget drops every applied row of hash.
func forget(tx *gorm.DB, hash string) error {
	if err := tx.Unscoped().Where("mod_hash = ?", hash).Delete(&db.AppliedElement{}).Error; err != nil {
		return err
	}
	return tx.Unscoped().Where("hash = ?", hash).Delete(&db.AppliedMod{}).Error
}

func (e *Engine) uninstall(ctx context.Context, hash string, emit worker.Emitter) error {
	if err := emit.Emit(worker.Message{Kind: worker.KindUninstallMod, Active: true, Hash: hash}); err != nil {
		return err
	}

	var applied db.AppliedMod
	err := e.db.Where("hash = ?", hash).First(&applied).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		name := hash
		if m, ok := e.mods[hash]; ok {
			name = m.Name()
		}
		if err := emit.Notify(worker.UninstallingModSwfElementNotFound, hash, name, "applied mods"); err != nil {
			return err
		}
		return emit.Notify(worker.UninstallingModFinished, hash)
	}
	if err != nil {
		return fmt.Errorf("query applied mod: %w", err)
	}

	var elements []db.AppliedElement
	if err := e.db.Where("mod_hash = ?", hash).Order("id").Find(&elements).Error; err != nil {
		return fmt.Errorf("query applied elements: %w", err)
	}
	if err := emit.Notify(worker.ModElementsCount, hash, len(elements)); err != nil {
		return err
	}
	for _, el := range elements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit.Notify(worker.UninstallingModFile, hash, el.Name); err != nil {
			return err
		}
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := forget(tx, hash); err != nil {
			return err
		}
		return tx.Create(&db.InstallHistory{Action: historyUninstall, Hash: hash, Label: applied.Name}).Error
	})
	if err != nil {
		return fmt.Errorf("record uninstall: %w", err)
	}
	if applied.CachePath != "" {
		if err := os.Remove(applied.CachePath); err != nil && !os.IsNotExist(err) {
			e.log.Warnw("Failed to remove cached mod file", zap.String("path", applied.CachePath), zap.Error(err))
		}
	}

	e.log.Infow("Mod uninstalled", zap.String("hash", hash), zap.String("name", applied.Name))
	return emit.Notify(worker.UninstallingModFinished, hash)
}

// DecompiledDir returns the folder DecompileMod writes the mod named name to.
func DecompiledDir(modsDir, name string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
	return filepath.Join(modsDir, clean+DecompiledSuffix)
}

func (e *Engine) decompile(hash string, emit worker.Emitter) error {
	m, err := e.loaded(hash)
	if err != nil {
		return err
	}
	if err := emit.Emit(worker.Message{Kind: worker.KindDecompileMod, Active: true, Hash: hash}); err != nil {
		return err
	}
	if err := emit.Notify(worker.DecompilingMod, hash); err != nil {
		return err
	}

	dir := DecompiledDir(e.modsDir, m.Name())
	written, err := unpack(m, dir, func(string) bool { return true })
	if err != nil {
		return fmt.Errorf("decompile into %s: %w", dir, err)
	}
	e.log.Infow("Mod decompiled", zap.String("hash", hash), zap.String("dir", dir), zap.Int("files", len(written)))
	return emit.Notify(worker.DecompilingModFinished, hash)
}

func (e *Engine) remove(hash string, emit worker.Emitter) error {
	m, err := e.loaded(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete mod file: %w", err)
	}
	delete(e.mods, hash)
	delete(e.seen, m.Path)
	e.order = slices.DeleteFunc(e.order, func(h string) bool { return h == hash })
	e.log.Infow("Mod file deleted", zap.String("hash", hash), zap.String("path", m.Path))
	return emit.Emit(worker.Message{Kind: worker.KindDeleteMod, Hash: hash})
}

func (e *Engine) installBase(label string, emit worker.Emitter) error {
	if err := e.db.Create(&db.InstallHistory{Action: historyBase, Label: label}).Error; err != nil {
		return fmt.Errorf("record base mod: %w", err)
	}
	e.log.Infow("Base mod applied", zap.String("label", label))
	return emit.Emit(worker.Message{Kind: worker.KindInstallBaseMod})
}
