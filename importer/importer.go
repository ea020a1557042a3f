// Package importer places new mod assets into the managed mods directory,
// either copied directly or extracted from zip, 7z and rar archives.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Importer writes only new, not yet registered files into ModsDir. Callers
// ask the worker to reload once an import returns.
type Importer struct {
	ModsDir string
	// OnEntry, when set, is called before each archive entry is extracted.
	OnEntry func(name string)

	log *zap.SugaredLogger
}

// New returns an importer for modsDir.
func New(modsDir string, log *zap.SugaredLogger) *Importer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Importer{ModsDir: modsDir, log: log}
}

// ImportFile imports a dropped file. Archives (by extension) have their asset
// entries extracted; a bare asset is copied, renamed on collision. It returns
// the paths written.
func (im *Importer) ImportFile(path string) ([]string, error) {
	inside, err := im.inModsDir(path)
	if err != nil {
		return nil, err
	}
	if inside {
		return nil, fmt.Errorf("%w: %s", ErrSelfImport, path)
	}

	if format := FormatForPath(path); format != FormatUnknown {
		return im.extract(format, path)
	}
	if !IsAsset(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, filepath.Base(path))
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	dest, err := im.write(filepath.Base(path), src)
	if err != nil {
		return nil, err
	}
	return []string{dest}, nil
}

// ImportStream imports a downloaded archive. The blob is spooled to a
// temporary file in the mods directory which is removed before returning,
// whatever the outcome.
func (im *Importer) ImportStream(r io.Reader) ([]string, error) {
	tmp, err := os.CreateTemp(im.ModsDir, ".download-*.archive")
	if err != nil {
		return nil, fmt.Errorf("create download file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			im.log.Warnw("Failed to remove download file", zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("write download file: %w", err)
	}
	im.log.Infow("Downloaded archive", zap.String("size", humanize.Bytes(uint64(n))))

	header, err := readHeader(tmpPath)
	if err != nil {
		return nil, err
	}
	format, err := Sniff(header)
	if err != nil {
		return nil, err
	}
	return im.extract(format, tmpPath)
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, SniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	return header[:n], nil
}

func (im *Importer) extract(format Format, path string) ([]string, error) {
	var written []string
	err := walkArchive(format, path, func(name string, open func() (io.ReadCloser, error)) error {
		if !IsAsset(name) {
			return nil
		}
		rel, ok := safeRel(name)
		if !ok {
			im.log.Warnw("Skipping archive entry outside mods directory", zap.String("entry", name))
			return nil
		}
		if im.OnEntry != nil {
			im.OnEntry(name)
		}

		rc, err := open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", name, err)
		}
		defer rc.Close()

		dest, err := im.write(rel, rc)
		if err != nil {
			return err
		}
		written = append(written, dest)
		return nil
	})
	im.log.Infow("Extracted archive", zap.String("format", format.String()), zap.Int("files", len(written)))
	return written, err
}

// write copies r to rel under the mods directory, picking a free name.
func (im *Importer) write(rel string, r io.Reader) (string, error) {
	dest := FreeName(filepath.Join(im.ModsDir, rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", rel, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	im.log.Infow("Imported mod file", zap.String("path", dest), zap.String("size", humanize.Bytes(uint64(n))))
	return dest, nil
}

func (im *Importer) inModsDir(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	absMods, err := filepath.Abs(im.ModsDir)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absMods, absPath)
	if err != nil {
		return false, nil
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))), nil
}

// safeRel turns an archive entry name into a relative path that stays inside
// the destination directory.
func safeRel(name string) (string, bool) {
	rel := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(name, "\\", "/")))
	if filepath.IsAbs(rel) || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// FreeName returns path if nothing exists there, otherwise the first
// "name (n).ext" variant that is free, counting n from 1.
func FreeName(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
