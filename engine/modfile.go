package engine

import (
	"archive/zip"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ModExt is the extension of mod files in the mods directory.
const ModExt = ".bmod"

const (
	manifestName = "mod.json"
	previewsDir  = "previews/"
	// DecompiledSuffix marks folders produced by DecompileMod.
	DecompiledSuffix = "-decompiled"
)

// Manifest is the optional mod.json entry of a mod package.
type Manifest struct {
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	GameVersion string   `json:"gameVersion"`
	Tags        []string `json:"tags"`
}

// modFile is a mod package found in the mods directory.
type modFile struct {
	Hash     string
	Path     string
	Size     int64
	ModTime  time.Time
	Manifest Manifest
	// Elements are the game elements the mod overrides, in package order.
	Elements []string
	// Previews are entry names under previews/.
	Previews []string
	// Packed is false for a bare file that is its own single element.
	Packed bool
}

func (m *modFile) Name() string {
	if m.Manifest.Name != "" {
		return m.Manifest.Name
	}
	return strings.TrimSuffix(filepath.Base(m.Path), filepath.Ext(m.Path))
}

func calculateSHA1(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha1.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// readModFile hashes and indexes the mod at p.
func readModFile(p string, info fs.FileInfo) (*modFile, error) {
	hash, err := calculateSHA1(p)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", p, err)
	}
	m := &modFile{Hash: hash, Path: p, Size: info.Size(), ModTime: info.ModTime()}

	zr, err := zip.OpenReader(p)
	if errors.Is(err, zip.ErrFormat) {
		m.Elements = []string{filepath.Base(p)}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer zr.Close()

	m.Packed = true
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch name := f.Name; {
		case name == manifestName:
			if err := readManifest(f, &m.Manifest); err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		case strings.HasPrefix(name, previewsDir):
			m.Previews = append(m.Previews, name)
		default:
			m.Elements = append(m.Elements, name)
		}
	}
	return m, nil
}

func readManifest(f *zip.File, dst *Manifest) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", manifestName, err)
	}
	return nil
}

// unpack writes the entries of m accepted by keep into dir and returns the
// written paths. A bare mod file is copied as is.
func unpack(m *modFile, dir string, keep func(name string) bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if !m.Packed {
		dst := filepath.Join(dir, filepath.Base(m.Path))
		return []string{dst}, copyFile(m.Path, dst)
	}

	zr, err := zip.OpenReader(m.Path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var written []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !keep(f.Name) {
			continue
		}
		rel := path.Clean(f.Name)
		if !fs.ValidPath(rel) {
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := extractEntry(f, dst); err != nil {
			return written, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

func extractEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
