package importer

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when a downloaded blob is not a known
	// archive container.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrSelfImport is returned for files that already live in the managed
	// mods directory.
	ErrSelfImport = errors.New("file is inside the mods directory")
	// ErrUnsupportedAsset is returned for direct drops that are neither an
	// archive nor a recognized asset.
	ErrUnsupportedAsset = errors.New("unsupported asset type")
)

// Format identifies an archive container.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	Format7z
	FormatRar
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case Format7z:
		return "7z"
	case FormatRar:
		return "rar"
	}
	return "unknown"
}

// SniffLen is the number of leading bytes Sniff looks at.
const SniffLen = 3

var signatures = []struct {
	prefix []byte
	format Format
}{
	{[]byte("7z"), Format7z},
	{[]byte("Rar"), FormatRar},
	{[]byte("PK"), FormatZip},
}

// Sniff picks the archive format from the first bytes of a blob.
func Sniff(header []byte) (Format, error) {
	for _, sig := range signatures {
		if bytes.HasPrefix(header, sig.prefix) {
			return sig.format, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: signature %q", ErrUnsupportedFormat, header)
}

// FormatForPath picks the archive format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return FormatZip
	case ".7z":
		return Format7z
	case ".rar":
		return FormatRar
	}
	return FormatUnknown
}

// AssetExtensions are the only file types ever placed in the mods directory.
var AssetExtensions = []string{".bmod", ".wem", ".bnk", ".bin"}

// IsAsset reports whether name has one of the recognized asset extensions.
func IsAsset(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range AssetExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
