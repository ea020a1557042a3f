package importer

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// entryFunc receives one regular archive entry. open is only valid for the
// duration of the call.
type entryFunc func(name string, open func() (io.ReadCloser, error)) error

func walkArchive(format Format, path string, fn entryFunc) error {
	switch format {
	case FormatZip:
		return walkZip(path, fn)
	case Format7z:
		return walk7z(path, fn)
	case FormatRar:
		return walkRar(path, fn)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func walkZip(path string, fn entryFunc) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := fn(f.Name, f.Open); err != nil {
			return err
		}
	}
	return nil
}

func walk7z(path string, fn entryFunc) error {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := fn(f.Name, f.Open); err != nil {
			return err
		}
	}
	return nil
}

func walkRar(path string, fn entryFunc) error {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open rar: %w", err)
	}
	defer r.Close()

	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rar: %w", err)
		}
		if h.IsDir {
			continue
		}
		open := func() (io.ReadCloser, error) { return io.NopCloser(r), nil }
		if err := fn(h.Name, open); err != nil {
			return err
		}
	}
}
