package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

// Bundle is an opened bundle. The archive is only read, never rewritten.
type Bundle struct {
	Manifest  Manifest
	Procedure Procedure

	files  map[string]*zip.File
	names  []string
	closer io.Closer
}

func Open(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	b, err := Read(f, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.closer = f

	return b, nil
}

// Read opens a bundle held in r and decodes its index and flash config.
func Read(r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorMalformedArchive, err)
	}

	b := &Bundle{
		files: make(map[string]*zip.File),
	}
	for _, f := range zr.File {
		if _, ok := b.files[f.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrorDuplicateEntry, f.Name)
		}
		b.files[f.Name] = f
		b.names = append(b.names, f.Name)
	}

	index, err := b.ReadEntry(IndexName)
	if errors.Is(err, ErrorMissingEntry) {
		return nil, ErrorMissingIndex
	} else if err != nil {
		return nil, err
	}
	if b.Manifest, err = DecodeManifest(index); err != nil {
		return nil, err
	}

	config, err := b.ReadEntry(b.Manifest.Config)
	if errors.Is(err, ErrorMissingEntry) {
		return nil, fmt.Errorf("%w: %s", ErrorMissingConfig, b.Manifest.Config)
	} else if err != nil {
		return nil, err
	}
	if b.Procedure, err = DecodeProcedure(config); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Manifest.Config, err)
	}

	return b, nil
}

// Names lists the archive entries in archive order.
func (b *Bundle) Names() []string {
	return append([]string(nil), b.names...)
}

func (b *Bundle) ReadEntry(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrorMissingEntry, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrorMalformedArchive, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrorMalformedArchive, name, err)
	}
	return data, nil
}

func (b *Bundle) Close() error {
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	return err
}
