package chipalgo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"

	"github.com/GrappleRobotics/grapple-bundle/svd"
)

// RegisterMapLoader returns the parsed register map document called name.
// Missing documents are reported with ErrorMapNotFound.
type RegisterMapLoader interface {
	Load(name string) (*svd.Device, error)
}

// Fetcher returns the raw bytes of a register map document.
type Fetcher interface {
	Fetch(name string) ([]byte, error)
}

func ParseDocument(name string, raw []byte) (*svd.Device, error) {
	dev, err := svd.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return dev, nil
}

// FSLoader reads documents from a file system, for example the embedded
// resources or a local directory.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Fetch(name string) ([]byte, error) {
	raw, err := fs.ReadFile(l.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrorMapNotFound, name)
	}
	return raw, err
}

func (l FSLoader) Load(name string) (*svd.Device, error) {
	raw, err := l.Fetch(name)
	if err != nil {
		return nil, err
	}
	return ParseDocument(name, raw)
}

// ChainLoader asks each loader in turn. Only ErrorMapNotFound moves on to the
// next loader, any other failure is returned immediately.
type ChainLoader []RegisterMapLoader

func (c ChainLoader) Load(name string) (*svd.Device, error) {
	for _, l := range c {
		dev, err := l.Load(name)
		if err == nil {
			return dev, nil
		}
		if !errors.Is(err, ErrorMapNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrorMapNotFound, name)
}
