package chipalgo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sync"
)

// Registry is an immutable, ordered list of algorithms. Lookups return the
// first entry in load order whose pattern matches.
type Registry struct {
	entries []*Entry
}

// NewRegistry loads every *.json descriptor in descriptors, in lexical path
// order, and the register map each of them names. Any failure aborts the
// whole construction.
func NewRegistry(descriptors fs.FS, maps RegisterMapLoader) (*Registry, error) {
	var names []string
	err := fs.WalkDir(descriptors, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".json" {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := &Registry{}
	for _, name := range names {
		raw, err := fs.ReadFile(descriptors, name)
		if err != nil {
			return nil, err
		}

		algo, err := DecodeAlgo(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		dev, err := maps.Load(algo.SVD)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		entry, err := NewEntry(algo, dev)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		r.entries = append(r.entries, entry)
	}

	return r, nil
}

func NewRegistryFromEntries(entries ...*Entry) *Registry {
	return &Registry{
		entries: append([]*Entry(nil), entries...),
	}
}

func DecodeAlgo(raw []byte) (Algo, error) {
	var algo Algo

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&algo); err != nil {
		return Algo{}, fmt.Errorf("%w: %v", ErrorMalformedDescriptor, err)
	}
	if algo.Pattern == "" || algo.SVD == "" {
		return Algo{}, fmt.Errorf("%w: pattern and svd are required", ErrorMalformedDescriptor)
	}
	if algo.Flash.KeyPath == "" || algo.Flash.LockPath == "" || algo.Flash.Option.KeyPath == "" {
		return Algo{}, fmt.Errorf("%w: flash register paths are required", ErrorMalformedDescriptor)
	}

	return algo, nil
}

func (r *Registry) Find(chip string) (*Entry, bool) {
	for _, e := range r.entries {
		if e.Match(chip) {
			return e, true
		}
	}
	return nil, false
}

// Lookup is Find returning ErrorUnknownChip when nothing matches.
func (r *Registry) Lookup(chip string) (*Entry, error) {
	e, ok := r.Find(chip)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrorUnknownChip, chip)
	}
	return e, nil
}

func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.entries...)
}

// Lazy returns a function that runs build on first call and returns its
// result on every call. Concurrent first callers wait for the one build.
func Lazy(build func() (*Registry, error)) func() (*Registry, error) {
	return sync.OnceValues(build)
}
