package chipalgo

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/GrappleRobotics/grapple-bundle/svd"
	"golang.org/x/sync/singleflight"
)

// CacheLoader keeps raw documents fetched from Source under Dir and the
// parsed devices in memory. Concurrent loads of one name share a single
// fetch. An empty Dir only caches in memory.
type CacheLoader struct {
	Dir    string
	Source Fetcher

	LogFunc func(level int, format string, param ...interface{})

	group   singleflight.Group
	mutex   sync.Mutex
	devices map[string]*svd.Device
}

func NewCacheLoader(dir string, source Fetcher) *CacheLoader {
	return &CacheLoader{
		Dir:    dir,
		Source: source,
	}
}

func (c *CacheLoader) log(level int, format string, param ...interface{}) {
	if c.LogFunc != nil {
		c.LogFunc(level, format, param...)
	}
}

func (c *CacheLoader) Load(name string) (*svd.Device, error) {
	c.mutex.Lock()
	dev, ok := c.devices[name]
	c.mutex.Unlock()
	if ok {
		return dev, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		/* A previous flight may have finished since the check above */
		c.mutex.Lock()
		dev, ok := c.devices[name]
		c.mutex.Unlock()
		if ok {
			return dev, nil
		}

		raw, err := c.Fetch(name)
		if err != nil {
			return nil, err
		}

		dev, err = ParseDocument(name, raw)
		if err != nil {
			return nil, err
		}

		c.mutex.Lock()
		if c.devices == nil {
			c.devices = make(map[string]*svd.Device)
		}
		c.devices[name] = dev
		c.mutex.Unlock()

		return dev, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*svd.Device), nil
}

func (c *CacheLoader) Fetch(name string) ([]byte, error) {
	file := c.path(name)
	if file != "" {
		raw, err := os.ReadFile(file)
		if err == nil {
			c.log(2, "Register map %s loaded from %s", name, file)
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	raw, err := c.Source.Fetch(name)
	if err != nil {
		return nil, err
	}

	if file != "" {
		if err := writeFileAtomic(file, raw); err != nil {
			c.log(1, "Failed to cache register map %s: %v", name, err)
		}
	}

	return raw, nil
}

/* Names are slash separated and may not escape the cache directory */
func (c *CacheLoader) path(name string) string {
	if c.Dir == "" {
		return ""
	}
	clean := path.Clean("/" + name)[1:]
	return filepath.Join(c.Dir, filepath.FromSlash(clean))
}

func writeFileAtomic(file string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), ".svd-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), file)
}
