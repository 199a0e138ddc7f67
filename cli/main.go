package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/GrappleRobotics/grapple-bundle/chipalgo"
	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/GrappleRobotics/grapple-bundle/gdbprobe"
	"github.com/GrappleRobotics/grapple-bundle/resources"
	"github.com/alecthomas/kong"
)

type Context struct {
	logFunc  dbghal.LogFunc
	registry func() (*chipalgo.Registry, error)
}

var CLI struct {
	LogLevel int    `optional help:"Higher values give more output."`
	AlgoDir  string `optional type:"path" help:"Directory with extra algorithms (algo/*.json) and the SVD files they name."`
	SVDURL   string `optional name:"svd-url" help:"Base URL to download SVD files from when they are not bundled."`
	SVDCache string `optional name:"svd-cache" type:"path" help:"Directory to cache downloaded SVD files in."`

	Build   BuildCmd   `cmd help:"Build a firmware bundle."`
	Flash   FlashCmd   `cmd help:"Flash a bundle onto a device."`
	Inspect InspectCmd `cmd help:"Show the index and flash procedure of a bundle."`
	Export  ExportCmd  `cmd help:"Export bundle images as Intel HEX."`

	ListChips   ListChipsCmd   `cmd help:"List supported chip families."`
	ListProbes  ListProbesCmd  `cmd help:"List CMSIS-DAP debug probes."`
	ListRegions ListRegionsCmd `cmd help:"List the target memory map."`

	ReadField  ReadFieldCmd  `cmd help:"Read a register field."`
	WriteField WriteFieldCmd `cmd help:"Write a register field."`
	Dump       DumpCmd       `cmd help:"Read and dump target memory."`
}

// Target selects the GDB server that owns the debug probe.
type Target struct {
	GDB string `name:"gdb" default:"localhost:3333" help:"Address of the GDB server attached to the probe."`
}

func (c *Context) openSession(t Target) (*gdbprobe.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gdbprobe.Dial(ctx, t.GDB, gdbprobe.GDBConfig{
		Timeout: 30 * time.Second,
		LogFunc: c.logFunc,
	})
}

func (c *Context) lookup(chip string) (*chipalgo.Entry, error) {
	reg, err := c.registry()
	if err != nil {
		return nil, err
	}
	return reg.Lookup(chip)
}

func (c *Context) buildRegistry() (*chipalgo.Registry, error) {
	if CLI.AlgoDir == "" && CLI.SVDURL == "" {
		return chipalgo.Default()
	}

	var loaders chipalgo.ChainLoader
	if CLI.AlgoDir != "" {
		loaders = append(loaders, chipalgo.FSLoader{FS: os.DirFS(CLI.AlgoDir)})
	}
	loaders = append(loaders, chipalgo.FSLoader{FS: resources.FS()})

	if CLI.SVDURL != "" {
		dir := CLI.SVDCache
		if dir == "" {
			if user, err := os.UserCacheDir(); err == nil {
				dir = filepath.Join(user, "grapple-bundle", "svd")
			}
		}

		cache := chipalgo.NewCacheLoader(dir, &chipalgo.HTTPLoader{
			BaseURL:    CLI.SVDURL,
			MaxRetries: 3,
			LogFunc:    c.logFunc,
		})
		cache.LogFunc = c.logFunc
		loaders = append(loaders, cache)
	}

	/* Algorithms from the directory come first so they can override the
	 * bundled ones */
	var entries []*chipalgo.Entry
	if CLI.AlgoDir != "" {
		algos, err := fs.Sub(os.DirFS(CLI.AlgoDir), "algo")
		if err != nil {
			return nil, err
		}
		custom, err := chipalgo.NewRegistry(algos, loaders)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", CLI.AlgoDir, err)
		}
		entries = append(entries, custom.Entries()...)
	}

	builtin, err := chipalgo.NewRegistry(resources.Algos(), loaders)
	if err != nil {
		return nil, err
	}
	entries = append(entries, builtin.Entries()...)

	return chipalgo.NewRegistryFromEntries(entries...), nil
}

func main() {
	k, err := kong.New(&CLI,
		kong.NamedMapper("int", intMapper{}),
		kong.NamedMapper("hex", intMapper{base: 16}))
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx, err := k.Parse(os.Args[1:])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	c := &Context{
		logFunc: func(level int, format string, param ...interface{}) {
			if level > CLI.LogLevel {
				return
			}
			str := fmt.Sprintf(format, param...)
			fmt.Printf("LEVEL(%d): %s\n", level, str)
		},
	}
	c.registry = chipalgo.Lazy(c.buildRegistry)

	err = ctx.Run(c)
	ctx.FatalIfErrorf(err)
}
