package main

import (
	"errors"
	"os"

	"github.com/GrappleRobotics/grapple-bundle/bundle"
)

type ExportCmd struct {
	Bundle        string `arg name:"bundle" type:"path" help:"Bundle to export from."`
	FirmwareHex   string `optional name:"firmware-hex" type:"path" help:"Write the update firmware as Intel HEX."`
	BootloaderHex string `optional name:"bootloader-hex" type:"path" help:"Write the bootloader as Intel HEX."`
}

func writeHexFile(b *bundle.Bundle, name string, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	err = b.ExportEntryHex(f, name)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filename)
	}
	return err
}

func (e *ExportCmd) Run(c *Context) error {
	if e.FirmwareHex == "" && e.BootloaderHex == "" {
		return errors.New("Nothing to export, specify --firmware-hex and/or --bootloader-hex")
	}

	b, err := bundle.Open(e.Bundle)
	if err != nil {
		return err
	}
	defer b.Close()

	if e.FirmwareHex != "" {
		if err := writeHexFile(b, b.Manifest.FirmwareUpdate, e.FirmwareHex); err != nil {
			return err
		}
	}
	if e.BootloaderHex != "" {
		if err := writeHexFile(b, b.Manifest.Bootloader, e.BootloaderHex); err != nil {
			return err
		}
	}
	return nil
}
