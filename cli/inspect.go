package main

import (
	"fmt"

	"github.com/GrappleRobotics/grapple-bundle/bundle"
	"github.com/GrappleRobotics/grapple-bundle/elfimg"
)

type InspectCmd struct {
	Bundle string `arg name:"bundle" type:"path" help:"Bundle to inspect."`
}

func (i *InspectCmd) Run(c *Context) error {
	b, err := bundle.Open(i.Bundle)
	if err != nil {
		return err
	}
	defer b.Close()

	m := b.Manifest
	fmt.Printf("Firmware      %s (version %q)\n", m.Firmware, m.FirmwareVersion)
	fmt.Printf("Bootloader    %s (version %q)\n", m.Bootloader, m.BootloaderVersion)
	fmt.Printf("Config        %s\n", m.Config)
	fmt.Printf("Update ELF    %s\n", m.FirmwareUpdate)

	for _, name := range []string{m.FirmwareUpdateBin, m.BootloaderUpdateBin} {
		data, err := b.ReadEntry(name)
		if err != nil {
			return err
		}
		fmt.Printf("Update image  %s (%d bytes)\n", name, len(data))
	}

	data, err := b.ReadEntry(m.FirmwareUpdate)
	if err != nil {
		return err
	}
	segs, err := elfimg.Segments(data)
	if err != nil {
		return err
	}
	for _, s := range segs {
		fmt.Printf("  segment     0x%08x-0x%08x\n", s.Addr, s.End())
	}

	fmt.Printf("\nProcedure (%d steps):\n", len(b.Procedure.Procedure))
	for n, a := range b.Procedure.Procedure {
		if s, ok := a.(fmt.Stringer); ok {
			fmt.Printf("%3d  %s\n", n, s)
		} else {
			fmt.Printf("%3d  %s\n", n, a.Name())
		}
	}
	return nil
}
