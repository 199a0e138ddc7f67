package main

import (
	"fmt"

	"github.com/GrappleRobotics/grapple-bundle/bundle"
)

type BuildCmd struct {
	Output     string `arg name:"output" type:"path" help:"Bundle file to write."`
	Firmware   string `required type:"path" help:"Application ELF."`
	Bootloader string `required type:"path" help:"Bootloader ELF."`
	Config     string `required type:"path" help:"Flash procedure (JSON)."`

	LasercanRev1BootloaderCheck bool `optional name:"lasercan-rev1-bootloader-check" help:"Check the bootloader against LaserCAN rev1 hardware."`
}

func (b *BuildCmd) Run(c *Context) error {
	err := bundle.Build(bundle.BuildOpts{
		Output:                      b.Output,
		Firmware:                    b.Firmware,
		Bootloader:                  b.Bootloader,
		Config:                      b.Config,
		LaserCANRev1BootloaderCheck: b.LasercanRev1BootloaderCheck,
		LogFunc:                     bundle.LogFunc(c.logFunc),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", b.Output)
	return nil
}
