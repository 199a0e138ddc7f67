//go:build puregohid
// +build puregohid

package main

import (
	"fmt"

	"github.com/GrappleRobotics/grapple-bundle/gohid"
)

type ListProbesCmd struct {
	All bool `optional help:"List all HID devices, not only CMSIS-DAP probes."`
}

func (l *ListProbesCmd) Run(c *Context) error {
	devices, err := gohid.Enumerate(gohid.SysfsRoot)
	if err != nil {
		return err
	}

	for _, info := range devices {
		if !l.All && !info.IsCMSISDAP() {
			continue
		}

		/* The ioctl view is authoritative when the node can be opened */
		if dev, err := gohid.OpenHID(info.Path); err == nil {
			if raw, err := dev.Info(); err == nil {
				info.BusType, info.VendorID, info.ProductID = raw.BusType, raw.VendorID, raw.ProductID
			}
			if name, err := dev.Name(); err == nil {
				info.Name = name
			}
			dev.Close()
		} else {
			c.logFunc(1, "Could not open %s: %v", info.Path, err)
		}

		fmt.Printf("%s: ID %04x:%04x %s\n", info.Path, info.VendorID, info.ProductID, info.Name)
		fmt.Printf("\tBusType      %d\n", info.BusType)
		fmt.Printf("\tSerialNbr    %s\n", info.Serial)
		fmt.Println()
	}
	return nil
}
