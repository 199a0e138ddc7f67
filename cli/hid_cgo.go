//go:build !puregohid
// +build !puregohid

package main

import (
	"fmt"
	"strings"

	"github.com/sstallion/go-hid"
)

type ListProbesCmd struct {
	All bool `optional help:"List all HID devices, not only CMSIS-DAP probes."`
}

func (l *ListProbesCmd) Run(c *Context) error {
	if err := hid.Init(); err != nil {
		return err
	}
	defer hid.Exit()

	return hid.Enumerate(0, 0, func(info *hid.DeviceInfo) error {
		if !l.All && !strings.Contains(info.ProductStr, "CMSIS-DAP") {
			return nil
		}

		fmt.Printf("%s: ID %04x:%04x %s %s\n",
			info.Path, info.VendorID, info.ProductID, info.MfrStr, info.ProductStr)
		fmt.Printf("\tSerialNbr    %s\n", info.SerialNbr)
		fmt.Printf("\tReleaseNbr   %x.%x\n", info.ReleaseNbr>>8, info.ReleaseNbr&0xff)
		fmt.Printf("\tInterfaceNbr %d\n", info.InterfaceNbr)
		fmt.Println()

		return nil
	})
}
