package main

import (
	"fmt"
)

type ListChipsCmd struct {
}

func (l *ListChipsCmd) Run(c *Context) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}

	fmt.Printf("%-24s| %-16s| Register map\n", "Pattern", "SVD")
	for _, e := range reg.Entries() {
		fmt.Printf("%-24s| %-16s| %s (%d peripherals)\n",
			e.Algo.Pattern, e.Algo.SVD, e.Device.Name, len(e.Device.Peripherals))
	}
	return nil
}
