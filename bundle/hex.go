package bundle

import (
	"fmt"
	"io"

	"github.com/GrappleRobotics/grapple-bundle/elfimg"
	"github.com/marcinbor85/gohex"
)

const hexLineLength = 16

// ExportHex writes the loadable segments of an ELF image as Intel HEX, each
// at its load address.
func ExportHex(w io.Writer, image []byte) error {
	f, err := elfimg.Parse(image)
	if err != nil {
		return err
	}
	segs, err := elfimg.LoadSegments(f)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return elfimg.ErrorNoSegments
	}

	mem := gohex.NewMemory()
	for _, s := range segs {
		if s.End() > 1<<32 {
			return fmt.Errorf("segment at 0x%x does not fit in 32 bits", s.Addr)
		}
		if err := mem.AddBinary(uint32(s.Addr), s.Data); err != nil {
			return fmt.Errorf("%w: %v", elfimg.ErrorAddressOverlap, err)
		}
	}
	if f.Entry <= 0xFFFFFFFF {
		mem.SetStartAddress(uint32(f.Entry))
	}

	return mem.DumpIntelHex(w, hexLineLength)
}

// ExportEntryHex exports the named ELF entry of the bundle.
func (b *Bundle) ExportEntryHex(w io.Writer, name string) error {
	data, err := b.ReadEntry(name)
	if err != nil {
		return err
	}
	if err := ExportHex(w, data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
