package dbghal

import (
	"encoding/binary"
	"fmt"
)

// MemoryRegion is a window onto the address space of the target. Access may
// transfer fewer bytes than requested, use WrapCompleteIO to loop until done.
type MemoryRegion interface {
	GetName() string
	GetLength() uint64
	GetAlignment() int
	GetParent() (MemoryRegion, uint64)
	Access(write bool, addr uint64, buf []byte) (int, error)
}

type regionCompleteIO struct {
	MemoryRegion
}

func WrapCompleteIO(parent MemoryRegion) MemoryRegion {
	return regionCompleteIO{
		MemoryRegion: parent,
	}
}

func (m regionCompleteIO) Access(write bool, addr uint64, buf []byte) (int, error) {
	align := uint64(m.GetAlignment())
	if align > 1 {
		if addr&(align-1) != 0 {
			return 0, fmt.Errorf("%w: address 0x%08x", ErrorAlignment, addr)
		} else if write && uint64(len(buf))%align != 0 {
			return 0, fmt.Errorf("%w: %d bytes", ErrorAlignment, len(buf))
		}
	}

	total := 0
	for len(buf) > 0 {
		n, err := m.MemoryRegion.Access(write, addr+uint64(total), buf)
		total += n
		buf = buf[n:]

		if err != nil || n == 0 {
			return total, err
		}
	}

	return total, nil
}

type regionPartial struct {
	parent MemoryRegion
	offset uint64
	length uint64
	name   string
}

// WrapPartial exposes length bytes of parent starting at offset as a region
// addressed from zero.
func WrapPartial(name string, parent MemoryRegion, offset uint64, length uint64) MemoryRegion {
	return regionPartial{
		parent: parent,
		offset: offset,
		length: length,
		name:   name,
	}
}

func (h regionPartial) GetName() string {
	return h.name
}

func (h regionPartial) GetLength() uint64 {
	return h.length
}

func (h regionPartial) GetParent() (MemoryRegion, uint64) {
	return h.parent, h.offset
}

func (h regionPartial) GetAlignment() int {
	return h.parent.GetAlignment()
}

func (h regionPartial) Access(write bool, addr uint64, buf []byte) (int, error) {
	if addr >= h.length {
		return 0, nil
	}
	if uint64(len(buf)) > h.length-addr {
		buf = buf[:h.length-addr]
	}

	return h.parent.Access(write, h.offset+addr, buf)
}

func RecursiveGetParentAddress(region MemoryRegion, offset uint64) (MemoryRegion, uint64) {
	for {
		var parentOffset uint64
		prevRegion := region
		region, parentOffset = region.GetParent()

		offset += parentOffset

		if region == nil {
			return prevRegion, offset
		}
	}
}

/* The bus of a Cortex-M target is little endian */

func ReadWord(m MemoryRegion, addr uint64) (uint32, error) {
	var buf [4]byte
	n, err := m.Access(false, addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short read at 0x%08x: %d bytes", addr, n)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func WriteWord(m MemoryRegion, addr uint64, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	n, err := m.Access(true, addr, buf[:])
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write at 0x%08x: %d bytes", addr, n)
	}
	return nil
}
