package dbghal

import (
	"fmt"

	"github.com/GrappleRobotics/grapple-bundle/svd"
)

func fieldMask(f svd.FieldRef) (uint32, error) {
	if f.Width == 0 {
		return 0, fmt.Errorf("%w: %v", ErrorEmptyField, f)
	}
	if f.Offset+f.Width > 32 || f.Offset >= 32 {
		return 0, fmt.Errorf("%w: %v", ErrorUnalignedField, f)
	}
	return uint32((uint64(1)<<f.Width)-1) << f.Offset, nil
}

// WriteField stores value in the field. Whole words are written directly,
// anything smaller is a read-modify-write of the containing word. The
// sequence is not atomic towards other bus masters.
func WriteField(core Core, f svd.FieldRef, value uint32) error {
	if f.Offset == 0 && f.Width == 32 {
		return WriteWord(core.Memory(), f.Address, value)
	}

	mask, err := fieldMask(f)
	if err != nil {
		return err
	}

	mem := core.Memory()
	current, err := ReadWord(mem, f.Address)
	if err != nil {
		return err
	}

	current &^= mask
	current |= (value << f.Offset) & mask

	return WriteWord(mem, f.Address, current)
}

func ReadField(core Core, f svd.FieldRef) (uint32, error) {
	mask, err := fieldMask(f)
	if err != nil {
		return 0, err
	}

	current, err := ReadWord(core.Memory(), f.Address)
	if err != nil {
		return 0, err
	}

	return (current & mask) >> f.Offset, nil
}
