// Package svd holds the register map of a chip, as described by a CMSIS-SVD
// document, and resolves peripheral/register/field paths against it.
package svd

import (
	"fmt"
	"strings"
)

type Device struct {
	Name        string
	Peripherals []*Peripheral
}

type Peripheral struct {
	Name        string
	BaseAddress uint64
	Registers   []*Register
}

type Register struct {
	Name          string
	AddressOffset uint32
	Fields        []*Field
}

type Field struct {
	Name      string
	BitOffset uint32
	BitWidth  uint32
}

// FieldRef locates a bit field in the address space of the target.
type FieldRef struct {
	Address uint64
	Offset  uint32
	Width   uint32
}

func (f FieldRef) String() string {
	return fmt.Sprintf("0x%08x[%d:%d]", f.Address, f.Offset+f.Width-1, f.Offset)
}

func (d *Device) Peripheral(name string) *Peripheral {
	for _, p := range d.Peripherals {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (p *Peripheral) Register(name string) *Register {
	for _, r := range p.Registers {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (r *Register) Field(name string) *Field {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Resolve looks up a "peripheral/register/field" path. Names are case
// sensitive.
func (d *Device) Resolve(path string) (FieldRef, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return FieldRef{}, fmt.Errorf("%w: %q", ErrorMalformedPath, path)
	}
	for _, p := range parts {
		if p == "" {
			return FieldRef{}, fmt.Errorf("%w: %q", ErrorMalformedPath, path)
		}
	}

	periph := d.Peripheral(parts[0])
	if periph == nil {
		return FieldRef{}, fmt.Errorf("%w: %s", ErrorUnknownPeripheral, parts[0])
	}

	reg := periph.Register(parts[1])
	if reg == nil {
		return FieldRef{}, fmt.Errorf("%w: %s/%s", ErrorUnknownRegister, parts[0], parts[1])
	}

	field := reg.Field(parts[2])
	if field == nil {
		return FieldRef{}, fmt.Errorf("%w: %s", ErrorUnknownField, path)
	}

	return FieldRef{
		Address: periph.BaseAddress + uint64(reg.AddressOffset),
		Offset:  field.BitOffset,
		Width:   field.BitWidth,
	}, nil
}
