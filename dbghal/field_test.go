package dbghal_test

import (
	"errors"
	"testing"

	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/GrappleRobotics/grapple-bundle/dbghal/dbgtest"
	"github.com/GrappleRobotics/grapple-bundle/svd"
)

func newCore(t *testing.T) (*dbgtest.Session, dbghal.Core) {
	t.Helper()
	s := dbgtest.NewSession(dbgtest.NewFlash())
	c, err := s.Core(0)
	if err != nil {
		t.Fatalf("Core(): %v", err)
	}
	return s, c
}

func TestWriteFieldReadModifyWrite(t *testing.T) {
	s, c := newCore(t)
	mem := s.Flash.Mem
	mem.SetWord(0x40022014, 0x000000A0)

	if err := dbghal.WriteField(c, svd.FieldRef{Address: 0x40022014, Offset: 4, Width: 4}, 0xF); err != nil {
		t.Fatalf("WriteField(): %v", err)
	}

	if got := mem.Word(0x40022014); got != 0x000000F0 {
		t.Errorf("got 0x%08x, want 0x000000f0", got)
	}
	if len(mem.Log) != 2 || mem.Log[0].Write || !mem.Log[1].Write {
		t.Errorf("want one read then one write, got %+v", mem.Log)
	}
}

func TestWriteFieldFullWord(t *testing.T) {
	s, c := newCore(t)
	mem := s.Flash.Mem
	mem.SetWord(0x40022008, 0x12345678)

	if err := dbghal.WriteField(c, svd.FieldRef{Address: 0x40022008, Width: 32}, 0x45670123); err != nil {
		t.Fatalf("WriteField(): %v", err)
	}

	if got := mem.Word(0x40022008); got != 0x45670123 {
		t.Errorf("got 0x%08x, want 0x45670123", got)
	}
	if len(mem.Log) != 1 || !mem.Log[0].Write {
		t.Errorf("full word write must not read first, got %+v", mem.Log)
	}
}

func TestWriteFieldPreservesOtherBits(t *testing.T) {
	befores := []uint32{0x00000000, 0xFFFFFFFF, 0xA5A5A5A5, 0x80000001, 0x0F0F0F0F}
	values := []uint32{0, 1, 0x5, 0xFFFFFFFF, 0x12345678}

	for _, before := range befores {
		for offset := uint32(0); offset < 32; offset += 3 {
			for width := uint32(1); offset+width <= 32; width += 5 {
				for _, value := range values {
					s, c := newCore(t)
					mem := s.Flash.Mem
					mem.SetWord(0x100, before)

					f := svd.FieldRef{Address: 0x100, Offset: offset, Width: width}
					if err := dbghal.WriteField(c, f, value); err != nil {
						t.Fatalf("WriteField(%v, 0x%x): %v", f, value, err)
					}
					after := mem.Word(0x100)

					mask := uint32((uint64(1)<<width)-1) << offset
					if (before^after)&^mask != 0 {
						t.Errorf("%v before 0x%08x value 0x%x: bits outside the field changed, after 0x%08x", f, before, value, after)
					}
					if got, want := (after&mask)>>offset, value&(mask>>offset); got != want {
						t.Errorf("%v value 0x%x: field reads 0x%x, want 0x%x", f, value, got, want)
					}

					got, err := dbghal.ReadField(c, f)
					if err != nil {
						t.Fatalf("ReadField(): %v", err)
					}
					if got != value&(mask>>offset) {
						t.Errorf("ReadField(%v) = 0x%x", f, got)
					}
				}
			}
		}
	}
}

func TestWriteFieldRejected(t *testing.T) {
	for _, test := range []struct {
		desc    string
		field   svd.FieldRef
		wantErr error
	}{
		{desc: "crosses word", field: svd.FieldRef{Address: 0x100, Offset: 30, Width: 4}, wantErr: dbghal.ErrorUnalignedField},
		{desc: "wider than a word", field: svd.FieldRef{Address: 0x100, Offset: 0, Width: 33}, wantErr: dbghal.ErrorUnalignedField},
		{desc: "offset past word", field: svd.FieldRef{Address: 0x100, Offset: 40, Width: 1}, wantErr: dbghal.ErrorUnalignedField},
		{desc: "empty", field: svd.FieldRef{Address: 0x100, Offset: 3, Width: 0}, wantErr: dbghal.ErrorEmptyField},
	} {
		t.Run(test.desc, func(t *testing.T) {
			s, c := newCore(t)
			mem := s.Flash.Mem

			if err := dbghal.WriteField(c, test.field, 0xF); !errors.Is(err, test.wantErr) {
				t.Fatalf("WriteField(): got err %v, want %v", err, test.wantErr)
			}
			if _, err := dbghal.ReadField(c, test.field); !errors.Is(err, test.wantErr) {
				t.Fatalf("ReadField(): got err %v, want %v", err, test.wantErr)
			}
			if len(mem.Log) != 0 {
				t.Errorf("rejected field caused bus accesses: %+v", mem.Log)
			}
		})
	}
}

func TestWriteFieldReleasedCore(t *testing.T) {
	_, c := newCore(t)
	if err := c.Release(); err != nil {
		t.Fatalf("Release(): %v", err)
	}

	err := dbghal.WriteField(c, svd.FieldRef{Address: 0x100, Offset: 0, Width: 1}, 1)
	if !errors.Is(err, dbghal.ErrorCoreReleased) {
		t.Fatalf("got err %v, want ErrorCoreReleased", err)
	}
}

func TestWriteFieldBusError(t *testing.T) {
	s, c := newCore(t)
	busErr := errors.New("E01")
	s.Flash.Mem.Err = busErr

	if err := dbghal.WriteField(c, svd.FieldRef{Address: 0x100, Offset: 1, Width: 1}, 1); !errors.Is(err, busErr) {
		t.Fatalf("got err %v, want %v", err, busErr)
	}
}
