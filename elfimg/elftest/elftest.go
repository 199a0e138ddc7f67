// Package elftest synthesizes small 32-bit ELF executables for tests.
//
// Section data is laid out back to back in declaration order, so a segment
// covering several consecutive sections maps exactly their bytes.
package elftest

import (
	"encoding/binary"
	"fmt"
)

const (
	ehdrSize = 52
	phdrSize = 32
	shdrSize = 40

	shtProgbits = 1
	shtStrtab   = 3
	shtNobits   = 8

	shfWrite = 0x1
	shfAlloc = 0x2

	ptLoad = 1
	emARM  = 40
)

type Section struct {
	Name string
	Addr uint32
	Data []byte

	/* NoBits sections occupy Size bytes in memory but none in the file */
	NoBits bool
	Size   uint32

	/* NoAlloc sections (symbol tables, comments) are not part of memory */
	NoAlloc bool
}

type Segment struct {
	/* Names of consecutive sections covered by this segment */
	Sections []string

	/* Load address, defaults to the address of the first section */
	Paddr uint32
}

type Image struct {
	BigEndian bool
	Entry     uint32
	Sections  []Section
	Segments  []Segment
}

// Metadata returns the contents of a .metadata section pointing at a version
// string of length n stored at addr.
func Metadata(order binary.ByteOrder, addr, n uint32) []byte {
	b := make([]byte, 12)
	copy(b, "GRPL")
	order.PutUint32(b[4:], addr)
	order.PutUint32(b[8:], n)
	return b
}

func (img Image) order() binary.ByteOrder {
	if img.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Bytes renders the image. It panics on inconsistent input, which is always
// a bug in the calling test.
func (img Image) Bytes() []byte {
	o := img.order()

	offsets := make(map[string]uint32)
	sizes := make(map[string]uint32)
	dataStart := uint32(ehdrSize + phdrSize*len(img.Segments))

	cur := dataStart
	var body []byte
	for _, s := range img.Sections {
		offsets[s.Name] = cur
		if s.NoBits {
			sizes[s.Name] = s.Size
			continue
		}
		sizes[s.Name] = uint32(len(s.Data))
		body = append(body, s.Data...)
		cur += uint32(len(s.Data))
	}

	/* Section name string table */
	shstr := []byte{0}
	nameOff := make([]uint32, len(img.Sections)+1)
	for i, s := range img.Sections {
		nameOff[i] = uint32(len(shstr))
		shstr = append(shstr, s.Name...)
		shstr = append(shstr, 0)
	}
	nameOff[len(img.Sections)] = uint32(len(shstr))
	shstr = append(shstr, ".shstrtab"...)
	shstr = append(shstr, 0)

	shstrOff := cur
	body = append(body, shstr...)
	cur += uint32(len(shstr))
	for cur%4 != 0 {
		body = append(body, 0)
		cur++
	}
	shoff := cur
	shnum := len(img.Sections) + 2

	out := make([]byte, ehdrSize+phdrSize*len(img.Segments))

	/* ELF header */
	copy(out, []byte{0x7f, 'E', 'L', 'F', 1})
	if img.BigEndian {
		out[5] = 2
	} else {
		out[5] = 1
	}
	out[6] = 1
	o.PutUint16(out[16:], 2) /* ET_EXEC */
	o.PutUint16(out[18:], emARM)
	o.PutUint32(out[20:], 1)
	o.PutUint32(out[24:], img.Entry)
	if len(img.Segments) > 0 {
		o.PutUint32(out[28:], ehdrSize)
	}
	o.PutUint32(out[32:], shoff)
	o.PutUint16(out[40:], ehdrSize)
	o.PutUint16(out[42:], phdrSize)
	o.PutUint16(out[44:], uint16(len(img.Segments)))
	o.PutUint16(out[46:], shdrSize)
	o.PutUint16(out[48:], uint16(shnum))
	o.PutUint16(out[50:], uint16(shnum-1))

	/* Program headers */
	for i, seg := range img.Segments {
		if len(seg.Sections) == 0 {
			panic("elftest: segment without sections")
		}
		first := img.section(seg.Sections[0])
		last := seg.Sections[len(seg.Sections)-1]

		off := offsets[first.Name]
		filesz := offsets[last] + sizes[last] - off
		if img.section(last).NoBits {
			filesz = offsets[last] - off
		}
		memsz := offsets[last] + sizes[last] - off

		paddr := seg.Paddr
		if paddr == 0 {
			paddr = first.Addr
		}

		p := out[ehdrSize+phdrSize*i:]
		o.PutUint32(p[0:], ptLoad)
		o.PutUint32(p[4:], off)
		o.PutUint32(p[8:], first.Addr)
		o.PutUint32(p[12:], paddr)
		o.PutUint32(p[16:], filesz)
		o.PutUint32(p[20:], memsz)
		o.PutUint32(p[24:], 0x5) /* R+X */
		o.PutUint32(p[28:], 4)
	}

	out = append(out, body...)

	/* Section headers: null, user sections, .shstrtab */
	out = append(out, make([]byte, shdrSize)...)
	for i, s := range img.Sections {
		h := make([]byte, shdrSize)
		typ := uint32(shtProgbits)
		if s.NoBits {
			typ = shtNobits
		}
		flags := uint32(shfAlloc | shfWrite)
		addr := s.Addr
		if s.NoAlloc {
			flags = 0
			addr = 0
		}
		o.PutUint32(h[0:], nameOff[i])
		o.PutUint32(h[4:], typ)
		o.PutUint32(h[8:], flags)
		o.PutUint32(h[12:], addr)
		o.PutUint32(h[16:], offsets[s.Name])
		o.PutUint32(h[20:], sizes[s.Name])
		o.PutUint32(h[32:], 1)
		out = append(out, h...)
	}

	h := make([]byte, shdrSize)
	o.PutUint32(h[0:], nameOff[len(img.Sections)])
	o.PutUint32(h[4:], shtStrtab)
	o.PutUint32(h[16:], shstrOff)
	o.PutUint32(h[20:], uint32(len(shstr)))
	o.PutUint32(h[32:], 1)
	out = append(out, h...)

	return out
}

// Offset returns the file offset of the named section in the rendered image.
func (img Image) Offset(name string) uint32 {
	cur := uint32(ehdrSize + phdrSize*len(img.Segments))
	for _, s := range img.Sections {
		if s.Name == name {
			return cur
		}
		if !s.NoBits {
			cur += uint32(len(s.Data))
		}
	}
	panic(fmt.Sprintf("elftest: no section %q", name))
}

func (img Image) section(name string) Section {
	for _, s := range img.Sections {
		if s.Name == name {
			return s
		}
	}
	panic(fmt.Sprintf("elftest: no section %q", name))
}

// Firmware returns a typical firmware image: vector table and code at base,
// a version string, the metadata record and a 4 byte firmware flag.
func Firmware(base uint32, version string) Image {
	o := binary.LittleEndian

	text := make([]byte, 16)
	for i := range text {
		text[i] = byte(0xA0 + i)
	}
	verAddr := base + uint32(len(text))
	meta := Metadata(o, verAddr, uint32(len(version)))

	rodata := []byte(version)
	for len(rodata)%4 != 0 {
		rodata = append(rodata, 0)
	}
	metaAddr := verAddr + uint32(len(rodata))
	flagAddr := metaAddr + uint32(len(meta))

	return Image{
		Entry: base,
		Sections: []Section{
			{Name: ".text", Addr: base, Data: text},
			{Name: ".rodata", Addr: verAddr, Data: rodata},
			{Name: ".metadata", Addr: metaAddr, Data: meta},
			{Name: ".firmware_flag", Addr: flagAddr, Data: []byte{0x00, 0x00, 0x00, 0x00}},
			{Name: ".comment", Data: []byte("test\x00"), NoAlloc: true},
		},
		Segments: []Segment{
			{Sections: []string{".text", ".rodata", ".metadata", ".firmware_flag"}},
		},
	}
}
