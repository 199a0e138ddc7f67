package elfimg

import (
	"debug/elf"
	"fmt"
	"sort"
)

// MaxLinearSize bounds the padded output, a RAM segment linked next to a
// flash segment would otherwise produce a buffer of hundreds of megabytes.
const MaxLinearSize = 256 << 20

type Segment struct {
	Addr uint64
	Data []byte
}

func (s Segment) End() uint64 {
	return s.Addr + uint64(len(s.Data))
}

// MemoryImage is a contiguous memory image starting at Base.
type MemoryImage struct {
	Base uint64
	Data []byte
}

func (m MemoryImage) End() uint64 {
	return m.Base + uint64(len(m.Data))
}

// LoadSegments returns the PT_LOAD segments that carry file data, addressed
// by their load (physical) address and sorted by it.
func LoadSegments(f *elf.File) ([]Segment, error) {
	var segs []Segment
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Filesz == 0 {
			continue
		}

		buf := make([]byte, p.Filesz)
		if _, err := p.ReadAt(buf, 0); err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrorInvalidImage, i, err)
		}

		segs = append(segs, Segment{
			Addr: p.Paddr,
			Data: buf,
		})
	}

	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Addr < segs[j].Addr
	})

	return segs, nil
}

func Segments(data []byte) ([]Segment, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return LoadSegments(f)
}

// Flatten places the segments in one zero padded buffer. Segments may be
// given in any order, overlapping segments are rejected.
func Flatten(segs []Segment) (MemoryImage, error) {
	if len(segs) == 0 {
		return MemoryImage{}, ErrorNoSegments
	}

	sorted := make([]Segment, len(segs))
	copy(sorted, segs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Addr < sorted[j].Addr
	})

	base := sorted[0].Addr
	cursor := base
	for i, s := range sorted {
		if s.End() < s.Addr {
			return MemoryImage{}, fmt.Errorf("%w: segment at 0x%08x wraps the address space", ErrorAddressOverlap, s.Addr)
		}
		if i > 0 && s.Addr < cursor {
			return MemoryImage{}, fmt.Errorf("%w: segment at 0x%08x starts before 0x%08x", ErrorAddressOverlap, s.Addr, cursor)
		}
		if s.End()-base > MaxLinearSize {
			return MemoryImage{}, fmt.Errorf("%w: 0x%08x-0x%08x", ErrorImageTooLarge, base, s.End())
		}
		cursor = s.End()
	}

	out := make([]byte, 0, cursor-base)
	cursor = base
	for _, s := range sorted {
		/* Gap between segments is filled with zeroes */
		out = append(out, make([]byte, s.Addr-cursor)...)
		out = append(out, s.Data...)
		cursor = s.End()
	}

	return MemoryImage{
		Base: base,
		Data: out,
	}, nil
}

// Linearize returns the version of the image and its loadable segments as a
// raw memory image, suitable for flashing at img.Base.
func Linearize(data []byte) (string, MemoryImage, error) {
	f, err := Parse(data)
	if err != nil {
		return "", MemoryImage{}, err
	}

	version, err := ReadVersion(f)
	if err != nil {
		return "", MemoryImage{}, err
	}

	segs, err := LoadSegments(f)
	if err != nil {
		return "", MemoryImage{}, err
	}

	img, err := Flatten(segs)
	if err != nil {
		return "", MemoryImage{}, err
	}

	return version, img, nil
}
