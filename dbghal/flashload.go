package dbghal

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/GrappleRobotics/grapple-bundle/elfimg"
)

// FlashRegion is a flash bank erased in units of BlockSize.
type FlashRegion struct {
	Start     uint64
	Length    uint64
	BlockSize uint64
}

func (r FlashRegion) End() uint64 {
	return r.Start + r.Length
}

func (r FlashRegion) holds(addr uint64) bool {
	return addr >= r.Start && addr < r.End()
}

// FlashDevice is the set of primitives a probe offers to program flash.
// WriteFlash may accept fewer bytes than given. Writes are only guaranteed
// to have reached flash after CommitFlash.
type FlashDevice interface {
	FlashRegions() ([]FlashRegion, error)
	EraseFlash(addr, length uint64) error
	WriteFlash(addr uint64, data []byte) (int, error)
	CommitFlash() error

	Memory() MemoryRegion
}

type eraseRange struct {
	region     int
	start, end uint64
}

/* Every block touched by a segment is erased. A segment may run on into the
 * next adjacent region, each part is rounded to the block size of its own
 * region. Ranges are merged per region so each block is erased once. */
func eraseRanges(segs []elfimg.Segment, regions []FlashRegion) ([]eraseRange, error) {
	var out []eraseRange
	for _, s := range segs {
		if s.End() < s.Addr {
			return nil, fmt.Errorf("%w: 0x%08x-0x%08x", ErrorNotInFlash, s.Addr, s.End())
		}

		for addr := s.Addr; addr < s.End(); {
			idx := -1
			for i := range regions {
				if regions[i].holds(addr) {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("%w: 0x%08x-0x%08x", ErrorNotInFlash, addr, s.End())
			}
			region := regions[idx]

			partEnd := s.End()
			if partEnd > region.End() {
				partEnd = region.End()
			}

			bs := region.BlockSize
			if bs == 0 {
				bs = region.Length
			}
			start := region.Start + (addr-region.Start)/bs*bs
			end := region.Start + (partEnd-region.Start+bs-1)/bs*bs
			if end > region.End() {
				end = region.End()
			}
			out = append(out, eraseRange{idx, start, end})

			addr = partEnd
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].start < out[j].start
	})

	merged := out[:0]
	for _, r := range out {
		if n := len(merged); n > 0 && r.region == merged[n-1].region && r.start <= merged[n-1].end {
			if r.end > merged[n-1].end {
				merged[n-1].end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}

	return merged, nil
}

// ProgramImage erases, programs and optionally verifies the loadable
// segments of an ELF image. Bytes in erased blocks that the image does not
// cover are left erased.
func ProgramImage(dev FlashDevice, image []byte, opts DownloadOptions) error {
	segs, err := elfimg.Segments(image)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return elfimg.ErrorNoSegments
	}

	regions, err := dev.FlashRegions()
	if err != nil {
		return err
	}

	erase, err := eraseRanges(segs, regions)
	if err != nil {
		return err
	}

	var eraseTotal, programTotal uint64
	for _, r := range erase {
		eraseTotal += r.end - r.start
	}
	for _, s := range segs {
		programTotal += uint64(len(s.Data))
	}

	opts.emit(ProgressEvent{Kind: EraseStarted, Total: eraseTotal})
	for _, r := range erase {
		opts.log(2, "Erasing 0x%08x-0x%08x", r.start, r.end)
		if err := dev.EraseFlash(r.start, r.end-r.start); err != nil {
			opts.emit(ProgressEvent{Kind: EraseFailed, Address: r.start})
			return fmt.Errorf("erase 0x%08x: %w", r.start, err)
		}
		opts.emit(ProgressEvent{Kind: EraseProgress, Address: r.start, Size: r.end - r.start})
	}
	opts.emit(ProgressEvent{Kind: EraseFinished, Total: eraseTotal})

	opts.emit(ProgressEvent{Kind: ProgramStarted, Total: programTotal})
	for _, s := range segs {
		opts.log(2, "Programming 0x%08x-0x%08x", s.Addr, s.End())
		buf := s.Data
		addr := s.Addr
		for len(buf) > 0 {
			n, err := dev.WriteFlash(addr, buf)
			if err == nil && n == 0 {
				err = errors.New("Flash write made no progress")
			}
			if err != nil {
				opts.emit(ProgressEvent{Kind: ProgramFailed, Address: addr})
				return fmt.Errorf("program 0x%08x: %w", addr, err)
			}
			opts.emit(ProgressEvent{Kind: ProgramProgress, Address: addr, Size: uint64(n)})
			addr += uint64(n)
			buf = buf[n:]
		}
	}
	if err := dev.CommitFlash(); err != nil {
		opts.emit(ProgressEvent{Kind: ProgramFailed})
		return fmt.Errorf("commit: %w", err)
	}
	opts.emit(ProgressEvent{Kind: ProgramFinished, Total: programTotal})

	if !opts.Verify {
		return nil
	}

	opts.emit(ProgressEvent{Kind: VerifyStarted, Total: programTotal})
	mem := WrapCompleteIO(dev.Memory())
	for _, s := range segs {
		readback := make([]byte, len(s.Data))
		n, err := mem.Access(false, s.Addr, readback)
		if err != nil {
			opts.emit(ProgressEvent{Kind: VerifyFailed, Address: s.Addr})
			return fmt.Errorf("verify 0x%08x: %w", s.Addr, err)
		}
		if !bytes.Equal(readback[:n], s.Data) {
			at := s.Addr + uint64(n)
			for i := 0; i < n; i++ {
				if readback[i] != s.Data[i] {
					at = s.Addr + uint64(i)
					break
				}
			}
			opts.emit(ProgressEvent{Kind: VerifyFailed, Address: at})
			return fmt.Errorf("%w: first difference at 0x%08x", ErrorVerifyFailed, at)
		}
	}
	opts.emit(ProgressEvent{Kind: VerifyFinished, Total: programTotal})

	return nil
}
