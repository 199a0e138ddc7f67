package elfimg

import (
	"debug/elf"
	"fmt"
)

/* Written over the firmware flag: the bootloader treats an erased flag as
 * "not first boot", which marks the image as an update. */
var updateFlag = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

// PatchUpdateFlag returns the image version and a copy of data with the
// firmware flag section cleared. The input is never modified. Images without
// a flag section are returned unchanged.
func PatchUpdateFlag(data []byte) (string, []byte, error) {
	f, err := Parse(data)
	if err != nil {
		return "", nil, err
	}

	version, err := ReadVersion(f)
	if err != nil {
		return "", nil, err
	}

	out := make([]byte, len(data))
	copy(out, data)

	flag := f.Section(SectionFirmwareFlag)
	if flag == nil || flag.Type == elf.SHT_NOBITS {
		return version, out, nil
	}

	if flag.Size != uint64(len(updateFlag)) {
		return "", nil, fmt.Errorf("%w: got %d", ErrorFlagSize, flag.Size)
	}

	end := flag.Offset + flag.Size
	if end < flag.Offset || end > uint64(len(out)) {
		return "", nil, fmt.Errorf("%w: %s lies outside the file", ErrorInvalidImage, SectionFirmwareFlag)
	}

	/* Segments reference the same file bytes, so loaders see the new value too */
	copy(out[flag.Offset:end], updateFlag[:])

	return version, out, nil
}
