// Package elfimg inspects and rewrites firmware ELF images: it reads the
// embedded version string, clears the first-boot flag for update images and
// flattens loadable segments into a raw memory image.
package elfimg

import (
	"bytes"
	"debug/elf"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

const (
	SectionMetadata     = ".metadata"
	SectionFirmwareFlag = ".firmware_flag"
)

/* The metadata section starts with a 4 byte tag, followed by the address and
 * length of the version string, all in the byte order of the image. */
const (
	metaVersionAddr = 4
	metaVersionLen  = 8
	metaSize        = 12
)

func Parse(data []byte) (*elf.File, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorInvalidImage, err)
	}
	return f, nil
}

// ReadVersion returns the version string the metadata record points at. The
// string must lie entirely inside exactly one allocated section.
func ReadVersion(f *elf.File) (string, error) {
	meta := f.Section(SectionMetadata)
	if meta == nil || meta.Type == elf.SHT_NOBITS {
		return "", ErrorMissingMetadata
	}

	raw, err := meta.Data()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrorInvalidImage, err)
	}
	if len(raw) < metaSize {
		return "", ErrorShortMetadata
	}

	addr := uint64(f.ByteOrder.Uint32(raw[metaVersionAddr:]))
	length := uint64(f.ByteOrder.Uint32(raw[metaVersionLen:]))

	var found []byte
	matches := 0
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		if addr < s.Addr || addr+length > s.Addr+s.Size {
			continue
		}

		data, err := s.Data()
		if err != nil {
			return "", fmt.Errorf("%w: section %s: %v", ErrorInvalidImage, s.Name, err)
		}
		offset := addr - s.Addr
		if offset+length > uint64(len(data)) {
			continue
		}

		found = data[offset : offset+length]
		matches++
	}

	if matches != 1 {
		return "", fmt.Errorf("%w: %d bytes at 0x%08x", ErrorNoVersionFound, length, addr)
	}

	return decodeLossy(found), nil
}

// Version parses the image and reads its version.
func Version(data []byte) (string, error) {
	f, err := Parse(data)
	if err != nil {
		return "", err
	}
	return ReadVersion(f)
}

/* Invalid sequences are replaced by U+FFFD instead of failing the build */
func decodeLossy(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(out)
}
