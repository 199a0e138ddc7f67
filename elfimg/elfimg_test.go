package elfimg_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/GrappleRobotics/grapple-bundle/elfimg"
	"github.com/GrappleRobotics/grapple-bundle/elfimg/elftest"
	"github.com/google/go-cmp/cmp"
)

func TestReadVersion(t *testing.T) {
	le := binary.LittleEndian
	be := binary.BigEndian

	for _, test := range []struct {
		desc    string
		img     elftest.Image
		want    string
		wantErr error
	}{
		{
			desc: "firmware image",
			img:  elftest.Firmware(0x08000000, "1.2.3"),
			want: "1.2.3",
		}, {
			desc: "big endian record",
			img: elftest.Image{
				BigEndian: true,
				Sections: []elftest.Section{
					{Name: ".rodata", Addr: 0x100, Data: []byte("xxv2.0.0-rc1yy")},
					{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(be, 0x102, 10)},
				},
			},
			want: "v2.0.0-rc1",
		}, {
			desc: "string ends at section end",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".rodata", Addr: 0x100, Data: []byte("abc4.5")},
					{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(le, 0x103, 3)},
				},
			},
			want: "4.5",
		}, {
			desc: "invalid utf8 is replaced",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".rodata", Addr: 0x100, Data: []byte{'1', 0xff, '2'}},
					{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(le, 0x100, 3)},
				},
			},
			want: "1\uFFFD2",
		}, {
			desc: "no metadata",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".text", Addr: 0x100, Data: []byte{1, 2, 3, 4}},
				},
			},
			wantErr: elfimg.ErrorMissingMetadata,
		}, {
			desc: "short metadata",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".metadata", Addr: 0x200, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
				},
			},
			wantErr: elfimg.ErrorShortMetadata,
		}, {
			desc: "string spans two sections",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".a", Addr: 0x100, Data: []byte("1.2")},
					{Name: ".b", Addr: 0x103, Data: []byte(".3")},
					{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(le, 0x100, 5)},
				},
			},
			wantErr: elfimg.ErrorNoVersionFound,
		}, {
			desc: "string outside every section",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(le, 0x9000, 4)},
				},
			},
			wantErr: elfimg.ErrorNoVersionFound,
		}, {
			desc: "non allocated sections are ignored",
			img: elftest.Image{
				Sections: []elftest.Section{
					{Name: ".comment", Data: []byte("1.0.0"), NoAlloc: true},
					{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(le, 0, 5)},
				},
			},
			wantErr: elfimg.ErrorNoVersionFound,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := elfimg.Version(test.img.Bytes())
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("got err %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Version(): %v", err)
			}
			if got != test.want {
				t.Errorf("got version %q, want %q", got, test.want)
			}
		})
	}
}

func TestVersionRejectsGarbage(t *testing.T) {
	if _, err := elfimg.Version([]byte("definitely not an elf")); !errors.Is(err, elfimg.ErrorInvalidImage) {
		t.Fatalf("got err %v, want ErrorInvalidImage", err)
	}
}

func TestPatchUpdateFlag(t *testing.T) {
	img := elftest.Firmware(0x08000000, "1.2.3")
	in := img.Bytes()
	orig := append([]byte(nil), in...)

	version, out, err := elfimg.PatchUpdateFlag(in)
	if err != nil {
		t.Fatalf("PatchUpdateFlag(): %v", err)
	}
	if version != "1.2.3" {
		t.Errorf("got version %q, want 1.2.3", version)
	}
	if !bytes.Equal(in, orig) {
		t.Fatal("input buffer was modified")
	}
	if len(out) != len(in) {
		t.Fatalf("output length %d, want %d", len(out), len(in))
	}

	off := int(img.Offset(elfimg.SectionFirmwareFlag))
	if diff := cmp.Diff([]byte{0xff, 0xff, 0xff, 0xff}, out[off:off+4]); diff != "" {
		t.Errorf("flag bytes (-want +got):\n%s", diff)
	}

	/* Nothing but the flag changes */
	for i := range in {
		if i >= off && i < off+4 {
			continue
		}
		if in[i] != out[i] {
			t.Fatalf("byte %d changed: %02x -> %02x", i, in[i], out[i])
		}
	}

	/* The output is still a loadable image carrying the patched flag */
	_, mem, err := elfimg.Linearize(out)
	if err != nil {
		t.Fatalf("Linearize(patched): %v", err)
	}
	if got := mem.Data[len(mem.Data)-4:]; !bytes.Equal(got, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("linearized flag = % x, want ff ff ff ff", got)
	}
}

func TestPatchUpdateFlagMissingSection(t *testing.T) {
	img := elftest.Image{
		Sections: []elftest.Section{
			{Name: ".rodata", Addr: 0x100, Data: []byte("0.1")},
			{Name: ".metadata", Addr: 0x200, Data: elftest.Metadata(binary.LittleEndian, 0x100, 3)},
		},
	}
	in := img.Bytes()

	version, out, err := elfimg.PatchUpdateFlag(in)
	if err != nil {
		t.Fatalf("PatchUpdateFlag(): %v", err)
	}
	if version != "0.1" {
		t.Errorf("got version %q, want 0.1", version)
	}
	if !bytes.Equal(in, out) {
		t.Error("image without flag section was modified")
	}
}

func TestPatchUpdateFlagWrongSize(t *testing.T) {
	img := elftest.Firmware(0x08000000, "1.0")
	for i := range img.Sections {
		if img.Sections[i].Name == elfimg.SectionFirmwareFlag {
			img.Sections[i].Data = []byte{0, 0}
		}
	}

	if _, _, err := elfimg.PatchUpdateFlag(img.Bytes()); !errors.Is(err, elfimg.ErrorFlagSize) {
		t.Fatalf("got err %v, want ErrorFlagSize", err)
	}
}

func TestFlatten(t *testing.T) {
	for _, test := range []struct {
		desc     string
		segs     []elfimg.Segment
		wantBase uint64
		want     []byte
		wantErr  error
	}{
		{
			desc: "gap is zero filled",
			segs: []elfimg.Segment{
				{Addr: 0x1000, Data: []byte{1, 2, 3, 4}},
				{Addr: 0x1010, Data: []byte{5, 6, 7, 8}},
			},
			wantBase: 0x1000,
			want:     append(append([]byte{1, 2, 3, 4}, make([]byte, 12)...), 5, 6, 7, 8),
		}, {
			desc: "enumeration order does not matter",
			segs: []elfimg.Segment{
				{Addr: 0x1010, Data: []byte{5, 6, 7, 8}},
				{Addr: 0x1000, Data: []byte{1, 2, 3, 4}},
			},
			wantBase: 0x1000,
			want:     append(append([]byte{1, 2, 3, 4}, make([]byte, 12)...), 5, 6, 7, 8),
		}, {
			desc: "adjacent segments",
			segs: []elfimg.Segment{
				{Addr: 0x08000000, Data: []byte{1, 2}},
				{Addr: 0x08000002, Data: []byte{3}},
			},
			wantBase: 0x08000000,
			want:     []byte{1, 2, 3},
		}, {
			desc: "overlap",
			segs: []elfimg.Segment{
				{Addr: 0x1000, Data: []byte{1, 2, 3, 4}},
				{Addr: 0x1002, Data: []byte{5, 6}},
			},
			wantErr: elfimg.ErrorAddressOverlap,
		}, {
			desc: "too large",
			segs: []elfimg.Segment{
				{Addr: 0x08000000, Data: []byte{1}},
				{Addr: 0x20000000, Data: []byte{2}},
			},
			wantErr: elfimg.ErrorImageTooLarge,
		}, {
			desc:    "empty",
			wantErr: elfimg.ErrorNoSegments,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := elfimg.Flatten(test.segs)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("got err %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Flatten(): %v", err)
			}
			if got.Base != test.wantBase {
				t.Errorf("got base 0x%x, want 0x%x", got.Base, test.wantBase)
			}
			if diff := cmp.Diff(test.want, got.Data); diff != "" {
				t.Errorf("data (-want +got):\n%s", diff)
			}

			last := test.segs[0]
			first := test.segs[0]
			for _, s := range test.segs {
				if s.Addr > last.Addr {
					last = s
				}
				if s.Addr < first.Addr {
					first = s
				}
			}
			if want := last.End() - first.Addr; uint64(len(got.Data)) != want {
				t.Errorf("got length %d, want %d", len(got.Data), want)
			}
		})
	}
}

func TestLinearize(t *testing.T) {
	le := binary.LittleEndian
	img := elftest.Image{
		Sections: []elftest.Section{
			{Name: ".isr_vector", Addr: 0x08000000, Data: []byte{0x11, 0x22, 0x33, 0x44}},
			{Name: ".rodata", Addr: 0x08000100, Data: []byte("9.9.9\x00\x00\x00")},
			{Name: ".metadata", Addr: 0x08000108, Data: elftest.Metadata(le, 0x08000100, 5)},
			/* .data lives in RAM but is loaded from flash after .metadata */
			{Name: ".data", Addr: 0x20000000, Data: []byte{0xAA, 0xBB}},
			{Name: ".bss", Addr: 0x20000004, NoBits: true, Size: 64},
		},
		Segments: []elftest.Segment{
			{Sections: []string{".rodata", ".metadata"}},
			{Sections: []string{".isr_vector"}},
			{Sections: []string{".data"}, Paddr: 0x08000114},
			{Sections: []string{".bss"}},
		},
	}

	version, mem, err := elfimg.Linearize(img.Bytes())
	if err != nil {
		t.Fatalf("Linearize(): %v", err)
	}
	if version != "9.9.9" {
		t.Errorf("got version %q, want 9.9.9", version)
	}
	if mem.Base != 0x08000000 {
		t.Errorf("got base 0x%x, want 0x08000000", mem.Base)
	}
	if got, want := mem.End(), uint64(0x08000116); got != want {
		t.Errorf("got end 0x%x, want 0x%x", got, want)
	}
	if diff := cmp.Diff([]byte{0x11, 0x22, 0x33, 0x44, 0, 0}, mem.Data[:6]); diff != "" {
		t.Errorf("head (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0xAA, 0xBB}, mem.Data[0x114:]); diff != "" {
		t.Errorf(".data (-want +got):\n%s", diff)
	}
}

func TestErrorMessagesCapitalized(t *testing.T) {
	for _, err := range []error{
		elfimg.ErrorInvalidImage,
		elfimg.ErrorMissingMetadata,
		elfimg.ErrorShortMetadata,
		elfimg.ErrorNoVersionFound,
		elfimg.ErrorFlagSize,
		elfimg.ErrorNoSegments,
		elfimg.ErrorAddressOverlap,
		elfimg.ErrorImageTooLarge,
	} {
		if r, _ := utf8.DecodeRuneInString(err.Error()); !unicode.IsUpper(r) {
			t.Errorf("%q does not start with a capital", err)
		}
	}
}
