package gdbprobe

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChecksum(t *testing.T) {
	if got := checksum([]byte("OK")); got != 0x9a {
		t.Errorf("checksum(OK) = %02x, want 9a", got)
	}
	if got := checksum(nil); got != 0 {
		t.Errorf("checksum() = %02x, want 00", got)
	}
}

func TestEscape(t *testing.T) {
	in := []byte{'a', '$', '#', '}', '*', 0x00, 0xff}
	want := []byte{'a', '}', 0x04, '}', 0x03, '}', 0x5d, '}', 0x0a, 0x00, 0xff}

	got := escape(in)
	if !bytes.Equal(got, want) {
		t.Errorf("escape() = % x, want % x", got, want)
	}

	back, err := unescape(got)
	if err != nil {
		t.Fatalf("unescape(): %v", err)
	}
	if !bytes.Equal(back, in) {
		t.Errorf("unescape() = % x, want % x", back, in)
	}

	if _, err := unescape([]byte("ab}")); !errors.Is(err, ErrorInvalidResponse) {
		t.Errorf("dangling escape: got err %v", err)
	}
}

func TestExpandRLE(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "abc", want: "abc"},
		{in: "0* ", want: "0000"},
		{in: `0*"`, want: "000000"},
		{in: "12*!3", want: "1222223"},
		{in: "*!", wantErr: true},
		{in: "0*", wantErr: true},
		{in: "0*\x10", wantErr: true},
	} {
		got, err := expandRLE([]byte(test.in))
		if test.wantErr {
			if err == nil {
				t.Errorf("expandRLE(%q) succeeded", test.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("expandRLE(%q): %v", test.in, err)
			continue
		}
		if string(got) != test.want {
			t.Errorf("expandRLE(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestEncodeRLE(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7, 8, 9, 98, 99, 250} {
		in := append(bytes.Repeat([]byte{'0'}, n), 'x')
		enc := encodeRLE(in)
		if bytes.ContainsAny(enc, "#$") {
			t.Errorf("%d repeats encode to %q", n, enc)
		}
		got, err := expandRLE(enc)
		if err != nil || !bytes.Equal(got, in) {
			t.Errorf("%d repeats: expandRLE(%q) = %q, %v", n, enc, got, err)
		}
	}
}

func TestRequestName(t *testing.T) {
	for in, want := range map[string]string{
		"m8000000,10":                    "m8000000",
		"vFlashWrite:8000000:\x00\x01":   "vFlashWrite",
		"qXfer:memory-map:read::0,100":   "qXfer:memory-map:read::0,100",
		"qSupported:multiprocess-;xxxxx": "qSupported:multiprocess-;xxxxx",
		"D":                              "D",
	} {
		if got := requestName([]byte(in)); got != want {
			t.Errorf("requestName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMemoryMap(t *testing.T) {
	got, err := parseMemoryMap([]byte(testMemoryMap))
	if err != nil {
		t.Fatalf("parseMemoryMap(): %v", err)
	}

	want := []MemoryMapEntry{
		{Type: "ram", Start: 0x20000000, Length: 0x8000},
		{Type: "flash", Start: 0x08000000, Length: 0x20000, BlockSize: 0x800},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("memory map (-want +got):\n%s", diff)
	}

	if _, err := parseMemoryMap([]byte(`<memory-map><memory type="ram" start="x" length="1"/></memory-map>`)); !errors.Is(err, ErrorInvalidResponse) {
		t.Errorf("bad start: got err %v", err)
	}
}
