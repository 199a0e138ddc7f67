package gohid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseUevent(t *testing.T) {
	info, err := parseUevent([]byte("DRIVER=hid-generic\nHID_ID=0003:0000C251:0000F001\nHID_NAME=ARM CMSIS-DAP v2\nHID_PHYS=usb-0000:00:14.0-1/input0\nHID_UNIQ=0240000034\n"))
	if err != nil {
		t.Fatalf("parseUevent(): %v", err)
	}

	want := DeviceInfo{BusType: 3, VendorID: 0xC251, ProductID: 0xF001, Name: "ARM CMSIS-DAP v2", Serial: "0240000034"}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("info (-want +got):\n%s", diff)
	}
	if !info.IsCMSISDAP() {
		t.Error("not recognized as CMSIS-DAP")
	}

	for _, bad := range []string{"HID_NAME=x\n", "HID_ID=0003:C251\n", "HID_ID=0003:0001C251:0000F001\n", "HID_ID=zz:1:2\n"} {
		if _, err := parseUevent([]byte(bad)); !errors.Is(err, ErrorBadUevent) {
			t.Errorf("parseUevent(%q): got err %v", bad, err)
		}
	}
}

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	for name, uevent := range map[string]string{
		"hidraw1": "HID_ID=0003:0000046D:0000C52B\nHID_NAME=Logitech USB Receiver\n",
		"hidraw0": "HID_ID=0003:0000C251:0000F001\nHID_NAME=CMSIS-DAP\n",
	} {
		dir := filepath.Join(root, name, "device")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "unrelated"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := Enumerate(root)
	if err != nil {
		t.Fatalf("Enumerate(): %v", err)
	}

	want := []DeviceInfo{
		{Path: "/dev/hidraw0", BusType: 3, VendorID: 0xC251, ProductID: 0xF001, Name: "CMSIS-DAP"},
		{Path: "/dev/hidraw1", BusType: 3, VendorID: 0x046D, ProductID: 0xC52B, Name: "Logitech USB Receiver"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("devices (-want +got):\n%s", diff)
	}

	if got, err := Enumerate(filepath.Join(root, "missing")); err != nil || len(got) != 0 {
		t.Errorf("missing root: %v, %v", got, err)
	}
}
