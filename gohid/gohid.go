// Package gohid finds HID debug probes through the Linux hidraw interface
// without cgo.
package gohid

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const SysfsRoot = "/sys/class/hidraw"

var (
	ErrorBadUevent   = errors.New("Malformed uevent")
	ErrorUnsupported = errors.New("Hidraw is only available on linux")
)

type DeviceInfo struct {
	/* Device node, /dev/hidrawN */
	Path string

	BusType   uint32
	VendorID  uint16
	ProductID uint16
	Name      string
	Serial    string
}

// IsCMSISDAP reports whether the product name marks the device as a
// CMSIS-DAP probe, which the CMSIS-DAP specification requires.
func (d DeviceInfo) IsCMSISDAP() bool {
	return strings.Contains(d.Name, "CMSIS-DAP")
}

/* HID_ID=0003:0000C251:0000F001 */
func parseUevent(data []byte) (DeviceInfo, error) {
	var info DeviceInfo
	var haveID bool

	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		k, v, ok := strings.Cut(s.Text(), "=")
		if !ok {
			continue
		}

		switch k {
		case "HID_ID":
			parts := strings.Split(v, ":")
			if len(parts) != 3 {
				return DeviceInfo{}, fmt.Errorf("%w: HID_ID=%s", ErrorBadUevent, v)
			}
			var ids [3]uint64
			for i, p := range parts {
				n, err := strconv.ParseUint(p, 16, 32)
				if err != nil {
					return DeviceInfo{}, fmt.Errorf("%w: HID_ID=%s", ErrorBadUevent, v)
				}
				ids[i] = n
			}
			if ids[1] > 0xFFFF || ids[2] > 0xFFFF {
				return DeviceInfo{}, fmt.Errorf("%w: HID_ID=%s", ErrorBadUevent, v)
			}
			info.BusType = uint32(ids[0])
			info.VendorID = uint16(ids[1])
			info.ProductID = uint16(ids[2])
			haveID = true
		case "HID_NAME":
			info.Name = v
		case "HID_UNIQ":
			info.Serial = v
		}
	}

	if !haveID {
		return DeviceInfo{}, fmt.Errorf("%w: no HID_ID", ErrorBadUevent)
	}
	return info, nil
}

// Enumerate lists the hidraw devices registered under root, usually
// SysfsRoot, sorted by device node.
func Enumerate(root string) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var out []DeviceInfo
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "hidraw") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(root, e.Name(), "device", "uevent"))
		if err != nil {
			return nil, err
		}
		info, err := parseUevent(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		info.Path = filepath.Join("/dev", e.Name())
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out, nil
}
