//go:build linux
// +build linux

package gohid

import (
	"fmt"
	"os"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

type HIDRaw struct {
	dev *os.File
}

func OpenHID(path string) (*HIDRaw, error) {
	dev, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &HIDRaw{
		dev: dev,
	}, nil
}

/*
 HIDIOCGRAWINFO    = 80084803
 HIDIOCGRAWNAME(0) = 80004804
*/

type rawDevInfo struct {
	BusType uint32
	Vendor  int16
	Product int16
}

func (h *HIDRaw) ioctl(name string, req uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(
		syscall.SYS_IOCTL,
		uintptr(h.dev.Fd()),
		uintptr(req),
		uintptr(arg),
	)

	if errno != 0 {
		return os.NewSyscallError(name, fmt.Errorf("%d", int(errno)))
	}
	return nil
}

// Info queries the bus and USB IDs from the kernel.
func (h *HIDRaw) Info() (DeviceInfo, error) {
	var raw rawDevInfo
	err := h.ioctl("HIDIOCGRAWINFO", 0x80084803, unsafe.Pointer(&raw))
	runtime.KeepAlive(&raw)
	if err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{
		Path:      h.dev.Name(),
		BusType:   raw.BusType,
		VendorID:  uint16(raw.Vendor),
		ProductID: uint16(raw.Product),
	}, nil
}

func (h *HIDRaw) Name() (string, error) {
	var tmp [256]byte

	err := h.ioctl("HIDIOCGRAWNAME", uint32(0x80004804)|uint32(len(tmp)<<16), unsafe.Pointer(&tmp))
	runtime.KeepAlive(&tmp)
	if err != nil {
		return "", err
	}

	n := 0
	for n < len(tmp) && tmp[n] != 0 {
		n++
	}
	return string(tmp[:n]), nil
}

func (h *HIDRaw) Close() error {
	return h.dev.Close()
}
