//go:build !linux
// +build !linux

package gohid

type HIDRaw struct{}

func OpenHID(path string) (*HIDRaw, error) {
	return nil, ErrorUnsupported
}

func (h *HIDRaw) Info() (DeviceInfo, error) {
	return DeviceInfo{}, ErrorUnsupported
}

func (h *HIDRaw) Name() (string, error) {
	return "", ErrorUnsupported
}

func (h *HIDRaw) Close() error {
	return nil
}
