// Package bundle builds and reads firmware bundles: zip archives holding the
// original firmware, bootloader and flash config, the generated update
// images and an index naming all of them.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IndexName is the archive entry holding the JSON manifest.
const IndexName = "index"

/* Extensions of the raw binaries the bootloader accepts */
const (
	extFirmwareUpdate   = ".grplfw"
	extBootloaderUpdate = ".grplbt"
)

// Manifest names every artifact stored in a bundle. The field order is the
// serialized order.
type Manifest struct {
	Firmware            string `json:"firmware"`
	FirmwareUpdate      string `json:"firmware_update"`
	FirmwareUpdateBin   string `json:"firmware_update_bin"`
	Bootloader          string `json:"bootloader"`
	BootloaderUpdateBin string `json:"bootloader_update_bin"`
	Config              string `json:"config"`
	FirmwareVersion     string `json:"firmware_version"`
	BootloaderVersion   string `json:"bootloader_version"`
}

// Entries lists the artifact names in archive order.
func (m Manifest) Entries() []string {
	return []string{
		m.Firmware,
		m.Bootloader,
		m.Config,
		m.FirmwareUpdate,
		m.FirmwareUpdateBin,
		m.BootloaderUpdateBin,
	}
}

func (m Manifest) validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"firmware", m.Firmware},
		{"firmware_update", m.FirmwareUpdate},
		{"firmware_update_bin", m.FirmwareUpdateBin},
		{"bootloader", m.Bootloader},
		{"bootloader_update_bin", m.BootloaderUpdateBin},
		{"config", m.Config},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s is missing", ErrorMalformedManifest, f.name)
		}
	}
	return nil
}

func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrorMalformedManifest, err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m Manifest) Marshal() ([]byte, error) {
	return marshalCompact(m)
}

/* Compact JSON without HTML escaping or a trailing newline, so that file
 * names containing '<' or '&' survive unchanged */
func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
