package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GrappleRobotics/grapple-bundle/elfimg"
	"github.com/klauspost/compress/zip"
)

type LogFunc func(level int, format string, param ...interface{})

type BuildOpts struct {
	Output     string
	Firmware   string
	Bootloader string
	Config     string

	/* Accepted for compatibility, no check is implemented yet */
	LaserCANRev1BootloaderCheck bool

	LogFunc LogFunc
}

func (o BuildOpts) log(level int, format string, param ...interface{}) {
	if o.LogFunc != nil {
		o.LogFunc(level, format, param...)
	}
}

type entry struct {
	name string
	data []byte
}

// Build writes a bundle to opts.Output. The output is only replaced once the
// complete archive has been written.
func Build(opts BuildOpts) error {
	firmware, err := os.ReadFile(opts.Firmware)
	if err != nil {
		return err
	}
	bootloader, err := os.ReadFile(opts.Bootloader)
	if err != nil {
		return err
	}
	config, err := os.ReadFile(opts.Config)
	if err != nil {
		return err
	}

	if _, err := DecodeProcedure(config); err != nil {
		return fmt.Errorf("%s: %w", opts.Config, err)
	}

	if opts.LaserCANRev1BootloaderCheck {
		opts.log(1, "LaserCAN rev1 bootloader check requested, nothing to check")
	}

	version, update, err := elfimg.PatchUpdateFlag(firmware)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.Firmware, err)
	}
	_, updateBin, err := elfimg.Linearize(update)
	if err != nil {
		return fmt.Errorf("%s: update image: %w", opts.Firmware, err)
	}

	blVersion, blBin, err := elfimg.Linearize(bootloader)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.Bootloader, err)
	}

	fwName := filepath.Base(opts.Firmware)
	blName := filepath.Base(opts.Bootloader)

	m := Manifest{
		Firmware:            fwName,
		FirmwareUpdate:      fmt.Sprintf("%s-%s-update.elf", fwName, version),
		FirmwareUpdateBin:   fmt.Sprintf("%s-%s-update%s", fwName, version, extFirmwareUpdate),
		Bootloader:          blName,
		BootloaderUpdateBin: fmt.Sprintf("%s-%s%s", blName, blVersion, extBootloaderUpdate),
		Config:              filepath.Base(opts.Config),
		FirmwareVersion:     version,
		BootloaderVersion:   blVersion,
	}
	opts.log(1, "Firmware %s version %s, bootloader %s version %s", fwName, version, blName, blVersion)

	index, err := m.Marshal()
	if err != nil {
		return err
	}

	entries := []entry{
		{m.Firmware, firmware},
		{m.Bootloader, bootloader},
		{m.Config, config},
		{m.FirmwareUpdate, update},
		{m.FirmwareUpdateBin, updateBin.Data},
		{m.BootloaderUpdateBin, blBin.Data},
		{IndexName, index},
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.name] {
			return fmt.Errorf("%w: %s", ErrorDuplicateEntry, e.name)
		}
		seen[e.name] = true
	}

	return writeArchive(opts, entries)
}

func writeArchive(opts BuildOpts, entries []entry) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(opts.Output), "."+filepath.Base(opts.Output)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, e := range entries {
		hdr := &zip.FileHeader{
			Name:   e.name,
			Method: zip.Deflate,
		}
		hdr.SetMode(0755)

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := w.Write(e.data); err != nil {
			return err
		}
		opts.log(2, "Added %s (%d bytes)", e.name, len(e.data))
	}

	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), opts.Output)
}
