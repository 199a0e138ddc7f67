// Package dbghal abstracts an attached debug probe: exclusive access to the
// target core and its memory bus, and a bulk loader that erases, programs and
// verifies flash.
package dbghal

type LogFunc func(level int, format string, param ...interface{})

// Core is an exclusively held handle to the target core. Its memory is only
// usable until Release is called.
type Core interface {
	Memory() MemoryRegion
	Release() error
}

type DownloadOptions struct {
	/* Read back and compare every programmed byte */
	Verify bool

	Progress ProgressFunc
	LogFunc  LogFunc
}

func (o DownloadOptions) emit(e ProgressEvent) {
	if o.Progress != nil {
		o.Progress(e)
	}
}

func (o DownloadOptions) log(level int, format string, param ...interface{}) {
	if o.LogFunc != nil {
		o.LogFunc(level, format, param...)
	}
}

// Loader programs an ELF image into the flash of the target. The core must
// not be held while it runs.
type Loader interface {
	Download(image []byte, opts DownloadOptions) error
}

type Session interface {
	Loader

	// Core acquires the core with the given index. Only one handle may be
	// held at a time.
	Core(index int) (Core, error)

	Close() error
}
