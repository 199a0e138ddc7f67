package dbghal

import "errors"

var (
	ErrorUnalignedField = errors.New("Can't write a field that is not contained in one word")
	ErrorEmptyField     = errors.New("Field has no bits")
	ErrorVerifyFailed   = errors.New("Flash contents differ from the image")
	ErrorNotInFlash     = errors.New("Image data lies outside flash memory")
	ErrorCoreReleased   = errors.New("Core handle has been released")
	ErrorAlignment      = errors.New("Access violates the region alignment")
)
