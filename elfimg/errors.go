package elfimg

import "errors"

var (
	ErrorInvalidImage    = errors.New("Not a valid ELF image")
	ErrorMissingMetadata = errors.New("No metadata section, is this a firmware file?")
	ErrorShortMetadata   = errors.New("Metadata section is too short")
	ErrorNoVersionFound  = errors.New("No version found")
	ErrorFlagSize        = errors.New("Firmware flag section must be 4 bytes")
	ErrorNoSegments      = errors.New("Image has no loadable data")
	ErrorAddressOverlap  = errors.New("Loadable segments overlap")
	ErrorImageTooLarge   = errors.New("Linearized image is too large")
)
