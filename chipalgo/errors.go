package chipalgo

import "errors"

var (
	ErrorMalformedDescriptor = errors.New("Malformed algorithm descriptor")
	ErrorUnknownChip         = errors.New("Unknown algorithm for chip")
	ErrorMapNotFound         = errors.New("Register map not found")
	ErrorFetchFailed         = errors.New("Register map could not be fetched")
)
