package bundle

import "errors"

var (
	ErrorMalformedArchive  = errors.New("Bundle is not a valid archive")
	ErrorMissingIndex      = errors.New("Bundle has no index")
	ErrorMalformedManifest = errors.New("Bundle index is malformed")
	ErrorMissingConfig     = errors.New("Bundle has no config")
	ErrorMalformedConfig   = errors.New("Flash config is malformed")
	ErrorUnknownAction     = errors.New("Unknown flash action")
	ErrorMissingEntry      = errors.New("Bundle entry not found")
	ErrorDuplicateEntry    = errors.New("Duplicate bundle entry")
)
