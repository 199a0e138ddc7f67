package svd

import "errors"

var (
	ErrorMalformedSVD      = errors.New("Malformed register map document")
	ErrorMalformedPath     = errors.New("Field path must be peripheral/register/field")
	ErrorUnknownPeripheral = errors.New("Peripheral does not exist")
	ErrorUnknownRegister   = errors.New("Register does not exist")
	ErrorUnknownField      = errors.New("Field does not exist")
)
