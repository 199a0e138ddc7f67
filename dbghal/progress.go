package dbghal

import "fmt"

type ProgressKind int

const (
	EraseStarted ProgressKind = iota
	EraseProgress
	EraseFinished
	EraseFailed
	ProgramStarted
	ProgramProgress
	ProgramFinished
	ProgramFailed
	VerifyStarted
	VerifyFinished
	VerifyFailed
)

func (k ProgressKind) String() string {
	switch k {
	case EraseStarted:
		return "EraseStarted"
	case EraseProgress:
		return "EraseProgress"
	case EraseFinished:
		return "EraseFinished"
	case EraseFailed:
		return "EraseFailed"
	case ProgramStarted:
		return "ProgramStarted"
	case ProgramProgress:
		return "ProgramProgress"
	case ProgramFinished:
		return "ProgramFinished"
	case ProgramFailed:
		return "ProgramFailed"
	case VerifyStarted:
		return "VerifyStarted"
	case VerifyFinished:
		return "VerifyFinished"
	case VerifyFailed:
		return "VerifyFailed"
	}
	return fmt.Sprintf("ProgressKind(%d)", int(k))
}

// ProgressEvent is reported by a Loader on the stack of Download. Total is
// set on the Started events, Address and Size on the Progress events.
type ProgressEvent struct {
	Kind    ProgressKind
	Address uint64
	Size    uint64
	Total   uint64
}

type ProgressFunc func(ProgressEvent)
