package gdbprobe

import (
	"errors"
	"fmt"
)

var (
	ErrorInvalidResponse = errors.New("Received invalid response")
	ErrorNoAck           = errors.New("No ACK received")
	ErrorChecksum        = errors.New("Packet checksum mismatch")
	ErrorUnsupported     = errors.New("Request not supported by the GDB server")
	ErrorNoFlash         = errors.New("GDB server reports no flash memory")
	ErrorCoreHeld        = errors.New("Core is held, release it first")
)

// RemoteError is an "E NN" reply from the GDB server.
type RemoteError struct {
	Code    int
	Request string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("GDB server error %02x on %s", e.Code, e.Request)
}
