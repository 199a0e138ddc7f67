// Package gdbprobe drives a debug probe through a GDB server (probe-rs,
// OpenOCD, pyOCD, J-Link GDB server) using the GDB remote serial protocol.
package gdbprobe

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/GrappleRobotics/grapple-bundle/dbghal"
)

type GDBConfig struct {
	/* Upper bounds for one memory transfer, lowered to fit the PacketSize
	 * the server announces */
	MaxWriteSize int
	MaxReadSize  int

	/* Deadline for one request/response exchange, if the connection
	 * supports deadlines */
	Timeout time.Duration

	LogFunc dbghal.LogFunc
}

const maxRetransmit = 3

const (
	rxDone = iota - 1
	rxWaitStart
	rxData
	rxSum0
	rxSum1
)

type GDB struct {
	conn io.ReadWriter
	cfg  GDBConfig

	rxBuf      [2048]byte
	rxBufLen   int
	rxBufIndex int

	rxState int
	rxPkt   []byte
	rxSum   [2]byte

	packetSize int
	features   map[string]string
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (g *GDB) log(level int, format string, param ...interface{}) {
	if g.cfg.LogFunc != nil {
		g.cfg.LogFunc(level, format, param...)
	}
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

/* Binary payloads escape the framing characters as '}' followed by the
 * character xor 0x20 */
func escape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case '$', '#', '}', '*':
			out = append(out, '}', b^0x20)
		default:
			out = append(out, b)
		}
	}
	return out
}

func unescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '}' {
			i++
			if i >= len(data) {
				return nil, fmt.Errorf("%w: dangling escape", ErrorInvalidResponse)
			}
			out = append(out, data[i]^0x20)
			continue
		}
		out = append(out, data[i])
	}
	return out, nil
}

/* "X*n" repeats X a further n-29 times */
func expandRLE(data []byte) ([]byte, error) {
	if bytes.IndexByte(data, '*') < 0 {
		return data, nil
	}

	out := make([]byte, 0, len(data)*2)
	for i := 0; i < len(data); i++ {
		if data[i] != '*' {
			out = append(out, data[i])
			continue
		}
		if i == 0 || i+1 >= len(data) || data[i+1] < 29 {
			return nil, fmt.Errorf("%w: bad run length encoding", ErrorInvalidResponse)
		}
		prev := out[len(out)-1]
		for n := int(data[i+1]) - 29; n > 0; n-- {
			out = append(out, prev)
		}
		i++
	}
	return out, nil
}

func (g *GDB) readByte() (byte, error) {
	if g.rxBufIndex >= g.rxBufLen {
		n, err := g.conn.Read(g.rxBuf[:])
		if n == 0 {
			if err == nil {
				err = io.ErrNoProgress
			}
			return 0, err
		}
		g.rxBufLen = n
		g.rxBufIndex = 0
	}

	b := g.rxBuf[g.rxBufIndex]
	g.rxBufIndex++
	return b, nil
}

func (g *GDB) sendPacket(data []byte) error {
	frame := make([]byte, 0, len(data)+4)
	frame = append(frame, '$')
	frame = append(frame, data...)
	frame = append(frame, '#')
	frame = append(frame, fmt.Sprintf("%02x", checksum(data))...)

	for try := 0; try < maxRetransmit; try++ {
		g.log(3, "-> %s", frame)
		if _, err := g.conn.Write(frame); err != nil {
			return err
		}

		for {
			b, err := g.readByte()
			if err != nil {
				return err
			}

			if b == '+' {
				return nil
			} else if b == '-' {
				break
			}
			/* Anything else before the ack is line noise */
		}
	}

	return ErrorNoAck
}

func (g *GDB) receivePacket() ([]byte, error) {
	for try := 0; try < maxRetransmit; try++ {
		g.rxState = rxWaitStart
		g.rxPkt = g.rxPkt[:0]

		for g.rxState != rxDone {
			b, err := g.readByte()
			if err != nil {
				return nil, err
			}

			switch g.rxState {
			case rxWaitStart:
				if b == '$' {
					g.rxState = rxData
				}
			case rxData:
				if b == '#' {
					g.rxState = rxSum0
				} else {
					g.rxPkt = append(g.rxPkt, b)
				}
			case rxSum0:
				g.rxSum[0] = b
				g.rxState = rxSum1
			case rxSum1:
				g.rxSum[1] = b
				g.rxState = rxDone
			}
		}

		g.log(3, "<- $%s#%s", g.rxPkt, g.rxSum[:])

		sum, err := strconv.ParseUint(string(g.rxSum[:]), 16, 8)
		if err != nil || byte(sum) != checksum(g.rxPkt) {
			if _, err := g.conn.Write([]byte{'-'}); err != nil {
				return nil, err
			}
			continue
		}

		if _, err := g.conn.Write([]byte{'+'}); err != nil {
			return nil, err
		}

		data, err := expandRLE(g.rxPkt)
		if err != nil {
			return nil, err
		}
		return unescape(data)
	}

	return nil, ErrorChecksum
}

// Exchange sends one request and returns the reply. "E NN" replies become
// a *RemoteError, an empty reply ErrorUnsupported.
func (g *GDB) Exchange(request []byte) ([]byte, error) {
	if d, ok := g.conn.(deadliner); ok && g.cfg.Timeout > 0 {
		d.SetDeadline(time.Now().Add(g.cfg.Timeout))
		defer d.SetDeadline(time.Time{})
	}

	if err := g.sendPacket(request); err != nil {
		return nil, err
	}

	reply, err := g.receivePacket()
	if err != nil {
		return nil, err
	}

	if len(reply) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrorUnsupported, requestName(request))
	}
	if len(reply) == 3 && reply[0] == 'E' {
		if code, err := hex.DecodeString(string(reply[1:])); err == nil {
			return nil, &RemoteError{Code: int(code[0]), Request: requestName(request)}
		}
	}

	return reply, nil
}

func (g *GDB) exchangeOK(request []byte) error {
	reply, err := g.Exchange(request)
	if err != nil {
		return err
	}
	if string(reply) != "OK" {
		return fmt.Errorf("%w: %s: %q", ErrorInvalidResponse, requestName(request), reply)
	}
	return nil
}

/* The command part of a request, without binary payload, for messages */
func requestName(request []byte) string {
	if i := bytes.IndexAny(request, ":,;"); i >= 0 && request[0] != 'q' {
		return string(request[:i])
	}
	if len(request) > 32 {
		return string(request[:32])
	}
	return string(request)
}
