package gdbprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/cenkalti/backoff/v4"
)

// Session implements dbghal.Session on a GDB server connection.
type Session struct {
	gdb    *GDB
	closer io.Closer

	memMap []MemoryMapEntry
	held   bool
	closed bool
}

var _ dbghal.Session = (*Session)(nil)
var _ dbghal.FlashDevice = (*Session)(nil)

// NewSession wraps conn, which is closed by Close when it implements
// io.Closer.
func NewSession(conn io.ReadWriter, cfg GDBConfig) (*Session, error) {
	g, err := New(conn, cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{gdb: g}
	if c, ok := conn.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Dial connects to a GDB server at addr ("host:port"). Refused connections
// are retried a few times since servers are often started alongside.
func Dial(ctx context.Context, addr string, cfg GDBConfig) (*Session, error) {
	var d net.Dialer
	var conn net.Conn

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second

	op := func() error {
		var err error
		conn, err = d.DialContext(ctx, "tcp", addr)
		return err
	}
	notify := func(err error, next time.Duration) {
		if cfg.LogFunc != nil {
			cfg.LogFunc(2, "Connecting to %s failed (%v), retrying in %v", addr, err, next)
		}
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	s, err := NewSession(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) GDB() *GDB {
	return s.gdb
}

func (s *Session) memoryMap() ([]MemoryMapEntry, error) {
	if s.memMap == nil {
		m, err := s.gdb.MemoryMap()
		if err != nil {
			return nil, err
		}
		s.memMap = m
	}
	return s.memMap, nil
}

func (s *Session) Core(index int) (dbghal.Core, error) {
	if s.closed {
		return nil, net.ErrClosed
	}
	if index != 0 {
		return nil, fmt.Errorf("gdbprobe: no core %d", index)
	}
	if s.held {
		return nil, ErrorCoreHeld
	}

	s.held = true
	return &core{s: s}, nil
}

func (s *Session) Download(image []byte, opts dbghal.DownloadOptions) error {
	if s.held {
		return ErrorCoreHeld
	}
	return dbghal.ProgramImage(s, image, opts)
}

// Regions lists the target memory map as windows named after their type.
func (s *Session) Regions() ([]dbghal.MemoryRegion, error) {
	m, err := s.memoryMap()
	if err != nil {
		return nil, err
	}

	count := make(map[string]int)
	var out []dbghal.MemoryRegion
	for _, e := range m {
		name := fmt.Sprintf("%s%d", e.Type, count[e.Type])
		count[e.Type]++
		out = append(out, dbghal.WrapPartial(name, s.Memory(), e.Start, e.Length))
	}
	return out, nil
}

func (s *Session) FlashRegions() ([]dbghal.FlashRegion, error) {
	m, err := s.memoryMap()
	if errors.Is(err, ErrorUnsupported) {
		return nil, fmt.Errorf("%w: server has no memory map", ErrorNoFlash)
	} else if err != nil {
		return nil, err
	}

	var out []dbghal.FlashRegion
	for _, e := range m {
		if e.Type == "flash" {
			out = append(out, dbghal.FlashRegion{
				Start:     e.Start,
				Length:    e.Length,
				BlockSize: e.BlockSize,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrorNoFlash
	}
	return out, nil
}

func (s *Session) EraseFlash(addr, length uint64) error {
	return s.gdb.FlashErase(addr, length)
}

func (s *Session) WriteFlash(addr uint64, data []byte) (int, error) {
	return s.gdb.FlashWrite(addr, data)
}

func (s *Session) CommitFlash() error {
	return s.gdb.FlashDone()
}

func (s *Session) Memory() dbghal.MemoryRegion {
	return gdbMemory{g: s.gdb}
}

// Close detaches from the target, letting it run, and closes the
// connection.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.gdb.Detach()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type core struct {
	s        *Session
	released bool
}

func (c *core) Memory() dbghal.MemoryRegion {
	if c.released {
		return releasedMemory{}
	}
	return dbghal.WrapCompleteIO(c.s.Memory())
}

func (c *core) Release() error {
	if !c.released {
		c.released = true
		c.s.held = false
	}
	return nil
}

type gdbMemory struct {
	g *GDB
}

func (m gdbMemory) GetName() string {
	return "gdb"
}

func (m gdbMemory) GetLength() uint64 {
	return 1 << 32
}

func (m gdbMemory) GetAlignment() int {
	return 1
}

func (m gdbMemory) GetParent() (dbghal.MemoryRegion, uint64) {
	return nil, 0
}

func (m gdbMemory) Access(write bool, addr uint64, buf []byte) (int, error) {
	if write {
		return m.g.WriteMemory(addr, buf)
	}
	return m.g.ReadMemory(addr, buf)
}

type releasedMemory struct {
	gdbMemory
}

func (releasedMemory) Access(write bool, addr uint64, buf []byte) (int, error) {
	return 0, dbghal.ErrorCoreReleased
}
