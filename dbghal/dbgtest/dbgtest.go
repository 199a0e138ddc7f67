// Package dbgtest provides an in-memory debug probe for tests: sparse target
// memory, a flash device on top of it and a session handing out one core at
// a time.
package dbgtest

import (
	"errors"
	"fmt"

	"github.com/GrappleRobotics/grapple-bundle/dbghal"
)

var ErrorCoreHeld = errors.New("Core is already held")

type Access struct {
	Write bool
	Addr  uint64
	Data  []byte
}

// Memory is a sparse byte addressed memory. Unwritten bytes read as Fill.
type Memory struct {
	Fill        byte
	MaxTransfer int

	/* Accesses made through Access, in order */
	Log []Access

	/* Returned by every Access when set */
	Err error

	data map[uint64]byte
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[uint64]byte),
	}
}

func (m *Memory) GetName() string {
	return "mem"
}

func (m *Memory) GetLength() uint64 {
	return 1 << 32
}

func (m *Memory) GetAlignment() int {
	return 1
}

func (m *Memory) GetParent() (dbghal.MemoryRegion, uint64) {
	return nil, 0
}

func (m *Memory) Access(write bool, addr uint64, buf []byte) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	if m.MaxTransfer > 0 && len(buf) > m.MaxTransfer {
		buf = buf[:m.MaxTransfer]
	}

	m.Log = append(m.Log, Access{Write: write, Addr: addr, Data: append([]byte(nil), buf...)})
	if write {
		m.Load(addr, buf)
	} else {
		copy(buf, m.Bytes(addr, len(buf)))
	}
	return len(buf), nil
}

func (m *Memory) Load(addr uint64, data []byte) {
	for i, b := range data {
		m.data[addr+uint64(i)] = b
	}
}

func (m *Memory) Bytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		b, ok := m.data[addr+uint64(i)]
		if !ok {
			b = m.Fill
		}
		out[i] = b
	}
	return out
}

func (m *Memory) Word(addr uint64) uint32 {
	b := m.Bytes(addr, 4)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (m *Memory) SetWord(addr uint64, v uint32) {
	m.Load(addr, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// Writes returns the word writes made through Access as address/value
// pairs.
func (m *Memory) Writes() [][2]uint64 {
	var out [][2]uint64
	for _, a := range m.Log {
		if a.Write && len(a.Data) == 4 {
			v := uint64(a.Data[0]) | uint64(a.Data[1])<<8 | uint64(a.Data[2])<<16 | uint64(a.Data[3])<<24
			out = append(out, [2]uint64{a.Addr, v})
		}
	}
	return out
}

// Flash implements dbghal.FlashDevice. Erased bytes read as 0xFF.
type Flash struct {
	Mem *Memory

	Regions  []dbghal.FlashRegion
	MaxWrite int

	Erased    [][2]uint64
	Committed int

	EraseErr error
	WriteErr error

	/* Corrupt flips the first programmed byte, to fail verification */
	Corrupt bool
}

func NewFlash(regions ...dbghal.FlashRegion) *Flash {
	return &Flash{
		Mem:     NewMemory(),
		Regions: regions,
	}
}

func (f *Flash) FlashRegions() ([]dbghal.FlashRegion, error) {
	return f.Regions, nil
}

func (f *Flash) EraseFlash(addr, length uint64) error {
	if f.EraseErr != nil {
		return f.EraseErr
	}
	f.Erased = append(f.Erased, [2]uint64{addr, length})
	for i := uint64(0); i < length; i++ {
		f.Mem.data[addr+i] = 0xFF
	}
	return nil
}

func (f *Flash) WriteFlash(addr uint64, data []byte) (int, error) {
	if f.WriteErr != nil {
		return 0, f.WriteErr
	}
	if f.MaxWrite > 0 && len(data) > f.MaxWrite {
		data = data[:f.MaxWrite]
	}
	for i, b := range data {
		if f.Mem.data[addr+uint64(i)] != 0xFF {
			return i, fmt.Errorf("dbgtest: 0x%08x written without erase", addr+uint64(i))
		}
		f.Mem.data[addr+uint64(i)] = b
	}
	if f.Corrupt {
		f.Mem.data[addr] ^= 0xFF
		f.Corrupt = false
	}
	return len(data), nil
}

func (f *Flash) CommitFlash() error {
	f.Committed++
	return nil
}

func (f *Flash) Memory() dbghal.MemoryRegion {
	return f.Mem
}

// Session implements dbghal.Session on top of a Flash. Events records
// "core", "release" and "download" in call order.
type Session struct {
	Flash *Flash

	Events    []string
	Downloads [][]byte
	Options   []dbghal.DownloadOptions

	DownloadErr error

	held   bool
	closed bool
}

func NewSession(flash *Flash) *Session {
	return &Session{
		Flash: flash,
	}
}

func (s *Session) Core(index int) (dbghal.Core, error) {
	if s.held {
		return nil, ErrorCoreHeld
	}
	if index != 0 {
		return nil, fmt.Errorf("dbgtest: no core %d", index)
	}
	s.held = true
	s.Events = append(s.Events, "core")
	return &core{s: s}, nil
}

func (s *Session) Held() bool {
	return s.held
}

func (s *Session) Download(image []byte, opts dbghal.DownloadOptions) error {
	if s.held {
		return ErrorCoreHeld
	}
	s.Events = append(s.Events, "download")
	s.Downloads = append(s.Downloads, image)
	s.Options = append(s.Options, opts)
	if s.DownloadErr != nil {
		return s.DownloadErr
	}
	return dbghal.ProgramImage(s.Flash, image, opts)
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	return s.closed
}

type core struct {
	s        *Session
	released bool
}

func (c *core) Memory() dbghal.MemoryRegion {
	if c.released {
		return releasedMemory{}
	}
	return c.s.Flash.Mem
}

func (c *core) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.s.held = false
	c.s.Events = append(c.s.Events, "release")
	return nil
}

type releasedMemory struct{}

func (releasedMemory) GetName() string {
	return "released"
}

func (releasedMemory) GetLength() uint64 {
	return 0
}

func (releasedMemory) GetAlignment() int {
	return 1
}

func (releasedMemory) GetParent() (dbghal.MemoryRegion, uint64) {
	return nil, 0
}

func (releasedMemory) Access(write bool, addr uint64, buf []byte) (int, error) {
	return 0, dbghal.ErrorCoreReleased
}
