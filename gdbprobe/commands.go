package gdbprobe

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

/* Room for "$", "#xx" and the command header of a memory write */
const packetOverhead = 32

// New performs the qSupported handshake on conn and asks for the halt
// reason, which some servers require before memory can be accessed.
func New(conn io.ReadWriter, cfg GDBConfig) (*GDB, error) {
	if cfg.MaxWriteSize <= 0 {
		cfg.MaxWriteSize = 1024
	}
	if cfg.MaxReadSize <= 0 {
		cfg.MaxReadSize = 1024
	}

	g := &GDB{
		conn:     conn,
		cfg:      cfg,
		features: make(map[string]string),
	}

	reply, err := g.Exchange([]byte("qSupported:multiprocess-;swbreak+;hwbreak+;qRelocInsn-"))
	if err != nil {
		return nil, fmt.Errorf("qSupported: %w", err)
	}
	for _, f := range strings.Split(string(reply), ";") {
		switch {
		case strings.HasSuffix(f, "+"):
			g.features[strings.TrimSuffix(f, "+")] = "+"
		case strings.HasSuffix(f, "-"):
			g.features[strings.TrimSuffix(f, "-")] = "-"
		case strings.Contains(f, "="):
			k, v, _ := strings.Cut(f, "=")
			g.features[k] = v
		}
	}

	if ps, ok := g.features["PacketSize"]; ok {
		size, err := strconv.ParseUint(ps, 16, 32)
		if err != nil || size <= packetOverhead {
			return nil, fmt.Errorf("%w: PacketSize=%s", ErrorInvalidResponse, ps)
		}
		g.packetSize = int(size)

		/* Memory is transferred as hex, two characters per byte */
		limit := (g.packetSize - packetOverhead) / 2
		if cfg.MaxWriteSize > limit {
			g.cfg.MaxWriteSize = limit
		}
		if cfg.MaxReadSize > limit {
			g.cfg.MaxReadSize = limit
		}
	}
	g.log(2, "GDB server features: %s", reply)

	if _, err := g.Exchange([]byte("?")); err != nil {
		return nil, fmt.Errorf("halt reason: %w", err)
	}

	return g, nil
}

func (g *GDB) Supports(feature string) bool {
	return g.features[feature] == "+"
}

// ReadMemory reads up to MaxReadSize bytes. Servers may return fewer bytes
// than requested.
func (g *GDB) ReadMemory(addr uint64, buf []byte) (int, error) {
	if len(buf) > g.cfg.MaxReadSize {
		buf = buf[:g.cfg.MaxReadSize]
	}

	reply, err := g.Exchange([]byte(fmt.Sprintf("m%x,%x", addr, len(buf))))
	if err != nil {
		return 0, err
	}

	if len(reply)%2 != 0 || len(reply)/2 > len(buf) {
		return 0, fmt.Errorf("%w: memory read of %d bytes returned %d characters", ErrorInvalidResponse, len(buf), len(reply))
	}
	return hex.Decode(buf, reply)
}

// WriteMemory writes up to MaxWriteSize bytes and returns how many were
// written.
func (g *GDB) WriteMemory(addr uint64, data []byte) (int, error) {
	if len(data) > g.cfg.MaxWriteSize {
		data = data[:g.cfg.MaxWriteSize]
	}

	req := []byte(fmt.Sprintf("M%x,%x:", addr, len(data)))
	req = append(req, hex.EncodeToString(data)...)
	if err := g.exchangeOK(req); err != nil {
		return 0, err
	}
	return len(data), nil
}

type MemoryMapEntry struct {
	Type      string
	Start     uint64
	Length    uint64
	BlockSize uint64
}

type xmlMemoryMap struct {
	Memory []struct {
		Type       string `xml:"type,attr"`
		Start      string `xml:"start,attr"`
		Length     string `xml:"length,attr"`
		Properties []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"property"`
	} `xml:"memory"`
}

func parseMemoryMap(doc []byte) ([]MemoryMapEntry, error) {
	var m xmlMemoryMap
	if err := xml.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("%w: memory map: %v", ErrorInvalidResponse, err)
	}

	num := func(s string) (uint64, error) {
		return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	}

	var out []MemoryMapEntry
	for _, mem := range m.Memory {
		start, err := num(mem.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: memory map start %q", ErrorInvalidResponse, mem.Start)
		}
		length, err := num(mem.Length)
		if err != nil {
			return nil, fmt.Errorf("%w: memory map length %q", ErrorInvalidResponse, mem.Length)
		}

		e := MemoryMapEntry{
			Type:   mem.Type,
			Start:  start,
			Length: length,
		}
		for _, p := range mem.Properties {
			if p.Name != "blocksize" {
				continue
			}
			if e.BlockSize, err = num(p.Value); err != nil {
				return nil, fmt.Errorf("%w: memory map blocksize %q", ErrorInvalidResponse, p.Value)
			}
		}
		out = append(out, e)
	}

	return out, nil
}

// MemoryMap reads the target memory map through qXfer:memory-map:read.
func (g *GDB) MemoryMap() ([]MemoryMapEntry, error) {
	if !g.Supports("qXfer:memory-map:read") {
		return nil, fmt.Errorf("%w: qXfer:memory-map:read", ErrorUnsupported)
	}

	chunk := g.cfg.MaxReadSize * 2
	var doc bytes.Buffer
	for {
		reply, err := g.Exchange([]byte(fmt.Sprintf("qXfer:memory-map:read::%x,%x", doc.Len(), chunk)))
		if err != nil {
			return nil, err
		}

		switch reply[0] {
		case 'm':
			doc.Write(reply[1:])
			if len(reply) == 1 {
				return nil, fmt.Errorf("%w: empty memory map chunk", ErrorInvalidResponse)
			}
			continue
		case 'l':
			doc.Write(reply[1:])
		default:
			return nil, fmt.Errorf("%w: memory map reply %q", ErrorInvalidResponse, reply[:1])
		}
		break
	}

	return parseMemoryMap(doc.Bytes())
}

func (g *GDB) FlashErase(addr, length uint64) error {
	return g.exchangeOK([]byte(fmt.Sprintf("vFlashErase:%x,%x", addr, length)))
}

// FlashWrite sends as much of data as fits in one packet and returns the
// number of bytes sent.
func (g *GDB) FlashWrite(addr uint64, data []byte) (int, error) {
	req := []byte(fmt.Sprintf("vFlashWrite:%x:", addr))

	/* Escaping can double the payload, so count escaped bytes */
	limit := g.cfg.MaxWriteSize * 2
	n := 0
	size := 0
	for n < len(data) {
		c := 1
		switch data[n] {
		case '$', '#', '}', '*':
			c = 2
		}
		if size+c > limit {
			break
		}
		size += c
		n++
	}

	req = append(req, escape(data[:n])...)
	if err := g.exchangeOK(req); err != nil {
		return 0, err
	}
	return n, nil
}

func (g *GDB) FlashDone() error {
	return g.exchangeOK([]byte("vFlashDone"))
}

// Detach resumes the target and ends the debug session.
func (g *GDB) Detach() error {
	return g.exchangeOK([]byte("D"))
}
