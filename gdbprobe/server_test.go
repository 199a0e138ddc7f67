package gdbprobe

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/GrappleRobotics/grapple-bundle/dbghal/dbgtest"
)

const testMemoryMap = `<?xml version="1.0"?>
<memory-map>
<memory type="ram" start="0x20000000" length="0x8000"/>
<memory type="flash" start="0x08000000" length="0x20000">
<property name="blocksize">0x800</property>
</memory>
</memory-map>`

/* fakeServer answers the subset of the remote protocol used by Session,
 * backed by an in-memory flash. */
type fakeServer struct {
	Flash    *dbgtest.Flash
	Features string
	MemMap   string

	/* Reply with a bad checksum this many times */
	Corrupt int

	/* Run length encode memory reads */
	RLE bool

	mutex    sync.Mutex
	requests []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		Flash: dbgtest.NewFlash(dbghal.FlashRegion{
			Start:     0x08000000,
			Length:    0x20000,
			BlockSize: 0x800,
		}),
		Features: "PacketSize=100;qXfer:memory-map:read+;multiprocess-",
		MemMap:   testMemoryMap,
	}
}

func (s *fakeServer) Requests() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.requests...)
}

// dial starts the server on one end of a pipe and connects a Session to
// the other.
func (s *fakeServer) dial(t *testing.T, cfg GDBConfig) *Session {
	t.Helper()

	client, server := net.Pipe()
	go s.serve(server)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	sess, err := NewSession(client, cfg)
	if err != nil {
		t.Fatalf("NewSession(): %v", err)
	}
	return sess
}

func (s *fakeServer) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		pkt, err := s.readPacket(r, conn)
		if err != nil {
			return
		}

		s.mutex.Lock()
		s.requests = append(s.requests, requestName(pkt))
		s.mutex.Unlock()

		if err := s.send(r, conn, s.handle(pkt)); err != nil {
			return
		}
	}
}

func (s *fakeServer) readPacket(r *bufio.Reader, conn net.Conn) ([]byte, error) {
	for {
		if _, err := r.ReadBytes('$'); err != nil {
			return nil, err
		}
		pkt, err := r.ReadBytes('#')
		if err != nil {
			return nil, err
		}
		pkt = pkt[:len(pkt)-1]

		var sum [2]byte
		if _, err := r.Read(sum[:1]); err != nil {
			return nil, err
		}
		if _, err := r.Read(sum[1:]); err != nil {
			return nil, err
		}

		if fmt.Sprintf("%02x", checksum(pkt)) != string(sum[:]) {
			if _, err := conn.Write([]byte{'-'}); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := conn.Write([]byte{'+'}); err != nil {
			return nil, err
		}
		return pkt, nil
	}
}

func (s *fakeServer) send(r *bufio.Reader, conn net.Conn, reply []byte) error {
	for {
		sum := checksum(reply)
		if s.Corrupt > 0 {
			s.Corrupt--
			sum++
		}

		if _, err := conn.Write([]byte(fmt.Sprintf("$%s#%02x", reply, sum))); err != nil {
			return err
		}

		ack, err := r.ReadByte()
		if err != nil {
			return err
		}
		if ack == '+' {
			return nil
		}
	}
}

func parseHexPair(s string) (uint64, uint64, error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("no comma in %q", s)
	}
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseUint(b, 16, 64)
	return x, y, err
}

/* Repeats are capped so the count character is never '#' or '$' */
func encodeRLE(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); {
		c := data[i]
		j := i
		for j < len(data) && data[j] == c {
			j++
		}

		for left := j - i; left > 0; {
			out = append(out, c)
			left--

			k := left
			if k > 97 {
				k = 97
			}
			if k == 6 || k == 7 {
				k = 5
			}
			if k >= 3 {
				out = append(out, '*', byte(k+29))
				left -= k
			}
		}
		i = j
	}
	return out
}

func (s *fakeServer) handle(pkt []byte) []byte {
	req := string(pkt)

	switch {
	case strings.HasPrefix(req, "qSupported"):
		return []byte(s.Features)

	case req == "?":
		return []byte("S05")

	case strings.HasPrefix(req, "qXfer:memory-map:read::"):
		if !strings.Contains(s.Features, "qXfer:memory-map:read+") {
			return nil
		}
		off, n, err := parseHexPair(strings.TrimPrefix(req, "qXfer:memory-map:read::"))
		if err != nil {
			return []byte("E01")
		}
		if off >= uint64(len(s.MemMap)) {
			return []byte("l")
		}
		end := off + n
		if end >= uint64(len(s.MemMap)) {
			return []byte("l" + s.MemMap[off:])
		}
		return []byte("m" + s.MemMap[off:end])

	case strings.HasPrefix(req, "m"):
		addr, n, err := parseHexPair(req[1:])
		if err != nil {
			return []byte("E01")
		}
		if addr >= 0xF0000000 {
			return []byte("E0E")
		}
		reply := []byte(hex.EncodeToString(s.Flash.Mem.Bytes(addr, int(n))))
		if s.RLE {
			reply = encodeRLE(reply)
		}
		return reply

	case strings.HasPrefix(req, "M"):
		head, data, _ := strings.Cut(req[1:], ":")
		addr, _, err := parseHexPair(head)
		if err != nil {
			return []byte("E01")
		}
		raw, err := hex.DecodeString(data)
		if err != nil {
			return []byte("E01")
		}
		s.Flash.Mem.Load(addr, raw)
		return []byte("OK")

	case strings.HasPrefix(req, "vFlashErase:"):
		addr, n, err := parseHexPair(strings.TrimPrefix(req, "vFlashErase:"))
		if err != nil {
			return []byte("E01")
		}
		if err := s.Flash.EraseFlash(addr, n); err != nil {
			return []byte("E02")
		}
		return []byte("OK")

	case strings.HasPrefix(req, "vFlashWrite:"):
		head, data, _ := strings.Cut(req[len("vFlashWrite:"):], ":")
		addr, err := strconv.ParseUint(head, 16, 64)
		if err != nil {
			return []byte("E01")
		}
		raw, err := unescape([]byte(data))
		if err != nil {
			return []byte("E01")
		}
		if n, err := s.Flash.WriteFlash(addr, raw); err != nil || n != len(raw) {
			return []byte("E03")
		}
		return []byte("OK")

	case req == "vFlashDone":
		s.Flash.CommitFlash()
		return []byte("OK")

	case req == "D":
		return []byte("OK")
	}

	return nil
}
