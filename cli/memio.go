package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/inancgumus/screen"
)

type ListRegionsCmd struct {
	Target Target `embed`
}

func (l *ListRegionsCmd) Run(c *Context) error {
	session, err := c.openSession(l.Target)
	if err != nil {
		return err
	}
	defer session.Close()

	regions, err := session.Regions()
	if err != nil {
		return err
	}

	fmt.Printf("Region       |     Length | Parent\n")

	for _, m := range regions {
		parent, offset := dbghal.RecursiveGetParentAddress(m, 0)
		fmt.Printf("%-13s| %10d |", m.GetName(), m.GetLength())
		if parent != m {
			fmt.Printf(" %s.%08X", parent.GetName(), offset)
		}
		fmt.Printf("\n")
	}
	return nil
}

type DumpCmd struct {
	Loop     int    `optional help:"0=Perform once, 1=Mark changes since start, 2=Mark changes since previous iteration."`
	Filename string `optional help:"File to write dump to."`

	Addr   uint64 `arg name:"addr" help:"Address to read from." type:"int"`
	Amount int    `arg name:"amount" help:"Number of bytes to read." optional default:"256" type:"int"`

	Target Target `embed`
}

func (l *DumpCmd) Run(c *Context) error {
	if l.Loop < 0 || l.Loop > 2 {
		return errors.New("Loop flag out of range")
	}
	if l.Amount <= 0 {
		return errors.New("Amount must be positive")
	}

	session, err := c.openSession(l.Target)
	if err != nil {
		return err
	}
	defer session.Close()

	core, err := session.Core(0)
	if err != nil {
		return err
	}
	defer core.Release()
	region := core.Memory()

	var oldBuf []byte
	var mark []bool
	for {
		startTime := time.Now()
		if l.Loop == 2 || mark == nil {
			mark = make([]bool, l.Amount)
		}

		buf := make([]byte, l.Amount)
		n, err := region.Access(false, l.Addr, buf)
		if err != nil {
			return fmt.Errorf("Read error: %s", err.Error())
		}
		buf = buf[:n]

		if l.Filename != "" {
			return os.WriteFile(l.Filename, buf, 0644)
		}

		if l.Amount == 1 {
			if len(buf) < 1 {
				return errors.New("0 bytes returned")
			}
			fmt.Printf("0x%02x\n", buf[0])
		} else {
			if l.Loop != 0 {
				screen.Clear()
				screen.MoveTopLeft()
				if oldBuf != nil {
					for i, m := range oldBuf {
						if i < len(buf) && m != buf[i] {
							mark[i] = true
						}
					}
				}
			}
			fmt.Println(hexdump(l.Addr, buf, mark[:len(buf)]))
		}

		oldBuf = buf

		if l.Loop == 0 {
			break
		}
		d := time.Since(startTime)
		td := 200 * time.Millisecond
		if d < td {
			time.Sleep(td - d)
		}
	}

	return nil
}

type Field struct {
	Chip string `required help:"Chip on the target, for example STM32G474RE."`
	Path string `arg name:"path" help:"Field to access, PERIPHERAL/REGISTER/FIELD."`
}

type ReadFieldCmd struct {
	Field  Field  `embed`
	Target Target `embed`
}

func (r *ReadFieldCmd) Run(c *Context) error {
	entry, err := c.lookup(r.Field.Chip)
	if err != nil {
		return err
	}
	ref, err := entry.Device.Resolve(r.Field.Path)
	if err != nil {
		return err
	}

	session, err := c.openSession(r.Target)
	if err != nil {
		return err
	}
	defer session.Close()

	core, err := session.Core(0)
	if err != nil {
		return err
	}
	defer core.Release()

	value, err := dbghal.ReadField(core, ref)
	if err != nil {
		return err
	}

	fmt.Printf("%s @ %s = 0x%x\n", r.Field.Path, ref, value)
	return nil
}

type WriteFieldCmd struct {
	Field  Field  `embed`
	Value  uint32 `arg name:"value" help:"Value to write." type:"int"`
	Target Target `embed`
}

func (w *WriteFieldCmd) Run(c *Context) error {
	entry, err := c.lookup(w.Field.Chip)
	if err != nil {
		return err
	}
	ref, err := entry.Device.Resolve(w.Field.Path)
	if err != nil {
		return err
	}

	session, err := c.openSession(w.Target)
	if err != nil {
		return err
	}
	defer session.Close()

	core, err := session.Core(0)
	if err != nil {
		return err
	}
	defer core.Release()

	return dbghal.WriteField(core, ref, w.Value)
}
