package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/GrappleRobotics/grapple-bundle/bundle"
	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/GrappleRobotics/grapple-bundle/flash"
	"github.com/fatih/color"
)

type FlashCmd struct {
	Bundle   string `arg name:"bundle" type:"path" help:"Bundle to flash."`
	Chip     string `required help:"Chip on the target, for example STM32G474RE."`
	NoVerify bool   `optional help:"Skip reading back the flashed images."`

	Target Target `embed`
}

type actionPrinter struct {
	bold *color.Color
	ok   *color.Color
	fail *color.Color
}

func newActionPrinter() *actionPrinter {
	return &actionPrinter{
		bold: color.New(color.Bold),
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed),
	}
}

func (p *actionPrinter) VisitUnlockFlash(bundle.UnlockFlash) error {
	p.bold.Println("[x] UNLOCKING FLASH")
	return nil
}

func (p *actionPrinter) VisitLockFlash(bundle.LockFlash) error {
	p.bold.Println("[x] LOCKING FLASH")
	return nil
}

func (p *actionPrinter) VisitUnlockOptBytes(bundle.UnlockOptBytes) error {
	p.bold.Println("[x] UNLOCKING OPTION BYTES")
	return nil
}

func (p *actionPrinter) VisitFlashBootloader(bundle.FlashBootloader) error {
	p.bold.Println("[x] FLASHING BOOTLOADER")
	return nil
}

func (p *actionPrinter) VisitFlashFirmware(bundle.FlashFirmware) error {
	p.bold.Println("[x] FLASHING FIRMWARE")
	return nil
}

func (p *actionPrinter) VisitSetField(a bundle.SetField) error {
	p.bold.Printf("[x] SETTING FIELD %s = 0x%x\n", a.Path, a.Value)
	return nil
}

func (p *actionPrinter) event(ev flash.ActionEvent) {
	if !ev.Finished {
		ev.Action.Accept(p)
		return
	}

	if ev.Err != nil {
		p.fail.Println("... Failed!")
	} else {
		p.ok.Println("... Done!")
	}
}

/* Prints one line per phase, updated in place */
type progressPrinter struct {
	phase string
	total uint64
	done  uint64
}

func (p *progressPrinter) start(phase string, total uint64) {
	p.phase = phase
	p.total = total
	p.done = 0
	p.print()
}

func (p *progressPrinter) print() {
	if p.total == 0 {
		fmt.Printf("\r    %-10s", p.phase)
		return
	}
	fmt.Printf("\r    %-10s %8d / %8d bytes (%3d%%)", p.phase, p.done, p.total, p.done*100/p.total)
}

func (p *progressPrinter) event(ev dbghal.ProgressEvent) {
	switch ev.Kind {
	case dbghal.EraseStarted:
		p.start("Erasing", ev.Total)
	case dbghal.ProgramStarted:
		p.start("Writing", ev.Total)
	case dbghal.VerifyStarted:
		p.start("Verifying", ev.Total)
	case dbghal.EraseProgress, dbghal.ProgramProgress:
		p.done += ev.Size
		p.print()
	case dbghal.EraseFinished, dbghal.ProgramFinished, dbghal.VerifyFinished:
		p.done = p.total
		p.print()
		fmt.Println()
	case dbghal.EraseFailed, dbghal.ProgramFailed, dbghal.VerifyFailed:
		fmt.Println(" failed")
	}
}

func (f *FlashCmd) Run(c *Context) error {
	b, err := bundle.Open(f.Bundle)
	if err != nil {
		return err
	}
	defer b.Close()

	entry, err := c.lookup(f.Chip)
	if err != nil {
		return err
	}

	session, err := c.openSession(f.Target)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	actions := newActionPrinter()
	progress := &progressPrinter{}

	engine := flash.New(session, b, entry,
		flash.WithLogFunc(c.logFunc),
		flash.WithProgress(progress.event),
		flash.WithActionCallback(actions.event),
		flash.WithVerify(!f.NoVerify))

	return engine.Run(ctx)
}
