// Package flash runs the flash procedure of a bundle against a debug probe
// session.
package flash

import (
	"context"
	"fmt"

	"github.com/GrappleRobotics/grapple-bundle/bundle"
	"github.com/GrappleRobotics/grapple-bundle/chipalgo"
	"github.com/GrappleRobotics/grapple-bundle/dbghal"
	"github.com/GrappleRobotics/grapple-bundle/svd"
)

// ActionError reports the procedure step that failed. Steps before Index
// have completed and are not rolled back.
type ActionError struct {
	Index  int
	Action bundle.Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, describe(e.Action), e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func describe(a bundle.Action) string {
	if s, ok := a.(fmt.Stringer); ok {
		return s.String()
	}
	return a.Name()
}

// ActionEvent is passed to the action callback before (Finished false) and
// after (Finished true) every step.
type ActionEvent struct {
	Index    int
	Action   bundle.Action
	Finished bool
	Err      error
}

type Option func(e *Engine)

func WithLogFunc(f dbghal.LogFunc) Option {
	return func(e *Engine) {
		e.logFunc = f
	}
}

func WithProgress(f dbghal.ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = f
	}
}

func WithActionCallback(f func(ActionEvent)) Option {
	return func(e *Engine) {
		e.onAction = f
	}
}

// WithVerify controls the readback after programming, it is on by default.
func WithVerify(verify bool) Option {
	return func(e *Engine) {
		e.verify = verify
	}
}

type Engine struct {
	session dbghal.Session
	bundle  *bundle.Bundle
	entry   *chipalgo.Entry

	logFunc  dbghal.LogFunc
	progress dbghal.ProgressFunc
	onAction func(ActionEvent)
	verify   bool

	core dbghal.Core
}

var _ bundle.ActionVisitor = (*Engine)(nil)

func New(session dbghal.Session, b *bundle.Bundle, entry *chipalgo.Entry, opts ...Option) *Engine {
	e := &Engine{
		session: session,
		bundle:  b,
		entry:   entry,
		verify:  true,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) log(level int, format string, param ...interface{}) {
	if e.logFunc != nil {
		e.logFunc(level, format, param...)
	}
}

func (e *Engine) event(ev ActionEvent) {
	if e.onAction != nil {
		e.onAction(ev)
	}
}

// Run executes the procedure in order and stops at the first failing step.
// The core is released when Run returns.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer func() {
		if rerr := e.releaseCore(); err == nil && rerr != nil {
			err = rerr
		}
	}()

	for i, a := range e.bundle.Procedure.Procedure {
		if err := ctx.Err(); err != nil {
			return &ActionError{Index: i, Action: a, Err: err}
		}

		e.log(2, "Running action %d: %s", i, describe(a))
		e.event(ActionEvent{Index: i, Action: a})

		err := a.Accept(e)
		e.event(ActionEvent{Index: i, Action: a, Finished: true, Err: err})
		if err != nil {
			return &ActionError{Index: i, Action: a, Err: err}
		}
	}

	return nil
}

func (e *Engine) acquireCore() (dbghal.Core, error) {
	if e.core == nil {
		c, err := e.session.Core(0)
		if err != nil {
			return nil, err
		}
		e.core = c
	}
	return e.core, nil
}

func (e *Engine) releaseCore() error {
	if e.core == nil {
		return nil
	}
	c := e.core
	e.core = nil
	return c.Release()
}

func (e *Engine) resolve(path string) (svd.FieldRef, error) {
	f, err := e.entry.Device.Resolve(path)
	if err != nil {
		return svd.FieldRef{}, err
	}
	e.log(3, "%s is %v", path, f)
	return f, nil
}

func (e *Engine) writeField(path string, value uint32) error {
	f, err := e.resolve(path)
	if err != nil {
		return err
	}
	core, err := e.acquireCore()
	if err != nil {
		return err
	}
	return dbghal.WriteField(core, f, value)
}

func (e *Engine) writeKeys(path string, keys []uint32) error {
	f, err := e.resolve(path)
	if err != nil {
		return err
	}
	core, err := e.acquireCore()
	if err != nil {
		return err
	}

	for _, k := range keys {
		if err := dbghal.WriteField(core, f, k); err != nil {
			return err
		}
	}
	return nil
}

/* Core access and bulk flashing share the probe, so the core is released
 * first. The next register action acquires it again. */
func (e *Engine) download(name string) error {
	if err := e.releaseCore(); err != nil {
		return err
	}

	image, err := e.bundle.ReadEntry(name)
	if err != nil {
		return err
	}

	e.log(1, "Downloading %s (%d bytes)", name, len(image))
	return e.session.Download(image, dbghal.DownloadOptions{
		Verify:   e.verify,
		Progress: e.progress,
		LogFunc:  e.logFunc,
	})
}

func (e *Engine) VisitUnlockFlash(bundle.UnlockFlash) error {
	return e.writeKeys(e.entry.Algo.Flash.KeyPath, e.entry.FlashKeys)
}

func (e *Engine) VisitLockFlash(bundle.LockFlash) error {
	return e.writeField(e.entry.Algo.Flash.LockPath, 1)
}

func (e *Engine) VisitUnlockOptBytes(bundle.UnlockOptBytes) error {
	return e.writeKeys(e.entry.Algo.Flash.Option.KeyPath, e.entry.OptionKeys)
}

func (e *Engine) VisitFlashBootloader(bundle.FlashBootloader) error {
	return e.download(e.bundle.Manifest.Bootloader)
}

func (e *Engine) VisitFlashFirmware(bundle.FlashFirmware) error {
	return e.download(e.bundle.Manifest.Firmware)
}

func (e *Engine) VisitSetField(a bundle.SetField) error {
	return e.writeField(a.Path, a.Value)
}
