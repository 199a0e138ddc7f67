package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action is one step of a flash procedure. The set of actions is closed,
// use an ActionVisitor to handle every variant.
type Action interface {
	Name() string
	Accept(v ActionVisitor) error

	isAction()
}

type ActionVisitor interface {
	VisitUnlockFlash(a UnlockFlash) error
	VisitLockFlash(a LockFlash) error
	VisitUnlockOptBytes(a UnlockOptBytes) error
	VisitFlashBootloader(a FlashBootloader) error
	VisitFlashFirmware(a FlashFirmware) error
	VisitSetField(a SetField) error
}

type UnlockFlash struct{}
type LockFlash struct{}
type UnlockOptBytes struct{}
type FlashBootloader struct{}
type FlashFirmware struct{}

// SetField writes Value into the register field at Path
// ("peripheral/register/field").
type SetField struct {
	Path  string
	Value uint32
}

func (UnlockFlash) Name() string     { return "unlock_flash" }
func (LockFlash) Name() string       { return "lock_flash" }
func (UnlockOptBytes) Name() string  { return "unlock_opt_bytes" }
func (FlashBootloader) Name() string { return "flash_bootloader" }
func (FlashFirmware) Name() string   { return "flash_firmware" }
func (SetField) Name() string        { return "set_field" }

func (a UnlockFlash) Accept(v ActionVisitor) error     { return v.VisitUnlockFlash(a) }
func (a LockFlash) Accept(v ActionVisitor) error       { return v.VisitLockFlash(a) }
func (a UnlockOptBytes) Accept(v ActionVisitor) error  { return v.VisitUnlockOptBytes(a) }
func (a FlashBootloader) Accept(v ActionVisitor) error { return v.VisitFlashBootloader(a) }
func (a FlashFirmware) Accept(v ActionVisitor) error   { return v.VisitFlashFirmware(a) }
func (a SetField) Accept(v ActionVisitor) error        { return v.VisitSetField(a) }

func (UnlockFlash) isAction()     {}
func (LockFlash) isAction()       {}
func (UnlockOptBytes) isAction()  {}
func (FlashBootloader) isAction() {}
func (FlashFirmware) isAction()   {}
func (SetField) isAction()        {}

func (a SetField) String() string {
	return fmt.Sprintf("set_field %s=0x%x", a.Path, a.Value)
}

/* Wire form of every action, "path" and "value" only for set_field */
type actionJSON struct {
	Action string  `json:"action"`
	Path   *string `json:"path,omitempty"`
	Value  *uint32 `json:"value,omitempty"`
}

func encodeAction(a Action) actionJSON {
	out := actionJSON{Action: a.Name()}
	if sf, ok := a.(SetField); ok {
		path, value := sf.Path, sf.Value
		out.Path = &path
		out.Value = &value
	}
	return out
}

func decodeAction(raw json.RawMessage) (Action, error) {
	var a actionJSON
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorMalformedConfig, err)
	}

	switch a.Action {
	case "unlock_flash":
		return UnlockFlash{}, nil
	case "lock_flash":
		return LockFlash{}, nil
	case "unlock_opt_bytes":
		return UnlockOptBytes{}, nil
	case "flash_bootloader":
		return FlashBootloader{}, nil
	case "flash_firmware":
		return FlashFirmware{}, nil
	case "set_field":
		if a.Path == nil || a.Value == nil {
			return nil, fmt.Errorf("%w: set_field needs path and value", ErrorMalformedConfig)
		}
		return SetField{Path: *a.Path, Value: *a.Value}, nil
	case "":
		return nil, fmt.Errorf("%w: action without \"action\" tag", ErrorMalformedConfig)
	}

	return nil, fmt.Errorf("%w: %q", ErrorUnknownAction, a.Action)
}

// Procedure is the flash config stored in a bundle: the actions to run, in
// order.
type Procedure struct {
	Procedure []Action
}

type procedureJSON struct {
	Procedure []json.RawMessage `json:"procedure"`
}

// DecodeProcedure parses a flash config. A missing "procedure" list is an
// empty procedure.
func DecodeProcedure(data []byte) (Procedure, error) {
	var raw procedureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Procedure{}, fmt.Errorf("%w: %v", ErrorMalformedConfig, err)
	}

	var p Procedure
	for i, r := range raw.Procedure {
		a, err := decodeAction(r)
		if err != nil {
			return Procedure{}, fmt.Errorf("action %d: %w", i, err)
		}
		p.Procedure = append(p.Procedure, a)
	}
	return p, nil
}

func (p Procedure) Marshal() ([]byte, error) {
	out := struct {
		Procedure []actionJSON `json:"procedure"`
	}{
		Procedure: make([]actionJSON, 0, len(p.Procedure)),
	}
	for _, a := range p.Procedure {
		out.Procedure = append(out.Procedure, encodeAction(a))
	}
	return marshalCompact(out)
}

func (p Procedure) MarshalJSON() ([]byte, error) {
	return p.Marshal()
}

func (p *Procedure) UnmarshalJSON(data []byte) error {
	dec, err := DecodeProcedure(bytes.TrimSpace(data))
	if err != nil {
		return err
	}
	*p = dec
	return nil
}
