// Package chipalgo maps chip identifiers to flash algorithms: the register
// paths and unlock keys needed to program a chip family, together with the
// register map those paths refer to.
package chipalgo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/GrappleRobotics/grapple-bundle/svd"
)

type OptionAlgo struct {
	UnlockKey []string `json:"unlock_key"`
	KeyPath   string   `json:"key_path"`
}

type FlashAlgo struct {
	UnlockKey []string   `json:"unlock_key"`
	KeyPath   string     `json:"key_path"`
	LockPath  string     `json:"lock_path"`
	Option    OptionAlgo `json:"option"`
}

// Algo is the descriptor of one chip family as stored in algo/*.json.
type Algo struct {
	Pattern string    `json:"pattern"`
	SVD     string    `json:"svd"`
	Flash   FlashAlgo `json:"flash"`
}

// Entry is a validated Algo with its compiled pattern, parsed keys and
// register map.
type Entry struct {
	Algo   Algo
	Device *svd.Device

	FlashKeys  []uint32
	OptionKeys []uint32

	pattern *regexp.Regexp
}

func NewEntry(algo Algo, dev *svd.Device) (*Entry, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: %s has no register map", ErrorMalformedDescriptor, algo.Pattern)
	}

	re, err := regexp.Compile(algo.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern: %v", ErrorMalformedDescriptor, err)
	}

	flashKeys, err := ParseKeys(algo.Flash.UnlockKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s flash keys: %v", ErrorMalformedDescriptor, algo.Pattern, err)
	}
	optionKeys, err := ParseKeys(algo.Flash.Option.UnlockKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s option keys: %v", ErrorMalformedDescriptor, algo.Pattern, err)
	}

	return &Entry{
		Algo:       algo,
		Device:     dev,
		FlashKeys:  flashKeys,
		OptionKeys: optionKeys,
		pattern:    re,
	}, nil
}

func (e *Entry) Match(chip string) bool {
	return e.pattern.MatchString(chip)
}

// ParseKey parses a base 16 key with an optional 0x prefix.
func ParseKey(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func ParseKeys(keys []string) ([]uint32, error) {
	out := make([]uint32, 0, len(keys))
	for _, k := range keys {
		v, err := ParseKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
