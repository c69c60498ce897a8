package ramdisk

import (
	"fmt"
	"strings"

	"go4.org/bytereplacer"
)

// Direction selects whether replacements are applied or reverted.
type Direction int

// Replacement directions
const (
	ReplNormal Direction = iota
	ReplReverse
)

// Replacement swaps one byte string for another of the same length, so
// offsets inside the ramdisk archive stay valid.
type Replacement struct {
	From string
	To   string
}

// ParseReplacement parses a "from=to" pair.
func ParseReplacement(s string) (Replacement, error) {
	from, to, ok := strings.Cut(s, "=")
	if !ok {
		return Replacement{}, fmt.Errorf("replacement %q: missing '='", s)
	}
	r := Replacement{From: from, To: to}
	if err := r.validate(); err != nil {
		return Replacement{}, err
	}
	return r, nil
}

func (r Replacement) validate() error {
	if r.From == "" {
		return fmt.Errorf("replacement %q: empty pattern", r.From+"="+r.To)
	}
	if len(r.From) != len(r.To) {
		return fmt.Errorf("replacement length %d != %d, from %q to %q", len(r.From), len(r.To), r.From, r.To)
	}
	return nil
}

type replList struct {
	replacements []string
}

func newRepl(size int) *replList {
	return &replList{
		replacements: make([]string, 0, size*2),
	}
}

func (r *replList) add(repl Replacement, direction Direction) error {
	if err := repl.validate(); err != nil {
		return err
	}

	switch direction {
	case ReplNormal:
		r.replacements = append(r.replacements, repl.From, repl.To)
	case ReplReverse:
		r.replacements = append(r.replacements, repl.To, repl.From)
	default:
		return fmt.Errorf("unknown direction for replacement: %d", direction)
	}
	return nil
}

func (r *replList) create() *bytereplacer.Replacer {
	return bytereplacer.New(r.replacements...)
}

// Patch applies every replacement to the uncompressed ramdisk. The input
// slice may be modified.
func Patch(ramdisk []byte, repls []Replacement, dir Direction) ([]byte, error) {
	if len(repls) == 0 {
		return ramdisk, nil
	}

	r := newRepl(len(repls))
	for _, repl := range repls {
		if err := r.add(repl, dir); err != nil {
			return nil, err
		}
	}
	return r.create().Replace(ramdisk), nil
}
