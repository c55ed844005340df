// Package bitmask loads and exposes the selection-bit registry: the
// named target classes of each survey generation, their bit positions,
// per-state priorities, desired observation counts, and the observing
// conditions under which they may be scheduled. The registry is static
// configuration, consumed read-only by the rest of the pipeline.
package bitmask

import (
	"fmt"
	"strings"
)

// Observation states a target can be in, as seen by the scheduler.
const (
	StateUnobs     = "UNOBS"
	StateDone      = "DONE"
	StateMoreZGood = "MORE_ZGOOD"
	StateMoreZWarn = "MORE_ZWARN"
)

// Priorities holds the scheduling priority of a selection bit for each
// observation state.
type Priorities struct {
	Unobs     int64 `toml:"UNOBS"`
	Done      int64 `toml:"DONE"`
	MoreZGood int64 `toml:"MORE_ZGOOD"`
	MoreZWarn int64 `toml:"MORE_ZWARN"`
}

// ForState returns the priority for a named observation state.
func (p *Priorities) ForState(state string) (int64, error) {
	switch state {
	case StateUnobs:
		return p.Unobs, nil
	case StateDone:
		return p.Done, nil
	case StateMoreZGood:
		return p.MoreZGood, nil
	case StateMoreZWarn:
		return p.MoreZWarn, nil
	}
	return 0, fmt.Errorf("bitmask: unknown observation state %q", state)
}

// Bit is one named selection class. Priorities is nil for bits that
// carry no scheduling configuration (calibration products, veto bits);
// absence is explicit rather than a lookup failure.
type Bit struct {
	Name       string
	Bit        uint
	Priorities *Priorities
	NumObs     int64
	ObsCon     string
}

// Value returns the bit as a mask word.
func (b *Bit) Value() uint64 {
	return 1 << b.Bit
}

// Mask is an ordered collection of selection bits for one
// classification column.
type Mask struct {
	Name   string
	bits   []Bit
	byName map[string]*Bit
}

func newMask(name string, bits []Bit) (*Mask, error) {
	m := &Mask{Name: name, bits: bits, byName: make(map[string]*Bit, len(bits))}
	seen := make(map[uint]string, len(bits))
	for i := range m.bits {
		b := &m.bits[i]
		if prev, ok := seen[b.Bit]; ok {
			return nil, fmt.Errorf("bitmask: mask %s: bit %d claimed by both %s and %s", name, b.Bit, prev, b.Name)
		}
		if _, ok := m.byName[b.Name]; ok {
			return nil, fmt.Errorf("bitmask: mask %s: duplicate bit name %s", name, b.Name)
		}
		seen[b.Bit] = b.Name
		m.byName[b.Name] = b
	}
	return m, nil
}

// Bits returns the bits in registry order.
func (m *Mask) Bits() []Bit {
	return m.bits
}

// Names returns every bit name in registry order.
func (m *Mask) Names() []string {
	names := make([]string, len(m.bits))
	for i := range m.bits {
		names[i] = m.bits[i].Name
	}
	return names
}

// Lookup returns the named bit, or an error when the registry does not
// define it.
func (m *Mask) Lookup(name string) (*Bit, error) {
	b, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("bitmask: mask %s has no bit named %s", m.Name, name)
	}
	return b, nil
}

// Value returns the mask word for a named bit and panics when the bit
// is not defined. It is intended for bit names that are structural to
// the pipeline (e.g. QSO, LRG) whose absence is a programming error.
func (m *Mask) Value(name string) uint64 {
	b, err := m.Lookup(name)
	if err != nil {
		panic(err)
	}
	return b.Value()
}

// Has reports whether the named bit exists in this mask.
func (m *Mask) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// SetNames returns the names of every bit set in word, joined by '+',
// for human-readable class reporting.
func (m *Mask) SetNames(word uint64) string {
	var names []string
	for i := range m.bits {
		if word&m.bits[i].Value() != 0 {
			names = append(names, m.bits[i].Name)
		}
	}
	return strings.Join(names, "+")
}

// ObsConditions maps observing-regime names to bit positions in the
// OBSCONDITIONS word.
type ObsConditions struct {
	bits  map[string]uint
	order []string
}

// Mask parses a '|'-separated expression of regime names into a
// combined OBSCONDITIONS word.
func (o *ObsConditions) Mask(expr string) (int64, error) {
	var out int64
	for _, name := range strings.Split(expr, "|") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		bit, ok := o.bits[name]
		if !ok {
			return 0, fmt.Errorf("bitmask: unknown observing condition %q", name)
		}
		out |= 1 << bit
	}
	return out, nil
}

// Names returns the defined regime names in registry order.
func (o *ObsConditions) Names() []string {
	return o.order
}
