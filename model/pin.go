package model

import (
	"strings"

	"github.com/pkg/errors"
)

// PinID identifies a single controllable digital line of the remote device (e.g. "D3").
type PinID string

// NormalizePinID trims the given string and converts it to upper case.
func NormalizePinID(s string) PinID {
	return PinID(strings.ToUpper(strings.TrimSpace(s)))
}

// PinState is the ON/OFF state of a pin.
type PinState bool

const (
	Off PinState = false
	On  PinState = true
)

// Token returns the lowercase token used in device URLs ("on" / "off").
func (s PinState) Token() string {
	if s {
		return "on"
	}
	return "off"
}

// String returns "ON" or "OFF".
func (s PinState) String() string {
	if s {
		return "ON"
	}
	return "OFF"
}

// ParsePinState parses a state token.
// Only "on" and "off" (case insensitive) are accepted.
func ParsePinState(s string) (PinState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return On, nil
	case "off":
		return Off, nil
	}
	return Off, errors.Wrapf(InvalidStateError, "state must be 'on' or 'off', got '%s'", s)
}

// PinSet is the ordered set of pins known at startup.
type PinSet struct {
	ids   []PinID
	index map[PinID]struct{}
}

// NewPinSet creates a set from the given identifiers.
// Identifiers are normalized; empty and duplicate identifiers are rejected.
func NewPinSet(ids ...string) (PinSet, error) {
	if len(ids) == 0 {
		return PinSet{}, errors.Wrap(ValidationError, "pin set is empty")
	}
	ps := PinSet{
		ids:   make([]PinID, 0, len(ids)),
		index: make(map[PinID]struct{}, len(ids)),
	}
	for _, raw := range ids {
		id := NormalizePinID(raw)
		if id == "" {
			return PinSet{}, errors.Wrap(ValidationError, "pin ID is empty")
		}
		if strings.ContainsAny(string(id), "/?#% ") {
			return PinSet{}, errors.Wrapf(ValidationError, "pin ID '%s' contains invalid characters", id)
		}
		if _, found := ps.index[id]; found {
			return PinSet{}, errors.Wrapf(ValidationError, "duplicate pin ID '%s'", id)
		}
		ps.ids = append(ps.ids, id)
		ps.index[id] = struct{}{}
	}
	return ps, nil
}

// MustNewPinSet is NewPinSet that panics on errors.
func MustNewPinSet(ids ...string) PinSet {
	ps, err := NewPinSet(ids...)
	if err != nil {
		panic(err)
	}
	return ps
}

// Contains returns true if the given pin is part of the set.
func (ps PinSet) Contains(id PinID) bool {
	_, found := ps.index[id]
	return found
}

// Lookup normalizes the given string and returns the pin if it is in the set.
func (ps PinSet) Lookup(s string) (PinID, error) {
	id := NormalizePinID(s)
	if !ps.Contains(id) {
		return id, errors.Wrapf(InvalidPinError, "unknown pin '%s'", s)
	}
	return id, nil
}

// IDs returns a copy of the pin identifiers in configured order.
func (ps PinSet) IDs() []PinID {
	return append([]PinID(nil), ps.ids...)
}

// Len returns the number of pins in the set.
func (ps PinSet) Len() int {
	return len(ps.ids)
}

// String returns a comma separated list of pins.
func (ps PinSet) String() string {
	parts := make([]string, 0, len(ps.ids))
	for _, id := range ps.ids {
		parts = append(parts, string(id))
	}
	return strings.Join(parts, ", ")
}
