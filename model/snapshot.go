package model

import (
	"time"
)

// PinStateSnapshot holds the last known state of all pins of the device.
type PinStateSnapshot struct {
	// State of every known pin
	States map[PinID]PinState `json:"states"`
	// Time the states were captured from the device.
	// Zero if the device has never been read.
	CapturedAt time.Time `json:"captured_at"`
	// Set if the last status request succeeded
	Reachable bool `json:"reachable"`
	// Description of the last failure (empty when reachable)
	LastError string `json:"last_error,omitempty"`
}

// NewEmptySnapshot returns a snapshot with all given pins OFF,
// marked unreachable.
func NewEmptySnapshot(pins PinSet) PinStateSnapshot {
	states := make(map[PinID]PinState, pins.Len())
	for _, id := range pins.IDs() {
		states[id] = Off
	}
	return PinStateSnapshot{States: states}
}

// Get returns the state of the given pin.
func (s PinStateSnapshot) Get(id PinID) PinState {
	return s.States[id]
}

// Clone returns a deep copy of the snapshot.
func (s PinStateSnapshot) Clone() PinStateSnapshot {
	result := s
	result.States = make(map[PinID]PinState, len(s.States))
	for k, v := range s.States {
		result.States[k] = v
	}
	return result
}

// Equal returns true if both snapshots describe the same pin states,
// connectivity and failure description. Capture time is not compared.
func (s PinStateSnapshot) Equal(other PinStateSnapshot) bool {
	if s.Reachable != other.Reachable || s.LastError != other.LastError || len(s.States) != len(other.States) {
		return false
	}
	for k, v := range s.States {
		if ov, found := other.States[k]; !found || ov != v {
			return false
		}
	}
	return true
}
