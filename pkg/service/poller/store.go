// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package poller

import (
	"sync"
	"time"

	"github.com/mattn/go-pubsub"
	"github.com/pkg/errors"

	"github.com/binkynet/PinControl/model"
)

// Store holds the last known snapshot of the device.
// It is written by the poller (wholesale) and by optimistic updates
// (a single pin at a time). All access is synchronized.
type Store struct {
	mutex      sync.RWMutex
	pins       model.PinSet
	current    model.PinStateSnapshot
	generation uint64
	// Last value of each pin that was read from or accepted by the device
	confirmed map[model.PinID]model.PinState
	changes   *pubsub.PubSub

	subMutex    sync.Mutex
	subscribers map[uint64]func(model.PinStateSnapshot)
	lastSubID   uint64
}

// Provisional describes an optimistic single pin update that
// may have to be rolled back.
type Provisional struct {
	Pin   model.PinID
	Value model.PinState
	// Value shown before the update (possibly provisional itself)
	Previous model.PinState

	generation uint64
}

// NewStore creates a store with all given pins OFF and the device
// marked unreachable.
func NewStore(pins model.PinSet) *Store {
	s := &Store{
		pins:        pins,
		current:     model.NewEmptySnapshot(pins),
		changes:     pubsub.New(),
		subscribers: make(map[uint64]func(model.PinStateSnapshot)),
	}
	s.confirmed = s.current.Clone().States
	s.changes.Sub(s.dispatch)
	return s
}

// Pins returns the set of pins held in this store.
func (s *Store) Pins() model.PinSet {
	return s.pins
}

// Current returns a copy of the current snapshot.
func (s *Store) Current() model.PinStateSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current.Clone()
}

// Publish replaces all pin states with those of the given snapshot and
// marks the device reachable. Pins missing in the given snapshot are OFF.
func (s *Store) Publish(snap model.PinStateSnapshot) {
	states := make(map[model.PinID]model.PinState, s.pins.Len())
	for _, id := range s.pins.IDs() {
		states[id] = snap.States[id]
	}
	capturedAt := snap.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	s.mutex.Lock()
	prev := s.current
	s.current = model.PinStateSnapshot{
		States:     states,
		CapturedAt: capturedAt,
		Reachable:  true,
	}
	s.generation++
	s.confirmed = s.current.Clone().States
	next := s.current.Clone()
	s.mutex.Unlock()

	s.notify(prev, next)
}

// MarkUnreachable flags the device as unreachable, keeping the last known
// pin states.
func (s *Store) MarkUnreachable(reason string) {
	s.mutex.Lock()
	prev := s.current.Clone()
	s.current.Reachable = false
	s.current.LastError = reason
	next := s.current.Clone()
	s.mutex.Unlock()

	s.notify(prev, next)
}

// SetProvisional sets the state of a single pin ahead of confirmation
// by the device.
func (s *Store) SetProvisional(pin model.PinID, value model.PinState) (Provisional, error) {
	if !s.pins.Contains(pin) {
		return Provisional{}, errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", pin)
	}
	s.mutex.Lock()
	prev := s.current.Clone()
	p := Provisional{
		Pin:        pin,
		Value:      value,
		Previous:   s.current.States[pin],
		generation: s.generation,
	}
	s.current.States[pin] = value
	next := s.current.Clone()
	s.mutex.Unlock()

	s.notify(prev, next)
	return p, nil
}

// Confirm records that the device accepted the given provisional update.
// It is ignored when a newer snapshot has been published since.
func (s *Store) Confirm(p Provisional) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.generation == p.generation {
		s.confirmed[p.Pin] = p.Value
	}
}

// Rollback restores the last confirmed value of the pin of the given
// provisional update.
// Nothing is changed when a newer snapshot has been published since, or
// the pin has been changed again. Returns true if the value was restored.
func (s *Store) Rollback(p Provisional) bool {
	s.mutex.Lock()
	if s.generation != p.generation || s.current.States[p.Pin] != p.Value {
		s.mutex.Unlock()
		return false
	}
	prev := s.current.Clone()
	s.current.States[p.Pin] = s.confirmed[p.Pin]
	next := s.current.Clone()
	s.mutex.Unlock()

	s.notify(prev, next)
	return true
}

// Subscribe registers a callback that is invoked (asynchronously) with the
// new snapshot each time pin states or connectivity change.
// Call the returned function to unsubscribe.
func (s *Store) Subscribe(cb func(model.PinStateSnapshot)) func() {
	s.subMutex.Lock()
	s.lastSubID++
	id := s.lastSubID
	s.subscribers[id] = cb
	s.subMutex.Unlock()

	return func() {
		s.subMutex.Lock()
		defer s.subMutex.Unlock()
		delete(s.subscribers, id)
	}
}

// dispatch delivers a published snapshot to all subscribers.
func (s *Store) dispatch(snap model.PinStateSnapshot) {
	s.subMutex.Lock()
	cbs := make([]func(model.PinStateSnapshot), 0, len(s.subscribers))
	for _, cb := range s.subscribers {
		cbs = append(cbs, cb)
	}
	s.subMutex.Unlock()

	for _, cb := range cbs {
		cb(snap.Clone())
	}
}

// notify subscribers when the snapshot changed.
func (s *Store) notify(prev, next model.PinStateSnapshot) {
	if prev.Equal(next) {
		return
	}
	s.changes.Pub(next)
}
