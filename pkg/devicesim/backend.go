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

package devicesim

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"

	"github.com/binkynet/PinControl/model"
)

// Backend holds the pin states of a simulated device.
type Backend interface {
	// Pins returns the pins of the device
	Pins() model.PinSet
	// Get the state of the given pin
	Get(id model.PinID) (bool, error)
	// Set the state of the given pin
	Set(id model.PinID, value bool) error
}

type memoryBackend struct {
	mutex  sync.Mutex
	pins   model.PinSet
	states map[model.PinID]bool
}

// NewMemoryBackend creates a backend that keeps all pin states in memory.
// All pins start OFF.
func NewMemoryBackend(pins model.PinSet) Backend {
	return &memoryBackend{
		pins:   pins,
		states: make(map[model.PinID]bool),
	}
}

func (b *memoryBackend) Pins() model.PinSet { return b.pins }

func (b *memoryBackend) Get(id model.PinID) (bool, error) {
	if !b.pins.Contains(id) {
		return false, errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", id)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.states[id], nil
}

func (b *memoryBackend) Set(id model.PinID, value bool) error {
	if !b.pins.Contains(id) {
		return errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", id)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.states[id] = value
	return nil
}

// OutputPin is the interface satisfied by GPIO output pins.
type OutputPin interface {
	Write(bool) error
}

// OutputFunc initializes a GPIO output pin with the given pin number
// and initial logical value.
type OutputFunc func(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error)

// LinuxOutput opens a GPIO output pin of the local Linux host.
func LinuxOutput(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	return gpio.Output(pinNumber, activeLow, initialValue)
}

type gpioBackend struct {
	mutex  sync.Mutex
	pins   model.PinSet
	lines  map[model.PinID]OutputPin
	states map[model.PinID]bool
}

// NewGPIOBackend creates a backend that drives real GPIO lines.
// The mapping maps pin IDs to GPIO pin numbers. All lines start OFF.
// If output is nil, LinuxOutput is used.
func NewGPIOBackend(mapping map[model.PinID]int, activeLow bool, output OutputFunc) (Backend, error) {
	if output == nil {
		output = LinuxOutput
	}
	ids := make([]string, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, string(id))
	}
	pins, err := model.NewPinSet(sortPinIDs(ids)...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid GPIO mapping")
	}
	b := &gpioBackend{
		pins:   pins,
		lines:  make(map[model.PinID]OutputPin),
		states: make(map[model.PinID]bool),
	}
	for _, id := range pins.IDs() {
		num := mapping[id]
		line, err := output(num, activeLow, false)
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "Output[%s=%d] failed", id, num)
		}
		b.lines[id] = line
	}
	return b, nil
}

func (b *gpioBackend) Pins() model.PinSet { return b.pins }

// Close releases all GPIO lines that support closing.
func (b *gpioBackend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var firstErr error
	for id, line := range b.lines {
		if c, ok := line.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = errors.Wrapf(err, "Close[%s] failed", id)
			}
		}
		delete(b.lines, id)
	}
	return firstErr
}

func (b *gpioBackend) Get(id model.PinID) (bool, error) {
	if !b.pins.Contains(id) {
		return false, errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", id)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.states[id], nil
}

func (b *gpioBackend) Set(id model.PinID, value bool) error {
	if !b.pins.Contains(id) {
		return errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", id)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if err := b.lines[id].Write(value); err != nil {
		return errors.Wrapf(err, "Write[%s] failed", id)
	}
	b.states[id] = value
	return nil
}

// ParseGPIOMapping parses a mapping like "D0=16,D1=5".
func ParseGPIOMapping(s string) (map[model.PinID]int, error) {
	result := make(map[model.PinID]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Wrapf(model.ValidationError, "expected <pin>=<number>, got '%s'", part)
		}
		num, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || num < 0 {
			return nil, errors.Wrapf(model.ValidationError, "invalid GPIO number in '%s'", part)
		}
		result[model.NormalizePinID(kv[0])] = num
	}
	if len(result) == 0 {
		return nil, errors.Wrap(model.ValidationError, "GPIO mapping is empty")
	}
	return result, nil
}

// sortPinIDs sorts pin IDs by their name, with numeric suffixes
// in numeric order (D2 before D10).
func sortPinIDs(ids []string) []string {
	less := func(a, b string) bool {
		pa, na := splitNumericSuffix(a)
		pb, nb := splitNumericSuffix(b)
		if pa != pb {
			return pa < pb
		}
		if na != nb {
			return na < nb
		}
		return a < b
	}
	sort.Slice(ids, func(i, j int) bool { return less(ids[i], ids[j]) })
	return ids
}

func splitNumericSuffix(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, -1
	}
	n, _ := strconv.Atoi(s[i:])
	return s[:i], n
}
