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

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/poller"
)

const (
	SetPinToolName    = "set_pin"
	PinStatusToolName = "get_all_pin_status"
	setPinParameters  = `{
	"type": "object",
	"properties": {
		"pin": {"type": "string", "description": "Pin identifier, for example D5"},
		"state": {"type": "string", "description": "New state of the pin: on or off"}
	},
	"required": ["pin", "state"]
}`
	pinStatusParameters = `{"type": "object", "properties": {}}`
)

// PinToggler changes the state of a single pin.
type PinToggler interface {
	Toggle(ctx context.Context, pin, state string) (model.SetResult, string)
}

// StatusReader reads the state of all pins from the device.
type StatusReader interface {
	GetAllPinStatus(ctx context.Context) (model.PinStateSnapshot, error)
}

// RegisterPinTools registers set_pin and get_all_pin_status in the given registry.
// The store is optional; when set, fresh status reads are published into it
// and its content is reported when the device cannot be read.
func RegisterPinTools(r *Registry, pins model.PinSet, toggler PinToggler, reader StatusReader, store *poller.Store) error {
	if err := r.Register(&setPinTool{pins: pins, toggler: toggler}); err != nil {
		return maskAny(err)
	}
	if err := r.Register(&pinStatusTool{pins: pins, reader: reader, store: store}); err != nil {
		return maskAny(err)
	}
	return nil
}

type setPinTool struct {
	pins    model.PinSet
	toggler PinToggler
}

func (t *setPinTool) Name() string { return SetPinToolName }

func (t *setPinTool) Description() string {
	return fmt.Sprintf("Set one pin (%s) to on or off.", t.pins)
}

func (t *setPinTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(setPinParameters),
	}
}

func (t *setPinTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var args struct {
		Pin   string `json:"pin"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return ErrorText(fmt.Sprintf("invalid JSON arguments: %v", err)), nil
	}
	result, _ := t.toggler.Toggle(ctx, args.Pin, args.State)
	msg := FormatSetResult(t.pins, result)
	if !result.OK {
		return ErrorText(msg), nil
	}
	return Text(msg), nil
}

type pinStatusTool struct {
	pins   model.PinSet
	reader StatusReader
	store  *poller.Store
}

func (t *pinStatusTool) Name() string { return PinStatusToolName }

func (t *pinStatusTool) Description() string {
	return "Return current ON/OFF state of all pins."
}

func (t *pinStatusTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(pinStatusParameters),
	}
}

func (t *pinStatusTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	snap, err := t.reader.GetAllPinStatus(ctx)
	if err == nil {
		if t.store != nil {
			t.store.Publish(snap)
		}
		return Text(FormatSnapshot(t.pins, snap)), nil
	}

	var msg string
	if he, ok := model.AsHTTPError(err); ok {
		msg = fmt.Sprintf("HTTP error %d", he.Code)
	} else {
		msg = "Cannot read status → " + err.Error()
	}
	if t.store != nil {
		if last := t.store.Current(); !last.CapturedAt.IsZero() {
			msg += fmt.Sprintf("\nLast known state (%s):\n%s",
				humanize.Time(last.CapturedAt), FormatSnapshot(t.pins, last))
		}
	}
	return ErrorText(msg), nil
}

// FormatSetResult renders the outcome of a set request for an agent.
func FormatSetResult(pins model.PinSet, r model.SetResult) string {
	if r.OK {
		return fmt.Sprintf("OK → %s set to %s", r.Pin, r.State)
	}
	switch r.Reason {
	case model.ReasonInvalidPin:
		return "Invalid pin. Available pins: " + pins.String()
	case model.ReasonInvalidState:
		return "State must be 'on' or 'off'"
	case model.ReasonNon200Status, model.ReasonEndpointNotFound:
		if he, ok := model.AsHTTPError(r.Err); ok {
			if he.Body == "" {
				return fmt.Sprintf("ESP returned error %d", he.Code)
			}
			return fmt.Sprintf("ESP returned error %d: %s", he.Code, he.Body)
		}
	}
	if r.Err == nil {
		return "Connection failed: unknown error"
	}
	return "Connection failed: " + r.Err.Error()
}

// FormatSnapshot renders one "<pin>: ON|OFF" line per pin.
func FormatSnapshot(pins model.PinSet, snap model.PinStateSnapshot) string {
	ids := pins.IDs()
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%s: %s", id, snap.Get(id)))
	}
	return strings.Join(lines, "\n")
}
