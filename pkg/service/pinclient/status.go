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

package pinclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"

	"github.com/binkynet/PinControl/model"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	Pins map[string]json.RawMessage `json:"pins"`
}

// StripTrailingSeparators removes separators that directly precede a
// closing brace or bracket, so `{"a":1,}` decodes like `{"a":1}`.
// String literals are left untouched. Comments are removed as well.
// The input is not modified.
func StripTrailingSeparators(body []byte) []byte {
	return jsonc.ToJSON(body)
}

// ParseStatus decodes a status response body into a snapshot captured at the given time.
// Every pin of the given set is present in the result; pins missing in the
// pins object are OFF. A missing or null pins object is malformed.
// When keys differ only in case, the upper case key is used. Bodies that cannot be decoded, even after stripping
// trailing separators, result in a model.MalformedResponseError.
func ParseStatus(body []byte, pins model.PinSet, capturedAt time.Time) (model.PinStateSnapshot, error) {
	var resp statusResponse
	if err := json.Unmarshal(StripTrailingSeparators(body), &resp); err != nil {
		return model.PinStateSnapshot{}, errors.Wrapf(model.MalformedResponseError, "cannot decode status: %s", err.Error())
	}
	if resp.Pins == nil {
		return model.PinStateSnapshot{}, errors.Wrap(model.MalformedResponseError, "status has no pins object")
	}
	values := make(map[model.PinID]json.RawMessage, len(resp.Pins))
	for k, v := range resp.Pins {
		id := model.NormalizePinID(k)
		if _, found := values[id]; found && k != string(id) {
			// Exact key wins over a differently cased one
			continue
		}
		values[id] = v
	}
	snap := model.NewEmptySnapshot(pins)
	snap.CapturedAt = capturedAt
	snap.Reachable = true
	for _, id := range pins.IDs() {
		raw, found := values[id]
		if !found {
			continue
		}
		state, err := decodePinValue(raw)
		if err != nil {
			return model.PinStateSnapshot{}, errors.Wrapf(model.MalformedResponseError, "pin %s: %s", id, err.Error())
		}
		snap.States[id] = state
	}
	return snap, nil
}

// decodePinValue interprets a single pin value.
// Accepted are booleans, numbers (non-zero is ON), strings and null (OFF).
func decodePinValue(raw json.RawMessage) (model.PinState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return model.Off, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return model.PinState(b), nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return model.PinState(f != 0), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := parseBool(s)
		if err != nil {
			return model.Off, err
		}
		return model.PinState(v), nil
	}
	return model.Off, fmt.Errorf("unsupported value %s", string(raw))
}

// Parse a string into a bool
func parseBool(str string) (bool, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	switch str {
	case "1", "t", "true", "on", "yes", "high":
		return true, nil
	case "0", "f", "false", "off", "no", "low", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid bool value '%s'", str)
}
