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

package control

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/poller"
)

// PinSetter sends set requests to the device.
type PinSetter interface {
	SetPin(ctx context.Context, pin model.PinID, state model.PinState) model.SetResult
}

// Dependencies of the controller.
type Dependencies struct {
	Log    zerolog.Logger
	Client PinSetter
	Store  *poller.Store
}

// Controller applies pin changes optimistically: the store is updated
// before the device confirms and rolled back when the device refuses.
type Controller struct {
	Dependencies
}

// New creates a new controller.
func New(deps Dependencies) *Controller {
	deps.Log = deps.Log.With().Str("component", "controller").Logger()
	return &Controller{
		Dependencies: deps,
	}
}

// Toggle puts the given pin in the given state ("on" / "off").
// Returns the result of the set request and a short message for the user.
func (c *Controller) Toggle(ctx context.Context, pin, state string) (model.SetResult, string) {
	id, err := c.Store.Pins().Lookup(pin)
	if err != nil {
		result := model.Failure(id, model.Off, model.ReasonInvalidPin, err, 0)
		return result, result.String()
	}
	ps, err := model.ParsePinState(state)
	if err != nil {
		result := model.Failure(id, model.Off, model.ReasonInvalidState, err, 0)
		return result, result.String()
	}
	result := c.Set(ctx, id, ps)
	return result, Message(result)
}

// Set puts the given pin in the given state.
func (c *Controller) Set(ctx context.Context, pin model.PinID, state model.PinState) model.SetResult {
	p, err := c.Store.SetProvisional(pin, state)
	if err != nil {
		return model.Failure(pin, state, model.ReasonInvalidPin, err, 0)
	}
	result := c.Client.SetPin(ctx, pin, state)
	if result.OK {
		c.Store.Confirm(p)
	} else {
		if c.Store.Rollback(p) {
			c.Log.Debug().
				Str("pin", string(pin)).
				Str("state", state.String()).
				Msg("Rolled back provisional pin state")
		}
	}
	return result
}

// SetAll puts all known pins in the given state.
// Pins are set one at a time; the results are returned in pin order.
func (c *Controller) SetAll(ctx context.Context, state model.PinState) []model.SetResult {
	ids := c.Store.Pins().IDs()
	results := make([]model.SetResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			results = append(results, model.Failure(id, state, model.ReasonNetworkError,
				errors.Wrap(model.NetworkError, ctx.Err().Error()), 0))
			continue
		}
		results = append(results, c.Set(ctx, id, state))
	}
	return results
}

// Message returns the message shown to a user after a toggle.
func Message(r model.SetResult) string {
	if r.OK {
		return fmt.Sprintf("%s → %s", r.Pin, r.State)
	}
	switch r.Reason {
	case model.ReasonNetworkError:
		return fmt.Sprintf("Connection problem: %v", r.Err)
	case model.ReasonNon200Status, model.ReasonEndpointNotFound:
		return "ESP did not accept command"
	}
	return r.String()
}
