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

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/poller"
)

const (
	maxToolArgsSize = 64 * 1024
)

// pinState is the API representation of a single pin.
type pinState struct {
	Pin   model.PinID `json:"pin"`
	On    bool        `json:"on"`
	State string      `json:"state"`
}

// statusResponse is returned by GET /api/status.
type statusResponse struct {
	Pins       []pinState `json:"pins"`
	Reachable  bool       `json:"reachable"`
	LastError  string     `json:"last_error,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Phase      string     `json:"phase,omitempty"`
	Fresh      bool       `json:"fresh"`
}

// setResponse is returned by POST /api/pins/...
type setResponse struct {
	Pin      model.PinID `json:"pin"`
	State    string      `json:"state"`
	OK       bool        `json:"ok"`
	Reason   string      `json:"reason,omitempty"`
	Attempts int         `json:"attempts"`
	Message  string      `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) newStatusResponse(snap model.PinStateSnapshot, fresh bool) statusResponse {
	resp := statusResponse{
		Reachable: snap.Reachable,
		LastError: snap.LastError,
		Fresh:     fresh,
	}
	if !snap.CapturedAt.IsZero() {
		capturedAt := snap.CapturedAt
		resp.CapturedAt = &capturedAt
	}
	if s.Poller != nil {
		resp.Phase = s.Poller.Phase().String()
	}
	for _, id := range s.Store.Pins().IDs() {
		value := snap.Get(id)
		resp.Pins = append(resp.Pins, pinState{Pin: id, On: bool(value), State: value.String()})
	}
	return resp
}

func newSetResponse(r model.SetResult, msg string) setResponse {
	return setResponse{
		Pin:      r.Pin,
		State:    r.State.String(),
		OK:       r.OK,
		Reason:   string(r.Reason),
		Attempts: r.Attempts,
		Message:  msg,
	}
}

// setStatusCode returns the HTTP status code for the given set result.
func setStatusCode(r model.SetResult) int {
	switch {
	case r.OK:
		return http.StatusOK
	case r.Reason == model.ReasonInvalidPin, r.Reason == model.ReasonInvalidState:
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// GET /api/status[?fresh=true]
// Returns the last polled snapshot, or reads the device when fresh is set.
func (s *Server) handleGetStatus(c echo.Context) error {
	fresh, _ := strconv.ParseBool(c.QueryParam("fresh"))
	if !fresh {
		return c.JSON(http.StatusOK, s.newStatusResponse(s.Store.Current(), false))
	}
	snap, err := s.Client.GetAllPinStatus(c.Request().Context())
	if err != nil {
		s.log.Debug().Err(err).Msg("Fresh status read failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: poller.Describe(err)})
	}
	s.Store.Publish(snap)
	return c.JSON(http.StatusOK, s.newStatusResponse(snap, true))
}

// POST /api/pins/:pin/:state
func (s *Server) handleSetPin(c echo.Context) error {
	drain(c.Request().Body)
	result, msg := s.Controller.Toggle(c.Request().Context(), c.Param("pin"), c.Param("state"))
	return c.JSON(setStatusCode(result), newSetResponse(result, msg))
}

// POST /api/pins/all/:state
func (s *Server) handleSetAll(c echo.Context) error {
	drain(c.Request().Body)
	state, err := model.ParsePinState(c.Param("state"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "state must be 'on' or 'off'"})
	}
	results := s.Controller.SetAll(c.Request().Context(), state)
	code := http.StatusOK
	resp := make([]setResponse, 0, len(results))
	for _, r := range results {
		if !r.OK {
			code = http.StatusBadGateway
		}
		resp = append(resp, newSetResponse(r, r.String()))
	}
	return c.JSON(code, resp)
}

// GET /api/tools
func (s *Server) handleListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Registry.Schemas())
}

// POST /api/tools/:name
// The request body holds the JSON encoded tool arguments.
func (s *Server) handleInvokeTool(c echo.Context) error {
	name := c.Param("name")
	if _, err := s.Registry.Get(name); err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown tool '" + name + "'"})
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxToolArgsSize))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	result := s.Registry.Invoke(c.Request().Context(), name, json.RawMessage(body))
	return c.JSON(http.StatusOK, result)
}
