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
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config of the simulator.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
	// If set, the status document contains a trailing comma after
	// the last pin (as some firmware versions do)
	TrailingComma bool
	// Delay added to every request
	Latency time.Duration
}

// Simulator serves the HTTP interface of a pin controller device:
//
//	GET /status             {"pins":{"D0":true,...}}
//	GET /set/<pin>/<on|off> 200 OK
type Simulator struct {
	Config
	log     zerolog.Logger
	backend Backend
	router  *echo.Echo
}

// New creates a new simulator.
func New(conf Config, log zerolog.Logger, backend Backend) *Simulator {
	s := &Simulator{
		Config:  conf,
		log:     log.With().Str("component", "devicesim").Logger(),
		backend: backend,
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if conf.Latency > 0 {
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				select {
				case <-time.After(conf.Latency):
				case <-c.Request().Context().Done():
					return c.Request().Context().Err()
				}
				return next(c)
			}
		})
	}
	e.GET("/status", s.handleStatus)
	e.GET("/set/:pin/:state", s.handleSet)
	s.router = e
	return s
}

// Handler returns the HTTP handler of the simulator.
func (s *Simulator) Handler() http.Handler {
	return s.router
}

// Run the simulator until the given context is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", addr)
	}
	srv := http.Server{
		Handler: s.router,
	}
	s.log.Info().
		Str("address", addr).
		Str("pins", s.backend.Pins().String()).
		Msg("Serving simulated device")
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "failed to serve simulated device")
		}
	}
	s.log.Info().Msg("Closing simulated device")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	return nil
}

// StatusDocument returns the status document of the device.
func (s *Simulator) StatusDocument() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"pins":{`)
	for i, id := range s.backend.Pins().IDs() {
		value, err := s.backend.Get(id)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(id))
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatBool(value))
	}
	if s.TrailingComma {
		buf.WriteByte(',')
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

func (s *Simulator) handleStatus(c echo.Context) error {
	body, err := s.StatusDocument()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read pin states")
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (s *Simulator) handleSet(c echo.Context) error {
	pin, err := s.backend.Pins().Lookup(c.Param("pin"))
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid pin")
	}
	var value bool
	switch strings.ToLower(c.Param("state")) {
	case "on":
		value = true
	case "off":
		value = false
	default:
		return c.String(http.StatusBadRequest, "Invalid state")
	}
	if err := s.backend.Set(pin, value); err != nil {
		s.log.Warn().Err(err).Str("pin", string(pin)).Msg("Failed to set pin")
		return c.String(http.StatusInternalServerError, err.Error())
	}
	s.log.Debug().
		Str("pin", string(pin)).
		Bool("value", value).
		Msg("Pin set")
	return c.String(http.StatusOK, "OK")
}
