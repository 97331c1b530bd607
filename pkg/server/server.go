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
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/poller"
	"github.com/binkynet/PinControl/pkg/service/tools"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// Controller changes pin states.
type Controller interface {
	Toggle(ctx context.Context, pin, state string) (model.SetResult, string)
	SetAll(ctx context.Context, state model.PinState) []model.SetResult
}

// StatusReader reads the state of all pins from the device.
type StatusReader interface {
	GetAllPinStatus(ctx context.Context) (model.PinStateSnapshot, error)
}

// Dependencies of the HTTP server.
type Dependencies struct {
	Log        zerolog.Logger
	Store      *poller.Store
	Poller     *poller.Poller
	Controller Controller
	Client     StatusReader
	Registry   *tools.Registry
	// Optional MCP (streamable HTTP) handler, served on /mcp
	MCP http.Handler
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	Dependencies
	log    zerolog.Logger
	router *echo.Echo
}

// New configures a new Server.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil || deps.Controller == nil || deps.Client == nil || deps.Registry == nil {
		return nil, errors.Wrap(model.ValidationError, "missing server dependency")
	}
	s := &Server{
		Config:       cfg,
		Dependencies: deps,
		log:          deps.Log.With().Str("component", "server").Logger(),
	}
	s.router = s.newRouter()
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", echo.WrapHandler(http.HandlerFunc(healthHandler)))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/debug/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	e.GET("/debug/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	e.GET("/debug/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	e.GET("/debug/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	e.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))

	api := e.Group("/api")
	api.GET("/status", s.handleGetStatus)
	api.POST("/pins/all/:state", s.handleSetAll)
	api.POST("/pins/:pin/:state", s.handleSetPin)
	api.GET("/tools", s.handleListTools)
	api.POST("/tools/:name", s.handleInvokeTool)

	if s.MCP != nil {
		e.Any("/mcp", echo.WrapHandler(s.MCP))
	}
	return e
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: time.Second * 10,
	}

	serveErr := make(chan error, 1)
	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	go func() {
		defer close(serveErr)
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	// Wait until context closed
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "failed to serve HTTP server")
		}
	}

	log.Info().Msg("Closing servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "OK")
}

// Discard request bodies that are not needed
func drain(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 1<<16))
}
