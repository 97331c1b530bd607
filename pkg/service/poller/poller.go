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
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/PinControl/model"
)

// Phase of a poll cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhasePublished
	PhaseFailed
)

// String returns a human readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePolling:
		return "polling"
	case PhasePublished:
		return "published"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Config of the poller.
type Config struct {
	// Time between the end of one poll and the start of the next
	Interval time.Duration
}

// StatusReader fetches the state of all pins from the device.
type StatusReader interface {
	GetAllPinStatus(ctx context.Context) (model.PinStateSnapshot, error)
}

// Dependencies of the poller.
type Dependencies struct {
	Log    zerolog.Logger
	Client StatusReader
	Store  *Store
}

// Poller periodically reads the status of the device into a Store.
type Poller struct {
	Config
	Dependencies

	started atomic.Bool
	phase   atomic.Int32
	// Set when the previous cycle failed, used to avoid log flooding
	failing atomic.Bool
}

// New creates a new poller.
func New(conf Config, deps Dependencies) *Poller {
	if conf.Interval <= 0 {
		conf.Interval = model.DefaultPollInterval
	}
	deps.Log = deps.Log.With().Str("component", "poller").Logger()
	return &Poller{
		Config:       conf,
		Dependencies: deps,
	}
}

// Start the poll loop in the background.
// Only the first call starts a loop, subsequent calls are a no-op
// and return false.
func (p *Poller) Start(ctx context.Context) bool {
	if !p.started.CompareAndSwap(false, true) {
		p.Log.Debug().Msg("Poller already running")
		return false
	}
	go p.loop(ctx)
	return true
}

// Run the poll loop until the given context is canceled.
// If the poller is already running, Run returns immediately.
func (p *Poller) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		p.Log.Debug().Msg("Poller already running")
		return nil
	}
	p.loop(ctx)
	return nil
}

// IsStarted returns true once a poll loop has been started.
func (p *Poller) IsStarted() bool {
	return p.started.Load()
}

// Phase returns the current phase of the poll cycle.
func (p *Poller) Phase() Phase {
	return Phase(p.phase.Load())
}

func (p *Poller) loop(ctx context.Context) {
	p.Log.Info().Dur("interval", p.Interval).Msg("Poller started")
	defer p.Log.Info().Msg("Poller stopped")
	for {
		p.PollOnce(ctx)
		p.setPhase(PhaseIdle)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
			// Continue
		}
	}
}

// PollOnce runs a single poll cycle.
// On success the store is replaced wholesale with the device state.
// On failure the last known states are kept and the device is marked
// unreachable.
func (p *Poller) PollOnce(ctx context.Context) (result error) {
	p.setPhase(PhasePolling)
	defer func() {
		if rec := recover(); rec != nil {
			result = errors.Errorf("poll panicked: %v", rec)
			p.failed(result)
		}
	}()

	snap, err := p.Client.GetAllPinStatus(ctx)
	if err != nil {
		p.failed(err)
		return err
	}
	p.Store.Publish(snap)
	p.setPhase(PhasePublished)
	pollCyclesTotal.WithLabelValues("published").Inc()
	reachableGauge.Set(1)
	lastSuccessGauge.SetToCurrentTime()
	if p.failing.Swap(false) {
		p.Log.Info().Msg("Device reachable again")
	}
	return nil
}

func (p *Poller) failed(err error) {
	p.Store.MarkUnreachable(Describe(err))
	p.setPhase(PhaseFailed)
	pollCyclesTotal.WithLabelValues("failed").Inc()
	reachableGauge.Set(0)
	if !p.failing.Swap(true) {
		p.Log.Warn().Err(err).Msg("Device status poll failed")
	} else {
		p.Log.Debug().Err(err).Msg("Device status poll failed")
	}
}

func (p *Poller) setPhase(ph Phase) {
	p.phase.Store(int32(ph))
}

// Describe returns a short description of a poll failure,
// suitable for a status banner.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if he, ok := model.AsHTTPError(err); ok {
		return fmt.Sprintf("HTTP %d", he.Code)
	}
	switch {
	case model.IsNetwork(err):
		return "Not connected"
	case model.IsMalformed(err):
		return "Malformed response"
	}
	return err.Error()
}
