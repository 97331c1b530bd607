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
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/util"
)

const (
	maxBodySize  = 64 * 1024
	maxErrorBody = 128
)

// Config of the pin client.
type Config struct {
	// Base URL of the device (e.g. http://192.168.1.13)
	BaseURL string
	// Pins known to the device
	Pins model.PinSet
	// Timeout of a single set request
	SetTimeout time.Duration
	// Timeout of a single status request
	StatusTimeout time.Duration
	// Retry policy of set requests
	Retry util.RetryPolicy
	// If set, a 404 answer to a set request is surfaced immediately
	FailFastNotFound bool
	// Maximum number of requests in flight towards the device
	MaxConcurrentRequests int
}

// NewConfig builds a client configuration from the given device configuration.
func NewConfig(dc model.DeviceConfig) (Config, error) {
	baseURL, err := dc.BaseURL()
	if err != nil {
		return Config{}, err
	}
	pins, err := dc.PinSet()
	if err != nil {
		return Config{}, err
	}
	return Config{
		BaseURL:       baseURL,
		Pins:          pins,
		SetTimeout:    dc.SetTimeout,
		StatusTimeout: dc.StatusTimeout,
		Retry: util.RetryPolicy{
			MaxAttempts: dc.RetryAttempts,
			Backoff:     util.BackoffLinear(dc.RetryBackoff),
		},
		FailFastNotFound:      dc.FailFastNotFound,
		MaxConcurrentRequests: dc.MaxConcurrentRequests,
	}, nil
}

// Dependencies of the pin client.
type Dependencies struct {
	Log zerolog.Logger
	// HTTP client used for all requests. Defaults to a new http.Client.
	HTTPClient *http.Client
}

// Client talks to the HTTP API of the remote device.
// It does not keep any pin state itself.
type Client struct {
	log              zerolog.Logger
	httpClient       *http.Client
	baseURL          string
	statusURL        string
	pins             model.PinSet
	setTimeout       time.Duration
	statusTimeout    time.Duration
	retry            util.RetryPolicy
	failFastNotFound bool
	sem              *semaphore.Weighted
}

// New creates a new client.
func New(conf Config, deps Dependencies) (*Client, error) {
	if conf.BaseURL == "" {
		return nil, errors.Wrap(model.ValidationError, "base URL is empty")
	}
	if conf.Pins.Len() == 0 {
		return nil, errors.Wrap(model.ValidationError, "pin set is empty")
	}
	if conf.SetTimeout <= 0 {
		conf.SetTimeout = model.DefaultSetTimeout
	}
	if conf.StatusTimeout <= 0 {
		conf.StatusTimeout = model.DefaultStatusTimeout
	}
	if conf.Retry.MaxAttempts < 1 {
		conf.Retry.MaxAttempts = model.DefaultRetryAttempts
	}
	if conf.MaxConcurrentRequests < 1 {
		conf.MaxConcurrentRequests = model.DefaultMaxConcurrentRequests
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimSuffix(conf.BaseURL, "/")
	return &Client{
		log:              deps.Log.With().Str("component", "pin-client").Logger(),
		httpClient:       httpClient,
		baseURL:          baseURL,
		statusURL:        baseURL + "/status",
		pins:             conf.Pins,
		setTimeout:       conf.SetTimeout,
		statusTimeout:    conf.StatusTimeout,
		retry:            conf.Retry,
		failFastNotFound: conf.FailFastNotFound,
		sem:              semaphore.NewWeighted(int64(conf.MaxConcurrentRequests)),
	}, nil
}

// Pins returns the set of known pins.
func (c *Client) Pins() model.PinSet {
	return c.pins
}

// BaseURL returns the base URL of the device.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetPinToken validates the given pin & state strings and sets the pin.
// Invalid input fails without any request to the device.
func (c *Client) SetPinToken(ctx context.Context, pin, state string) model.SetResult {
	id := model.NormalizePinID(pin)
	if !c.pins.Contains(id) {
		setResultsTotal.WithLabelValues(string(model.ReasonInvalidPin)).Inc()
		return model.Failure(id, model.Off, model.ReasonInvalidPin,
			errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", pin), 0)
	}
	ps, err := model.ParsePinState(state)
	if err != nil {
		setResultsTotal.WithLabelValues(string(model.ReasonInvalidState)).Inc()
		return model.Failure(id, model.Off, model.ReasonInvalidState, err, 0)
	}
	return c.SetPin(ctx, id, ps)
}

// SetPin requests the device to put the given pin in the given state.
// The request is retried according to the retry policy; the outcome
// of the final attempt is returned.
// Once started, the sequence is not aborted when ctx is canceled. Every
// attempt is bounded by the set timeout instead.
func (c *Client) SetPin(ctx context.Context, pin model.PinID, state model.PinState) model.SetResult {
	ctx = context.WithoutCancel(ctx)
	if !c.pins.Contains(pin) {
		setResultsTotal.WithLabelValues(string(model.ReasonInvalidPin)).Inc()
		return model.Failure(pin, state, model.ReasonInvalidPin,
			errors.Wrapf(model.InvalidPinError, "unknown pin '%s'", pin), 0)
	}
	log := c.log.With().
		Str("pin", string(pin)).
		Str("state", state.Token()).
		Logger()
	setURL := c.baseURL + "/set/" + url.PathEscape(string(pin)) + "/" + state.Token()

	reason := model.ReasonNone
	attempts, err := c.retry.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		setAttemptsTotal.WithLabelValues(string(pin)).Inc()
		code, body, err := c.get(ctx, "set", setURL, c.setTimeout)
		if err != nil {
			reason = model.ReasonNetworkError
			log.Debug().Err(err).Int("attempt", attempt).Msg("set request failed")
			return false, err
		}
		if code == http.StatusOK {
			reason = model.ReasonNone
			return true, nil
		}
		herr := model.HTTPError{Code: code, Body: shortBody(body)}
		if code == http.StatusNotFound && c.failFastNotFound {
			reason = model.ReasonEndpointNotFound
			return true, herr
		}
		reason = model.ReasonNon200Status
		log.Debug().Int("status", code).Int("attempt", attempt).Msg("set request rejected")
		return false, herr
	})

	if err == nil && reason == model.ReasonNone {
		setResultsTotal.WithLabelValues("success").Inc()
		log.Info().Int("attempts", attempts).Msg("pin set")
		return model.Success(pin, state, attempts)
	}
	if reason == model.ReasonNone {
		reason = model.ReasonNetworkError
	}
	setResultsTotal.WithLabelValues(string(reason)).Inc()
	log.Warn().Err(err).
		Str("reason", string(reason)).
		Int("attempts", attempts).
		Msg("failed to set pin")
	return model.Failure(pin, state, reason, err, attempts)
}

// GetAllPinStatus reads the state of all pins from the device.
// Pins missing in the response are reported OFF.
func (c *Client) GetAllPinStatus(ctx context.Context) (model.PinStateSnapshot, error) {
	code, body, err := c.get(ctx, "status", c.statusURL, c.statusTimeout)
	if err != nil {
		statusRequestsTotal.WithLabelValues(string(model.ReasonNetworkError)).Inc()
		return model.PinStateSnapshot{}, err
	}
	if code < 200 || code > 299 {
		statusRequestsTotal.WithLabelValues("http-error").Inc()
		return model.PinStateSnapshot{}, maskAny(model.HTTPError{Code: code, Body: shortBody(body)})
	}
	snap, err := ParseStatus(body, c.pins, time.Now())
	if err != nil {
		statusRequestsTotal.WithLabelValues("malformed").Inc()
		c.log.Debug().Err(err).Str("body", shortBody(body)).Msg("cannot parse status")
		return model.PinStateSnapshot{}, err
	}
	statusRequestsTotal.WithLabelValues("success").Inc()
	return snap, nil
}

// get performs a single GET request with the given timeout.
// Transport level failures are wrapped in model.NetworkError.
func (c *Client) get(ctx context.Context, endpoint, target string, timeout time.Duration) (int, []byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return 0, nil, errors.Wrapf(model.NetworkError, "request not started: %s", err.Error())
	}
	defer c.sem.Release(1)

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(lctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, errors.Wrapf(model.NetworkError, "cannot create request: %s", err.Error())
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, errors.Wrap(model.NetworkError, err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, errors.Wrapf(model.NetworkError, "cannot read response: %s", err.Error())
	}
	return resp.StatusCode, body, nil
}

// shortBody returns a trimmed, length limited version of the given body
// for use in error messages.
func shortBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
