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
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/util"
)

// countingTransport counts requests and delegates them (or fails them).
type countingTransport struct {
	calls int32
	fail  error
	next  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&t.calls, 1)
	if t.fail != nil {
		return nil, t.fail
	}
	return t.next.RoundTrip(req)
}

func (t *countingTransport) Calls() int {
	return int(atomic.LoadInt32(&t.calls))
}

func newTestClient(t *testing.T, baseURL string, transport http.RoundTripper, mutate ...func(*Config)) *Client {
	t.Helper()
	conf := Config{
		BaseURL:       baseURL,
		Pins:          testPins,
		SetTimeout:    time.Second,
		StatusTimeout: time.Second,
		Retry: util.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     util.BackoffLinear(time.Millisecond),
		},
		FailFastNotFound: true,
	}
	for _, m := range mutate {
		m(&conf)
	}
	c, err := New(conf, Dependencies{
		Log:        zerolog.Nop(),
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)
	return c
}

// sequenceServer answers requests with the given status codes in order.
// The last status code is repeated. A status code of 0 blocks until the
// client gives up on the request.
func sequenceServer(t *testing.T, codes ...int) (*httptest.Server, *[]string) {
	var mutex sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		paths = append(paths, r.URL.Path)
		idx := len(paths) - 1
		mutex.Unlock()
		if idx >= len(codes) {
			idx = len(codes) - 1
		}
		code := codes[idx]
		if code == 0 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestSetPinInvalidPinMakesNoRequest(t *testing.T) {
	tr := &countingTransport{fail: errors.New("must not be called")}
	c := newTestClient(t, "http://device.invalid", tr)

	r := c.SetPin(context.Background(), "D9", model.On)
	assert.False(t, r.OK)
	assert.Equal(t, model.ReasonInvalidPin, r.Reason)
	assert.True(t, model.IsInvalidPin(r.Err))
	assert.Equal(t, 0, r.Attempts)

	r = c.SetPinToken(context.Background(), "x", "on")
	assert.Equal(t, model.ReasonInvalidPin, r.Reason)
	assert.Equal(t, 0, tr.Calls())
}

func TestSetPinTokenInvalidStateMakesNoRequest(t *testing.T) {
	tr := &countingTransport{fail: errors.New("must not be called")}
	c := newTestClient(t, "http://device.invalid", tr)

	r := c.SetPinToken(context.Background(), "d1", "toggle")
	assert.False(t, r.OK)
	assert.Equal(t, model.ReasonInvalidState, r.Reason)
	assert.Equal(t, model.PinID("D1"), r.Pin)
	assert.Equal(t, 0, tr.Calls())
}

func TestSetPinBuildsURL(t *testing.T) {
	srv, paths := sequenceServer(t, http.StatusOK)
	tr := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, srv.URL, tr)

	r := c.SetPinToken(context.Background(), " d2 ", "ON")
	require.True(t, r.OK, r.String())
	assert.Equal(t, model.PinID("D2"), r.Pin)
	assert.Equal(t, model.On, r.State)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, []string{"/set/D2/on"}, *paths)
}

func TestSetPinSucceedsAfterTimeout(t *testing.T) {
	srv, paths := sequenceServer(t, 0, http.StatusOK)
	tr := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, srv.URL, tr, func(c *Config) {
		c.SetTimeout = 100 * time.Millisecond
	})

	r := c.SetPin(context.Background(), "D0", model.Off)
	require.True(t, r.OK, r.String())
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, 2, tr.Calls())
	assert.Equal(t, []string{"/set/D0/off", "/set/D0/off"}, *paths)
}

func TestSetPinIgnoresCallerCancel(t *testing.T) {
	srv, paths := sequenceServer(t, 0, http.StatusOK)
	tr := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, srv.URL, tr, func(c *Config) {
		c.SetTimeout = 300 * time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	defer cancel()

	r := c.SetPin(ctx, "D1", model.On)
	require.True(t, r.OK, r.String())
	assert.Equal(t, 2, r.Attempts)
	assert.Len(t, *paths, 2)
}

func TestSetPinNetworkErrorsExhaustRetries(t *testing.T) {
	tr := &countingTransport{fail: errors.New("connection refused")}
	c := newTestClient(t, "http://device.invalid", tr)

	r := c.SetPin(context.Background(), "D1", model.On)
	assert.False(t, r.OK)
	assert.Equal(t, model.ReasonNetworkError, r.Reason)
	assert.True(t, model.IsNetwork(r.Err))
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 3, tr.Calls())
}

func TestSetPinRetriesNon200(t *testing.T) {
	srv, _ := sequenceServer(t, http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusOK)
	tr := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, srv.URL, tr)

	r := c.SetPin(context.Background(), "D1", model.On)
	assert.True(t, r.OK, r.String())
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 3, tr.Calls())
}

func TestSetPinNon200Exhausted(t *testing.T) {
	srv, _ := sequenceServer(t, http.StatusInternalServerError)
	tr := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, srv.URL, tr)

	r := c.SetPin(context.Background(), "D1", model.On)
	assert.False(t, r.OK)
	assert.Equal(t, model.ReasonNon200Status, r.Reason)
	assert.Equal(t, http.StatusInternalServerError, r.StatusCode())
	assert.Equal(t, 3, tr.Calls())
}

func TestSetPinNotFound(t *testing.T) {
	srv, _ := sequenceServer(t, http.StatusNotFound)

	tr := &countingTransport{next: http.DefaultTransport}
	c := newTestClient(t, srv.URL, tr)
	r := c.SetPin(context.Background(), "D1", model.On)
	assert.Equal(t, model.ReasonEndpointNotFound, r.Reason)
	assert.Equal(t, 1, tr.Calls())

	tr = &countingTransport{next: http.DefaultTransport}
	c = newTestClient(t, srv.URL, tr, func(c *Config) {
		c.FailFastNotFound = false
	})
	r = c.SetPin(context.Background(), "D1", model.On)
	assert.Equal(t, model.ReasonNon200Status, r.Reason)
	assert.Equal(t, http.StatusNotFound, r.StatusCode())
	assert.Equal(t, 3, tr.Calls())
}

func TestGetAllPinStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pins":{"D0":true,"D1":false,}}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL+"/", http.DefaultTransport)

	snap, err := c.GetAllPinStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Reachable)
	assert.False(t, snap.CapturedAt.IsZero())
	assert.Equal(t, map[model.PinID]model.PinState{
		"D0": model.On,
		"D1": model.Off,
		"D2": model.Off,
	}, snap.States)
}

func TestGetAllPinStatusFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, http.DefaultTransport)
	_, err := c.GetAllPinStatus(context.Background())
	he, ok := model.AsHTTPError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, http.StatusServiceUnavailable, he.Code)
	assert.Equal(t, "busy", he.Body)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer garbage.Close()
	c = newTestClient(t, garbage.URL, http.DefaultTransport)
	_, err = c.GetAllPinStatus(context.Background())
	assert.True(t, model.IsMalformed(err), "%v", err)

	tr := &countingTransport{fail: errors.New("no route to host")}
	c = newTestClient(t, "http://device.invalid", tr)
	_, err = c.GetAllPinStatus(context.Background())
	assert.True(t, model.IsNetwork(err), "%v", err)
	assert.Equal(t, 1, tr.Calls())
}
