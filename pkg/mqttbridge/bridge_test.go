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

package mqttbridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/service/poller"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	mqttapi.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

// fakeClient records publications and subscriptions.
type fakeClient struct {
	mqttapi.Client

	mutex         sync.Mutex
	opts          *mqttapi.ClientOptions
	connectErrors int
	connects      int
	disconnects   int
	retained      map[string]string
	handlers      map[string]mqttapi.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		retained: make(map[string]string),
		handlers: make(map[string]mqttapi.MessageHandler),
	}
}

func (c *fakeClient) factory(opts *mqttapi.ClientOptions) mqttapi.Client {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.opts = opts
	return c
}

func (c *fakeClient) Connect() mqttapi.Token {
	c.mutex.Lock()
	if c.connectErrors > 0 {
		c.connectErrors--
		c.mutex.Unlock()
		return fakeToken{err: errors.New("connection refused")}
	}
	c.connects++
	onConnect := c.opts.OnConnect
	c.mutex.Unlock()
	if onConnect != nil {
		onConnect(c)
	}
	return fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttapi.Token {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if retained {
		c.retained[topic] = fmt.Sprintf("%s", payload)
	}
	return fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqttapi.MessageHandler) mqttapi.Token {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers[topic] = callback
	return fakeToken{}
}

func (c *fakeClient) get(topic string) string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.retained[topic]
}

func (c *fakeClient) deliver(filter, topic, payload string) bool {
	c.mutex.Lock()
	h := c.handlers[filter]
	c.mutex.Unlock()
	if h == nil {
		return false
	}
	h(c, &fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}

type toggleCall struct {
	Pin, State string
}

type fakeToggler struct {
	mutex sync.Mutex
	calls []toggleCall
}

func (f *fakeToggler) Toggle(ctx context.Context, pin, state string) (model.SetResult, string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, toggleCall{pin, state})
	r := model.Success(model.PinID(pin), state == "on", 1)
	return r, r.String()
}

func (f *fakeToggler) getCalls() []toggleCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]toggleCall(nil), f.calls...)
}

type testBridge struct {
	bridge  *Bridge
	client  *fakeClient
	store   *poller.Store
	toggler *fakeToggler
	cancel  context.CancelFunc
	done    chan struct{}
}

func startTestBridge(t *testing.T, connectErrors int) *testBridge {
	store := poller.NewStore(model.MustNewPinSet("D0", "D1"))
	client := newFakeClient()
	client.connectErrors = connectErrors
	toggler := &fakeToggler{}
	b, err := New(Config{
		Broker:   "localhost:1883",
		ClientID: "test",
	}, Dependencies{
		Log:        zerolog.Nop(),
		Store:      store,
		Controller: toggler,
		NewClient:  client.factory,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tb := &testBridge{bridge: b, client: client, store: store, toggler: toggler, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(tb.done)
		assert.NoError(t, b.Run(ctx))
	}()
	t.Cleanup(tb.stop)
	return tb
}

func (tb *testBridge) stop() {
	tb.cancel()
	<-tb.done
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{ClientID: "x"}, Dependencies{})
	assert.Error(t, err)
	_, err = New(Config{Broker: "localhost"}, Dependencies{})
	assert.Error(t, err)

	b, err := New(Config{Broker: "localhost", ClientID: "x", TopicPrefix: "/lab"}, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "/lab/pin/D3/state", b.StateTopic("D3"))
	assert.Equal(t, "/lab/pin/D3/command", b.CommandTopic("D3"))
	assert.Equal(t, "/lab/status", b.StatusTopic())
	assert.Equal(t, "/lab/log", b.LogTopic())

	opts := b.ClientOptions()
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://localhost", opts.Servers[0].String())
	assert.Equal(t, "/lab/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)
}

func TestPublishesSnapshotOnConnect(t *testing.T) {
	tb := startTestBridge(t, 0)
	tb.store.Publish(model.PinStateSnapshot{
		States: map[model.PinID]model.PinState{"D0": model.On},
	})

	assert.Eventually(t, func() bool {
		return tb.client.get("/pincontrol/pin/D0/state") == "ON" &&
			tb.client.get("/pincontrol/pin/D1/state") == "OFF" &&
			tb.client.get("/pincontrol/status") == "online"
	}, time.Second*2, time.Millisecond*10)
}

func TestPublishesChanges(t *testing.T) {
	tb := startTestBridge(t, 0)
	assert.Eventually(t, func() bool {
		return tb.client.get("/pincontrol/status") == "offline"
	}, time.Second*2, time.Millisecond*10)

	_, err := tb.store.SetProvisional("D1", model.On)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return tb.client.get("/pincontrol/pin/D1/state") == "ON"
	}, time.Second*2, time.Millisecond*10)

	tb.store.Publish(model.PinStateSnapshot{
		States: map[model.PinID]model.PinState{"D0": model.On},
	})
	assert.Eventually(t, func() bool {
		return tb.client.get("/pincontrol/pin/D0/state") == "ON" &&
			tb.client.get("/pincontrol/pin/D1/state") == "OFF" &&
			tb.client.get("/pincontrol/status") == "online"
	}, time.Second*2, time.Millisecond*10)
}

func TestForwardsCommands(t *testing.T) {
	tb := startTestBridge(t, 0)
	filter := "/pincontrol/pin/+/command"
	require.Eventually(t, func() bool {
		return tb.client.deliver(filter, "/pincontrol/pin/D1/command", " ON ")
	}, time.Second*2, time.Millisecond*10)
	tb.client.deliver(filter, "/pincontrol/pin/D0/command", "0")
	tb.client.deliver(filter, "/pincontrol/pin/D0/command", "toggle")
	tb.client.deliver(filter, "/pincontrol/pin/D0/other", "on")

	assert.Eventually(t, func() bool {
		return len(tb.toggler.getCalls()) == 2
	}, time.Second*2, time.Millisecond*10)
	assert.ElementsMatch(t, []toggleCall{{"D1", "on"}, {"D0", "off"}}, tb.toggler.getCalls())
}

func TestDropsCommandsAboveRate(t *testing.T) {
	toggler := &fakeToggler{}
	b, err := New(Config{
		Broker:          "localhost",
		ClientID:        "test",
		CommandInterval: time.Hour,
		CommandBurst:    2,
	}, Dependencies{
		Log:        zerolog.Nop(),
		Store:      poller.NewStore(model.MustNewPinSet("D0")),
		Controller: toggler,
	})
	require.NoError(t, err)

	handler := b.onCommand(context.Background())
	client := newFakeClient()
	for i := 0; i < 4; i++ {
		handler(client, &fakeMessage{topic: "/pincontrol/pin/D0/command", payload: []byte("on")})
	}
	assert.Eventually(t, func() bool {
		return len(toggler.getCalls()) == 2
	}, time.Second*2, time.Millisecond*10)
	time.Sleep(time.Millisecond * 50)
	assert.Len(t, toggler.getCalls(), 2)
}

func TestRetriesConnectAndPublishesOfflineOnStop(t *testing.T) {
	tb := startTestBridge(t, 2)
	assert.Eventually(t, func() bool {
		tb.client.mutex.Lock()
		defer tb.client.mutex.Unlock()
		return tb.client.connects == 1
	}, time.Second*3, time.Millisecond*10)

	tb.store.Publish(model.PinStateSnapshot{})
	assert.Eventually(t, func() bool {
		return tb.client.get("/pincontrol/status") == "online"
	}, time.Second*2, time.Millisecond*10)

	tb.stop()
	assert.Equal(t, "offline", tb.client.get("/pincontrol/status"))
	tb.client.mutex.Lock()
	defer tb.client.mutex.Unlock()
	assert.Equal(t, 1, tb.client.disconnects)
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "t", "true", "on", "yes", "ON", "True"} {
		v, err := parseBool(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"0", "f", "false", "off", "no", "OFF"} {
		v, err := parseBool(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := parseBool("toggle")
	assert.Error(t, err)
	assert.Equal(t, "ON", formatBool(true))
	assert.Equal(t, "OFF", formatBool(false))
}
