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
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/logging"
	"github.com/binkynet/PinControl/pkg/service/poller"
	"github.com/binkynet/PinControl/pkg/service/util"
)

const (
	publishTimeout    = time.Millisecond * 500
	disconnectQuiesce = 250
	statusOnline      = "online"
	statusOffline     = "offline"
	qosAtLeastOnce    = 1
	qosAtMostOnce     = 0
)

// Config of the MQTT bridge.
type Config struct {
	Broker      string
	ClientID    string
	UserName    string
	Password    string
	TopicPrefix string
	// If set, log lines are published to <prefix>log
	PublishLogs bool
	// Minimum interval between accepted commands (0 disables limiting)
	CommandInterval time.Duration
	// Number of commands accepted in a burst
	CommandBurst int
}

// NewConfig creates a bridge configuration from the given MQTT settings.
func NewConfig(mc model.MQTTConfig) Config {
	return Config{
		Broker:          mc.Broker,
		ClientID:        mc.ClientID,
		UserName:        mc.UserName,
		Password:        mc.Password,
		TopicPrefix:     mc.TopicPrefix,
		PublishLogs:     mc.PublishLogs,
		CommandInterval: mc.CommandInterval,
		CommandBurst:    mc.CommandBurst,
	}
}

// Toggler changes the state of a single pin.
type Toggler interface {
	Toggle(ctx context.Context, pin, state string) (model.SetResult, string)
}

// Dependencies of the MQTT bridge.
type Dependencies struct {
	Log        zerolog.Logger
	Store      *poller.Store
	Controller Toggler
	// Optional log output to attach to the broker connection
	LogWriter logging.MQTTWriter
	// Optional client factory, defaults to mqttapi.NewClient
	NewClient func(opts *mqttapi.ClientOptions) mqttapi.Client
}

// Bridge mirrors the pin states in a Store to MQTT topics and
// forwards commands received over MQTT to a controller.
//
// Topics (relative to the topic prefix):
//   - pin/<ID>/state   ON|OFF, retained
//   - pin/<ID>/command ON|OFF (also accepts 1/0, true/false)
//   - status           online|offline (device reachability), retained
//   - log              log lines (optional)
type Bridge struct {
	Config
	Dependencies
	log      zerolog.Logger
	commands *rate.Limiter
}

// published holds what has been published in the current session.
type published struct {
	valid     bool
	states    map[model.PinID]model.PinState
	reachable bool
}

// New creates a new MQTT bridge.
func New(conf Config, deps Dependencies) (*Bridge, error) {
	if conf.Broker == "" {
		return nil, errors.Wrap(model.ValidationError, "MQTT broker is empty")
	}
	if conf.ClientID == "" {
		return nil, errors.Wrap(model.ValidationError, "MQTT client ID is empty")
	}
	if conf.TopicPrefix == "" {
		conf.TopicPrefix = model.DefaultMQTTTopicPrefix
	}
	conf.TopicPrefix = strings.TrimSuffix(conf.TopicPrefix, "/") + "/"
	if deps.NewClient == nil {
		deps.NewClient = mqttapi.NewClient
	}
	b := &Bridge{
		Config:       conf,
		Dependencies: deps,
		log: deps.Log.With().
			Str("component", "mqtt").
			Str("broker", conf.Broker).
			Logger(),
	}
	if conf.CommandInterval > 0 {
		burst := conf.CommandBurst
		if burst < 1 {
			burst = 1
		}
		b.commands = rate.NewLimiter(rate.Every(conf.CommandInterval), burst)
	}
	return b, nil
}

// StateTopic returns the topic the state of the given pin is published on.
func (b *Bridge) StateTopic(id model.PinID) string {
	return fmt.Sprintf("%spin/%s/state", b.TopicPrefix, id)
}

// CommandTopic returns the topic commands for the given pin are received on.
func (b *Bridge) CommandTopic(id model.PinID) string {
	return fmt.Sprintf("%spin/%s/command", b.TopicPrefix, id)
}

// StatusTopic returns the topic device reachability is published on.
func (b *Bridge) StatusTopic() string {
	return b.TopicPrefix + "status"
}

// LogTopic returns the topic log lines are published on.
func (b *Bridge) LogTopic() string {
	return b.TopicPrefix + "log"
}

// ClientOptions returns the MQTT client options used by the bridge.
func (b *Bridge) ClientOptions() *mqttapi.ClientOptions {
	broker := b.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqttapi.NewClientOptions().
		AddBroker(broker).
		SetClientID(b.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetAutoReconnect(true)
	if b.UserName != "" {
		opts.SetUsername(b.UserName)
		opts.SetPassword(b.Password)
	}
	opts.SetWill(b.StatusTopic(), statusOffline, qosAtLeastOnce, true)
	return opts
}

// Run the bridge until the given context is canceled.
// Failed connection attempts are retried.
func (b *Bridge) Run(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := b.Store.Subscribe(func(model.PinStateSnapshot) {
		select {
		case changed <- struct{}{}:
		default:
			// Already signaled
		}
	})
	defer unsubscribe()

	return util.UntilCanceled(ctx, b.log, "MQTT bridge", func() error {
		return b.runSession(ctx, changed)
	})
}

// runSession connects to the broker and publishes changes until
// the given context is canceled.
func (b *Bridge) runSession(ctx context.Context, changed <-chan struct{}) error {
	connected := make(chan struct{}, 1)
	opts := b.ClientOptions()
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		b.log.Debug().Msg("Connected to MQTT")
		filter := b.TopicPrefix + "pin/+/command"
		if token := c.Subscribe(filter, qosAtLeastOnce, b.onCommand(ctx)); token.Wait() && token.Error() != nil {
			b.log.Error().Err(token.Error()).
				Msgf("failed to subscribe to '%s'", filter)
		} else {
			b.log.Debug().Msgf("Subscribed to MQTT topic '%s'", filter)
		}
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	opts.SetConnectionLostHandler(func(c mqttapi.Client, err error) {
		b.log.Warn().Err(err).Msg("Lost MQTT connection")
	})

	b.log.Debug().Msg("Connecting to MQTT...")
	client := b.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "failed to connect to mqtt")
	}
	b.attachLogs(client)
	defer func() {
		b.detachLogs()
		if err := b.publish(client, b.StatusTopic(), statusOffline, true); err != nil {
			b.log.Debug().Err(err).Msg("failed to publish offline status")
		}
		client.Disconnect(disconnectQuiesce)
		b.log.Info().Msg("Disconnected from MQTT")
	}()

	var last published
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-connected:
			// (Re)connected; publish everything
			last = published{}
			b.publishSnapshot(client, b.Store.Current(), &last)
		case <-changed:
			b.publishSnapshot(client, b.Store.Current(), &last)
		}
	}
}

// publishSnapshot publishes the pin states and reachability that differ
// from what has been published before.
func (b *Bridge) publishSnapshot(client mqttapi.Client, snap model.PinStateSnapshot, last *published) {
	if !last.valid {
		last.states = make(map[model.PinID]model.PinState)
	}
	for _, id := range b.Store.Pins().IDs() {
		value := snap.Get(id)
		if prev, found := last.states[id]; last.valid && found && prev == value {
			continue
		}
		if err := b.publish(client, b.StateTopic(id), formatBool(bool(value)), true); err != nil {
			b.log.Warn().Err(err).Str("pin", string(id)).Msg("failed to publish pin state")
			continue
		}
		publishedTotal.WithLabelValues("state").Inc()
		last.states[id] = value
	}
	if !last.valid || last.reachable != snap.Reachable {
		status := statusOffline
		if snap.Reachable {
			status = statusOnline
		}
		if err := b.publish(client, b.StatusTopic(), status, true); err != nil {
			b.log.Warn().Err(err).Msg("failed to publish device status")
		} else {
			publishedTotal.WithLabelValues("status").Inc()
			last.reachable = snap.Reachable
		}
	}
	last.valid = true
}

// onCommand returns the handler for command messages.
func (b *Bridge) onCommand(ctx context.Context) mqttapi.MessageHandler {
	return func(client mqttapi.Client, msg mqttapi.Message) {
		topic := strings.TrimPrefix(msg.Topic(), b.TopicPrefix)
		parts := strings.Split(topic, "/")
		if len(parts) != 3 || parts[0] != "pin" || parts[2] != "command" {
			// Not a valid message
			return
		}
		payload := strings.TrimSpace(string(msg.Payload()))
		log := b.log.With().
			Str("topic", msg.Topic()).
			Str("payload", payload).
			Logger()
		value, err := parseBool(payload)
		if err != nil {
			commandsTotal.WithLabelValues("invalid").Inc()
			log.Warn().Err(err).Msg("Invalid payload in command message")
			return
		}
		if b.commands != nil && !b.commands.Allow() {
			commandsTotal.WithLabelValues("rate-limited").Inc()
			log.Warn().Msg("Too many commands, dropping command")
			return
		}
		state := model.PinState(value).Token()
		// Do not block the MQTT client while the device is busy
		go func() {
			result, text := b.Controller.Toggle(ctx, parts[1], state)
			if result.OK {
				commandsTotal.WithLabelValues("success").Inc()
				log.Debug().Msg(text)
			} else {
				commandsTotal.WithLabelValues(string(result.Reason)).Inc()
				log.Warn().Str("reason", string(result.Reason)).Msg(text)
			}
		}()
	}
}

// publish a payload and wait (for a limited time) for the result.
func (b *Bridge) publish(client mqttapi.Client, topic, payload string, retain bool) error {
	qos := byte(qosAtMostOnce)
	if retain {
		qos = qosAtLeastOnce
	}
	token := client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		publishFailuresTotal.Inc()
		return errors.Errorf("failed to deliver MQTT message to '%s' in time", topic)
	}
	if err := token.Error(); err != nil {
		publishFailuresTotal.Inc()
		return errors.Wrapf(err, "failed to deliver MQTT message to '%s'", topic)
	}
	return nil
}

func (b *Bridge) attachLogs(client mqttapi.Client) {
	if b.LogWriter == nil {
		return
	}
	b.LogWriter.SetDestination(b.LogTopic(), &logPublisher{client: client})
	b.LogWriter.Enable(b.PublishLogs)
}

func (b *Bridge) detachLogs() {
	if b.LogWriter == nil {
		return
	}
	b.LogWriter.Enable(false)
	b.LogWriter.SetDestination("", nil)
}

// logPublisher publishes log lines without waiting.
type logPublisher struct {
	mutex  sync.Mutex
	client mqttapi.Client
}

func (p *logPublisher) Publish(topic string, payload []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.client.Publish(topic, qosAtMostOnce, false, payload)
	return nil
}

// Parse a string into a bool
func parseBool(str string) (bool, error) {
	str = strings.ToLower(str)
	switch str {
	case "1", "t", "true", "on", "yes":
		return true, nil
	case "0", "f", "false", "off", "no":
		return false, nil
	}
	return false, errors.Errorf("invalid bool value '%s'", str)
}

// format a bool as string
func formatBool(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
