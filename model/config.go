package model

import (
	"net/url"
	"strings"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
)

// Configuration holds the configuration of the pin controller.
type Configuration struct {
	// Remote device settings
	Device DeviceConfig `yaml:"device"`
	// Status poller settings
	Poll PollConfig `yaml:"poll"`
	// HTTP API settings
	Server ServerConfig `yaml:"server"`
	// MQTT bridge settings
	MQTT MQTTConfig `yaml:"mqtt"`
}

// DeviceConfig describes how to reach the remote device.
type DeviceConfig struct {
	// Host, host:port or full base URL of the device (e.g. a tunnel hostname)
	Address string `yaml:"address"`
	// Pins that can be controlled
	Pins []string `yaml:"pins"`
	// Timeout of a single set request
	SetTimeout time.Duration `yaml:"set_timeout"`
	// Timeout of a single status request
	StatusTimeout time.Duration `yaml:"status_timeout"`
	// Maximum number of set attempts
	RetryAttempts int `yaml:"retry_attempts"`
	// Backoff step between set attempts (multiplied by the attempt number)
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// If set, a 404 answer to a set request is not retried
	FailFastNotFound bool `yaml:"fail_fast_not_found"`
	// Maximum number of requests in flight towards the device
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// PollConfig holds the status poller settings.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MQTTConfig holds the MQTT bridge settings.
// The bridge is disabled when Broker is empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	UserName    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	PublishLogs bool   `yaml:"publish_logs"`
	// Minimum interval between accepted commands (0 disables limiting)
	CommandInterval time.Duration `yaml:"command_interval"`
	// Number of commands accepted in a burst
	CommandBurst int `yaml:"command_burst"`
}

const (
	DefaultSetTimeout            = time.Second * 10
	DefaultStatusTimeout         = time.Second * 10
	DefaultRetryAttempts         = 3
	DefaultRetryBackoff          = time.Millisecond * 300
	DefaultMaxConcurrentRequests = 2
	DefaultPollInterval          = time.Millisecond * 4500
	DefaultServerPort            = 7130
	DefaultMQTTTopicPrefix       = "/pincontrol/"
	DefaultMQTTCommandInterval   = time.Millisecond * 100
	DefaultMQTTCommandBurst      = 5
)

// DefaultPins is the pin set of an ESP8266 NodeMCU board.
var DefaultPins = []string{"D0", "D1", "D2", "D3", "D4", "D5", "D6", "D7", "D8"}

// DefaultConfiguration returns a configuration with all defaults filled in,
// except for the device address.
func DefaultConfiguration() Configuration {
	return Configuration{
		Device: DeviceConfig{
			Pins:                  append([]string(nil), DefaultPins...),
			SetTimeout:            DefaultSetTimeout,
			StatusTimeout:         DefaultStatusTimeout,
			RetryAttempts:         DefaultRetryAttempts,
			RetryBackoff:          DefaultRetryBackoff,
			FailFastNotFound:      true,
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		},
		Poll: PollConfig{
			Interval: DefaultPollInterval,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultServerPort,
		},
		MQTT: MQTTConfig{
			ClientID:        "pincontrol",
			TopicPrefix:     DefaultMQTTTopicPrefix,
			CommandInterval: DefaultMQTTCommandInterval,
			CommandBurst:    DefaultMQTTCommandBurst,
		},
	}
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
// All issues are reported at once.
func (c Configuration) Validate() error {
	var ae aerr.AggregateError
	if _, err := c.Device.BaseURL(); err != nil {
		ae.Add(err)
	}
	if _, err := c.Device.PinSet(); err != nil {
		ae.Add(err)
	}
	if c.Device.SetTimeout <= 0 {
		ae.Add(errors.Wrap(ValidationError, "set timeout must be positive"))
	}
	if c.Device.StatusTimeout <= 0 {
		ae.Add(errors.Wrap(ValidationError, "status timeout must be positive"))
	}
	if c.Device.RetryAttempts < 1 {
		ae.Add(errors.Wrapf(ValidationError, "retry attempts must be at least 1, got %d", c.Device.RetryAttempts))
	}
	if c.Device.RetryBackoff < 0 {
		ae.Add(errors.Wrap(ValidationError, "retry backoff must not be negative"))
	}
	if c.Device.MaxConcurrentRequests < 1 {
		ae.Add(errors.Wrapf(ValidationError, "max concurrent requests must be at least 1, got %d", c.Device.MaxConcurrentRequests))
	}
	if c.Poll.Interval <= 0 {
		ae.Add(errors.Wrap(ValidationError, "poll interval must be positive"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		ae.Add(errors.Wrapf(ValidationError, "invalid server port %d", c.Server.Port))
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		ae.Add(errors.Wrap(ValidationError, "MQTT client ID is empty"))
	}
	if c.MQTT.CommandInterval < 0 {
		ae.Add(errors.Wrap(ValidationError, "MQTT command interval must not be negative"))
	}
	if c.MQTT.CommandInterval > 0 && c.MQTT.CommandBurst < 1 {
		ae.Add(errors.Wrapf(ValidationError, "MQTT command burst must be at least 1, got %d", c.MQTT.CommandBurst))
	}
	return ae.AsError()
}

// BaseURL returns the normalized base URL of the device.
// A missing scheme defaults to http.
func (c DeviceConfig) BaseURL() (string, error) {
	addr := strings.TrimSpace(c.Address)
	if addr == "" {
		return "", errors.Wrap(ValidationError, "device address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", errors.Wrapf(ValidationError, "invalid device address '%s': %s", c.Address, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Wrapf(ValidationError, "unsupported scheme '%s' in device address", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.Wrapf(ValidationError, "device address '%s' has no host", c.Address)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// PinSet returns the configured pins as a set.
func (c DeviceConfig) PinSet() (PinSet, error) {
	ps, err := NewPinSet(c.Pins...)
	if err != nil {
		return PinSet{}, maskAny(err)
	}
	return ps, nil
}
