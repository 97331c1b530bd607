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

package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/binkynet/PinControl/model"
)

const (
	// EnvPrefix is the prefix of all environment variables
	EnvPrefix = "PINCONTROL_"
)

var (
	maskAny = errors.WithStack
)

// LookupFunc looks up the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from defaults, an optional YAML file and
// the environment (in that order of precedence, last wins).
// Before the environment is read, the given .env files are loaded
// (".env" when none are given; a missing default file is ignored).
func Load(path string, envFiles ...string) (model.Configuration, error) {
	conf := model.DefaultConfiguration()
	if path != "" {
		if err := LoadFile(path, &conf); err != nil {
			return conf, maskAny(err)
		}
	}
	if err := LoadEnvFiles(envFiles...); err != nil {
		return conf, maskAny(err)
	}
	if err := ApplyEnv(&conf, os.LookupEnv); err != nil {
		return conf, maskAny(err)
	}
	return conf, nil
}

// LoadEnvFiles loads the given .env files into the process environment.
// Variables that are already set are not overwritten.
func LoadEnvFiles(envFiles ...string) error {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrap(err, "failed to load .env")
		}
		return nil
	}
	if err := godotenv.Load(envFiles...); err != nil {
		return errors.Wrapf(err, "failed to load %s", strings.Join(envFiles, ", "))
	}
	return nil
}

// LoadFile reads the YAML file at the given path into the given configuration.
// Settings missing in the file keep their current value.
func LoadFile(path string, conf *model.Configuration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := Parse(data, conf); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// Parse the given YAML document into the given configuration.
// Unknown fields are rejected.
func Parse(data []byte, conf *model.Configuration) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(conf); err != nil && err != io.EOF {
		return errors.Wrap(model.ValidationError, err.Error())
	}
	return nil
}

// ApplyEnv overrides settings in the given configuration with the
// PINCONTROL_* environment variables found using the given lookup function.
// All invalid values are reported at once.
func ApplyEnv(conf *model.Configuration, lookup LookupFunc) error {
	e := envReader{lookup: lookup}
	e.str("DEVICE", &conf.Device.Address)
	e.list("PINS", &conf.Device.Pins)
	e.duration("SET_TIMEOUT", &conf.Device.SetTimeout)
	e.duration("STATUS_TIMEOUT", &conf.Device.StatusTimeout)
	e.int("RETRY_ATTEMPTS", &conf.Device.RetryAttempts)
	e.duration("RETRY_BACKOFF", &conf.Device.RetryBackoff)
	e.bool("FAIL_FAST_NOT_FOUND", &conf.Device.FailFastNotFound)
	e.int("MAX_CONCURRENT_REQUESTS", &conf.Device.MaxConcurrentRequests)
	e.duration("POLL_INTERVAL", &conf.Poll.Interval)
	e.str("HOST", &conf.Server.Host)
	e.int("PORT", &conf.Server.Port)
	e.str("MQTT_BROKER", &conf.MQTT.Broker)
	e.str("MQTT_CLIENT_ID", &conf.MQTT.ClientID)
	e.str("MQTT_USERNAME", &conf.MQTT.UserName)
	e.str("MQTT_PASSWORD", &conf.MQTT.Password)
	e.str("MQTT_TOPIC_PREFIX", &conf.MQTT.TopicPrefix)
	e.bool("MQTT_PUBLISH_LOGS", &conf.MQTT.PublishLogs)
	e.duration("MQTT_COMMAND_INTERVAL", &conf.MQTT.CommandInterval)
	e.int("MQTT_COMMAND_BURST", &conf.MQTT.CommandBurst)
	return e.problems.AsError()
}

// SplitList splits a comma separated list, dropping empty elements.
func SplitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

type envReader struct {
	lookup   LookupFunc
	problems aerr.AggregateError
}

func (e *envReader) get(name string) (string, string, bool) {
	key := EnvPrefix + name
	value, found := e.lookup(key)
	value = strings.TrimSpace(value)
	return key, value, found && value != ""
}

func (e *envReader) str(name string, target *string) {
	if _, value, found := e.get(name); found {
		*target = value
	}
}

func (e *envReader) list(name string, target *[]string) {
	if _, value, found := e.get(name); found {
		*target = SplitList(value)
	}
}

func (e *envReader) int(name string, target *int) {
	key, value, found := e.get(name)
	if !found {
		return
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		e.problems.Add(errors.Wrapf(model.ValidationError, "%s: invalid number '%s'", key, value))
		return
	}
	*target = v
}

func (e *envReader) bool(name string, target *bool) {
	key, value, found := e.get(name)
	if !found {
		return
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		e.problems.Add(errors.Wrapf(model.ValidationError, "%s: invalid boolean '%s'", key, value))
		return
	}
	*target = v
}

func (e *envReader) duration(name string, target *time.Duration) {
	key, value, found := e.get(name)
	if !found {
		return
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		e.problems.Add(errors.Wrapf(model.ValidationError, "%s: invalid duration '%s'", key, value))
		return
	}
	*target = v
}
