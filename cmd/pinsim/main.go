//    Copyright 2026 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/devicesim"
)

const (
	defaultPort = 8090
)

func main() {
	var levelFlag string
	var host string
	var port int
	var pins []string
	var gpioMapping string
	var activeLow bool
	var trailingComma bool
	var latency time.Duration

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVar(&host, "host", "0.0.0.0", "Host address the simulator will listen on")
	pflag.IntVar(&port, "port", defaultPort, "Port the simulator will listen on")
	pflag.StringSliceVar(&pins, "pins", model.DefaultPins, "Pins of the simulated device (memory backend)")
	pflag.StringVar(&gpioMapping, "gpio", "", "Drive local GPIO lines instead of memory, e.g. D0=16,D1=5")
	pflag.BoolVar(&activeLow, "active-low", false, "GPIO lines are active low")
	pflag.BoolVar(&trailingComma, "trailing-comma", false, "Emit a trailing comma in the status document")
	pflag.DurationVar(&latency, "latency", 0, "Delay added to every request")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	} else {
		logger = logger.Level(level)
	}

	var backend devicesim.Backend
	if gpioMapping != "" {
		mapping, err := devicesim.ParseGPIOMapping(gpioMapping)
		if err != nil {
			Exitf("Invalid GPIO mapping: %v\n", err)
		}
		backend, err = devicesim.NewGPIOBackend(mapping, activeLow, nil)
		if err != nil {
			Exitf("Failed to initialize GPIO: %v\n", err)
		}
	} else {
		pinSet, err := model.NewPinSet(pins...)
		if err != nil {
			Exitf("Invalid pins: %v\n", err)
		}
		backend = devicesim.NewMemoryBackend(pinSet)
	}

	sim := devicesim.New(devicesim.Config{
		Host:          host,
		Port:          port,
		TrailingComma: trailingComma,
		Latency:       latency,
	}, logger, backend)

	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	err := sim.Run(ctx)
	if c, ok := backend.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to release GPIO lines")
		}
	}
	if err != nil {
		Exitf("Simulator failed: %v\n", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
