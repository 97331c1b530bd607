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
	"os"
	"time"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/PinControl/model"
	"github.com/binkynet/PinControl/pkg/config"
	"github.com/binkynet/PinControl/pkg/logging"
	"github.com/binkynet/PinControl/pkg/mcpserver"
	"github.com/binkynet/PinControl/pkg/mqttbridge"
	"github.com/binkynet/PinControl/pkg/server"
	"github.com/binkynet/PinControl/pkg/service/control"
	"github.com/binkynet/PinControl/pkg/service/pinclient"
	"github.com/binkynet/PinControl/pkg/service/poller"
	"github.com/binkynet/PinControl/pkg/service/tools"
)

const (
	projectName = "PinControl"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	var levelFlag string
	var configPath string
	var envFiles []string
	var mcpStdio bool
	var device string
	var pins []string
	var serverHost string
	var serverPort int
	var pollInterval time.Duration
	var setTimeout time.Duration
	var retryAttempts int
	var mqttBroker string
	var mqttPrefix string

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of YAML configuration file")
	pflag.StringSliceVar(&envFiles, "env-file", nil, "Path of .env file(s) to load (defaults to .env if present)")
	pflag.BoolVar(&mcpStdio, "mcp-stdio", false, "Serve the agent tools over MCP on stdin/stdout instead of HTTP")
	pflag.StringVarP(&device, "device", "d", "", "Address of the device (host, host:port or URL)")
	pflag.StringSliceVar(&pins, "pins", model.DefaultPins, "Pins of the device")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", model.DefaultServerPort, "Port the HTTP server will listen on")
	pflag.DurationVar(&pollInterval, "poll-interval", model.DefaultPollInterval, "Time between status polls")
	pflag.DurationVar(&setTimeout, "set-timeout", model.DefaultSetTimeout, "Timeout of a single set request")
	pflag.IntVar(&retryAttempts, "retry-attempts", model.DefaultRetryAttempts, "Maximum number of set attempts")
	pflag.StringVar(&mqttBroker, "mqtt-broker", "", "Address of the MQTT broker (bridge disabled when empty)")
	pflag.StringVar(&mqttPrefix, "mqtt-prefix", model.DefaultMQTTTopicPrefix, "Prefix of all MQTT topics")
	pflag.Parse()

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mqttLogs := logging.NewMQTTWriter(ctx)
	logOutput := logging.NewMultiWriter(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := zerolog.New(logOutput).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	} else {
		logger = logger.Level(level)
	}

	// Load configuration; explicit flags take precedence
	conf, err := config.Load(configPath, envFiles...)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}
	flags := pflag.CommandLine
	if flags.Changed("device") {
		conf.Device.Address = device
	}
	if flags.Changed("pins") {
		conf.Device.Pins = pins
	}
	if flags.Changed("host") {
		conf.Server.Host = serverHost
	}
	if flags.Changed("port") {
		conf.Server.Port = serverPort
	}
	if flags.Changed("poll-interval") {
		conf.Poll.Interval = pollInterval
	}
	if flags.Changed("set-timeout") {
		conf.Device.SetTimeout = setTimeout
	}
	if flags.Changed("retry-attempts") {
		conf.Device.RetryAttempts = retryAttempts
	}
	if flags.Changed("mqtt-broker") {
		conf.MQTT.Broker = mqttBroker
	}
	if flags.Changed("mqtt-prefix") {
		conf.MQTT.TopicPrefix = mqttPrefix
	}
	if err := conf.Validate(); err != nil {
		Exitf("Invalid configuration: %v\n", err)
	}
	if conf.MQTT.Broker != "" && conf.MQTT.PublishLogs {
		logOutput.Add(mqttLogs)
	}

	svc, err := newService(conf, logger, mqttLogs)
	if err != nil {
		Exitf("Failed to initialize service: %v\n", err)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	if mcpStdio {
		// Stdout belongs to the MCP protocol
		svc.poller.Start(ctx)
		if err := svc.mcp.ServeStdio(); err != nil {
			Exitf("MCP server failed: %v\n", err)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.poller.Run(ctx) })
	g.Go(func() error { return svc.httpServer.Run(ctx) })
	if svc.bridge != nil {
		g.Go(func() error { return svc.bridge.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// service holds all components of the process.
type service struct {
	poller     *poller.Poller
	mcp        *mcpserver.Server
	httpServer *server.Server
	bridge     *mqttbridge.Bridge
}

// newService builds all components from the given configuration.
func newService(conf model.Configuration, logger zerolog.Logger, mqttLogs logging.MQTTWriter) (*service, error) {
	clientConf, err := pinclient.NewConfig(conf.Device)
	if err != nil {
		return nil, maskAny(err)
	}
	client, err := pinclient.New(clientConf, pinclient.Dependencies{Log: logger})
	if err != nil {
		return nil, maskAny(err)
	}
	logger.Info().
		Str("device", client.BaseURL()).
		Str("pins", client.Pins().String()).
		Msg("Using device")

	store := poller.NewStore(client.Pins())
	p := poller.New(poller.Config{
		Interval: conf.Poll.Interval,
	}, poller.Dependencies{
		Log:    logger,
		Client: client,
		Store:  store,
	})
	ctrl := control.New(control.Dependencies{
		Log:    logger,
		Client: client,
		Store:  store,
	})
	registry := tools.NewRegistry(logger)
	if err := tools.RegisterPinTools(registry, client.Pins(), ctrl, client, store); err != nil {
		return nil, maskAny(err)
	}
	mcpSrv := mcpserver.New(mcpserver.Config{
		Name:    "pincontrol",
		Version: projectVersion,
	}, mcpserver.Dependencies{
		Log:      logger,
		Registry: registry,
	})
	httpServer, err := server.New(server.Config{
		Host: conf.Server.Host,
		Port: conf.Server.Port,
	}, server.Dependencies{
		Log:        logger,
		Store:      store,
		Poller:     p,
		Controller: ctrl,
		Client:     client,
		Registry:   registry,
		MCP:        mcpSrv.Handler(),
	})
	if err != nil {
		return nil, maskAny(err)
	}
	result := &service{
		poller:     p,
		mcp:        mcpSrv,
		httpServer: httpServer,
	}
	if conf.MQTT.Broker != "" {
		result.bridge, err = mqttbridge.New(mqttbridge.NewConfig(conf.MQTT), mqttbridge.Dependencies{
			Log:        logger,
			Store:      store,
			Controller: ctrl,
			LogWriter:  mqttLogs,
		})
		if err != nil {
			return nil, maskAny(err)
		}
	}
	return result, nil
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
