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

package logging

import (
	"github.com/binkynet/PinControl/pkg/metrics"
)

const (
	subSystem = "logging"
)

var (
	// Log lines dropped because the MQTT queue was full
	droppedLinesTotal = metrics.MustRegisterCounter(subSystem,
		"mqtt_dropped_lines_total",
		"Log lines dropped because the MQTT queue was full")
	publishFailuresTotal = metrics.MustRegisterCounter(subSystem,
		"mqtt_publish_failures_total",
		"Log lines that could not be published to MQTT")
)
