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
	"github.com/binkynet/PinControl/pkg/metrics"
)

const (
	subSystem = "device"
)

var (
	// Total number of set requests sent to the device per pin
	setAttemptsTotal = metrics.MustRegisterCounterVec(subSystem,
		"set_attempts_total",
		"Total number of set requests sent to the device per pin",
		"pin")
	// Total number of SetPin results per outcome
	setResultsTotal = metrics.MustRegisterCounterVec(subSystem,
		"set_results_total",
		"Total number of SetPin results per outcome",
		"outcome")
	// Total number of status requests per outcome
	statusRequestsTotal = metrics.MustRegisterCounterVec(subSystem,
		"status_requests_total",
		"Total number of status requests per outcome",
		"outcome")
	// Duration of HTTP requests towards the device
	requestDuration = metrics.MustRegisterHistogramVec(subSystem,
		"request_duration_seconds",
		"Duration of HTTP requests towards the device",
		"endpoint")
)
