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

package poller

import (
	"github.com/binkynet/PinControl/pkg/metrics"
)

const (
	subSystem = "poller"
)

var (
	// Total number of poll cycles per outcome
	pollCyclesTotal = metrics.MustRegisterCounterVec(subSystem,
		"cycles_total",
		"Total number of poll cycles per outcome",
		"outcome")
	// 1 if the last poll reached the device, 0 otherwise
	reachableGauge = metrics.MustRegisterGauge(subSystem,
		"device_reachable",
		"1 if the last poll reached the device, 0 otherwise")
	// Unix time of the last successful poll
	lastSuccessGauge = metrics.MustRegisterGauge(subSystem,
		"last_success_timestamp_seconds",
		"Unix time of the last successful poll")
)
