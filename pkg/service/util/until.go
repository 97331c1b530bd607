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

package util

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	untilMinDelay = time.Millisecond * 10
	untilMaxDelay = time.Second * 5
)

// BackoffExponential returns a backoff that starts at min and grows by
// 50% per failed attempt, capped at max.
func BackoffExponential(min, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		delay := min
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * 1.5)
			if delay >= max {
				return max
			}
		}
		return delay
	}
}

// UntilCanceled continues to call the given callback
// until the given context is canceled.
// Consecutive failures slow down the loop, a success resets it.
func UntilCanceled(ctx context.Context, log zerolog.Logger, description string, cb func() error) error {
	return UntilCanceledWithBackoff(ctx, log, description, BackoffExponential(untilMinDelay, untilMaxDelay), cb)
}

// UntilCanceledWithBackoff is UntilCanceled with a custom backoff.
// The backoff is called with the number of consecutive failures.
func UntilCanceledWithBackoff(ctx context.Context, log zerolog.Logger, description string, backoff BackoffFunc, cb func() error) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			// Context canceled
			return nil
		}
		delay := untilMinDelay
		if err := cb(); err != nil {
			failures++
			log.Warn().Err(err).Int("failures", failures).Msgf("%s failed", description)
			delay = backoff(failures)
		} else {
			failures = 0
		}
		select {
		case <-ctx.Done():
			// Context canceled
			log.Info().Msgf("Stopping %s; context canceled", description)
			return nil
		case <-time.After(delay):
			// Continue
		}
	}
}
