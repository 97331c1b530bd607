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
)

// BackoffFunc returns the delay to wait after the given (1 based) attempt
// before the next attempt is made.
type BackoffFunc func(attempt int) time.Duration

// BackoffLinear returns a backoff that waits step * attempt.
func BackoffLinear(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// RetryPolicy describes how often and how patiently an operation is retried.
type RetryPolicy struct {
	// Maximum number of attempts (values < 1 are treated as 1)
	MaxAttempts int
	// Delay between attempts. If nil, there is no delay.
	Backoff BackoffFunc
}

// AttemptFunc performs a single attempt.
// It returns done=true when no further attempts must be made,
// regardless of the returned error.
type AttemptFunc func(ctx context.Context, attempt int) (done bool, err error)

// Do runs the given attempt function until it reports done, all attempts
// are used or the context is canceled while waiting between attempts.
// It returns the number of attempts made and the error of the last attempt.
func (p RetryPolicy) Do(ctx context.Context, op AttemptFunc) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		done, err := op(ctx, attempt)
		lastErr = err
		if done || attempt == maxAttempts {
			return attempt, err
		}
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay <= 0 {
			if ctx.Err() != nil {
				return attempt, lastErr
			}
			continue
		}
		select {
		case <-ctx.Done():
			// Context canceled
			return attempt, lastErr
		case <-time.After(delay):
			// Retry
		}
	}
	return maxAttempts, lastErr
}
