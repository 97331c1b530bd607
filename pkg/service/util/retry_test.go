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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryStopsWhenDone(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: BackoffLinear(time.Millisecond)}
	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		if attempt == 2 {
			return true, nil
		}
		return false, errors.New("boom")
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestRetryExhausts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, errors.New("attempt failed")
	})
	assert.EqualError(t, err, "attempt failed")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryAtLeastOnce(t *testing.T) {
	calls := 0
	attempts, _ := RetryPolicy{}.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoffIsLinear(t *testing.T) {
	b := BackoffLinear(300 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, b(1))
	assert.Equal(t, 600*time.Millisecond, b(2))
}

func TestRetryCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, Backoff: BackoffLinear(time.Hour)}
	calls := 0
	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		cancel()
		return false, errors.New("first")
	})
	assert.EqualError(t, err, "first")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}
