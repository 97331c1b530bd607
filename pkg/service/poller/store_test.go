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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/PinControl/model"
)

func TestNewStoreIsEmpty(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0", "D1"))
	snap := store.Current()
	assert.False(t, snap.Reachable)
	assert.True(t, snap.CapturedAt.IsZero())
	assert.Equal(t, map[model.PinID]model.PinState{"D0": model.Off, "D1": model.Off}, snap.States)
}

func TestCurrentReturnsCopy(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	snap := store.Current()
	snap.States["D0"] = model.On
	assert.Equal(t, model.Off, store.Current().Get("D0"))
}

func TestPublishFillsMissingPins(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0", "D1"))
	store.MarkUnreachable("Not connected")
	store.Publish(model.PinStateSnapshot{
		States: map[model.PinID]model.PinState{"D1": model.On, "X9": model.On},
	})
	snap := store.Current()
	assert.True(t, snap.Reachable)
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.CapturedAt.IsZero())
	assert.Equal(t, map[model.PinID]model.PinState{"D0": model.Off, "D1": model.On}, snap.States)
}

func TestSetProvisionalUnknownPin(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	_, err := store.SetProvisional("D7", model.On)
	require.Error(t, err)
	assert.True(t, model.IsInvalidPin(err))
}

func TestRollbackRestoresPrevious(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0", "D1"))
	p, err := store.SetProvisional("D1", model.On)
	require.NoError(t, err)
	assert.Equal(t, model.On, store.Current().Get("D1"))

	assert.True(t, store.Rollback(p))
	assert.Equal(t, model.Off, store.Current().Get("D1"))
	// Second rollback is a no-op
	assert.False(t, store.Rollback(p))
}

func TestRollbackLosesAgainstFresherPoll(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0", "D1"))
	p, err := store.SetProvisional("D1", model.On)
	require.NoError(t, err)

	store.Publish(model.PinStateSnapshot{
		States: map[model.PinID]model.PinState{"D1": model.On},
	})
	assert.False(t, store.Rollback(p))
	assert.Equal(t, model.On, store.Current().Get("D1"))
}

func TestRollbackLosesAgainstNewerUpdate(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	p1, err := store.SetProvisional("D0", model.On)
	require.NoError(t, err)
	_, err = store.SetProvisional("D0", model.Off)
	require.NoError(t, err)

	assert.False(t, store.Rollback(p1))
	assert.Equal(t, model.Off, store.Current().Get("D0"))
}

func TestSubscribeReceivesChanges(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	var mutex sync.Mutex
	var received []model.PinStateSnapshot
	cancel := store.Subscribe(func(snap model.PinStateSnapshot) {
		mutex.Lock()
		defer mutex.Unlock()
		received = append(received, snap)
	})
	defer cancel()

	store.Publish(model.PinStateSnapshot{
		States: map[model.PinID]model.PinState{"D0": model.On},
	})
	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(received) == 1 && received[0].Reachable && received[0].Get("D0") == model.On
	}, time.Second, time.Millisecond*5)
}

func TestRollbackRestoresConfirmedValue(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	pOn, err := store.SetProvisional("D0", model.On)
	require.NoError(t, err)
	pOff, err := store.SetProvisional("D0", model.Off)
	require.NoError(t, err)
	assert.Equal(t, model.On, pOff.Previous)

	// Both requests fail, the first one finishes first
	assert.False(t, store.Rollback(pOn))
	assert.True(t, store.Rollback(pOff))
	assert.Equal(t, model.Off, store.Current().Get("D0"))
}

func TestRollbackAfterConfirm(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	pOn, err := store.SetProvisional("D0", model.On)
	require.NoError(t, err)
	pOff, err := store.SetProvisional("D0", model.Off)
	require.NoError(t, err)

	store.Confirm(pOn)
	assert.True(t, store.Rollback(pOff))
	assert.Equal(t, model.On, store.Current().Get("D0"))
}

func TestCancelOneSubscriberKeepsOthers(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	var mutex sync.Mutex
	counts := make(map[string]int)
	subscriber := func(name string) func(model.PinStateSnapshot) {
		return func(model.PinStateSnapshot) {
			mutex.Lock()
			defer mutex.Unlock()
			counts[name]++
		}
	}
	cancelA := store.Subscribe(subscriber("a"))
	cancelB := store.Subscribe(subscriber("b"))
	defer cancelB()
	cancelA()

	store.Publish(model.PinStateSnapshot{
		States: map[model.PinID]model.PinState{"D0": model.On},
	})
	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return counts["b"] == 1
	}, time.Second, time.Millisecond*5)
	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, 0, counts["a"])
}

func TestChangedFailureReasonNotifies(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0"))
	var mutex sync.Mutex
	var reasons []string
	cancel := store.Subscribe(func(snap model.PinStateSnapshot) {
		mutex.Lock()
		defer mutex.Unlock()
		reasons = append(reasons, snap.LastError)
	})
	defer cancel()

	store.MarkUnreachable("HTTP 500")
	store.MarkUnreachable("HTTP 500")
	store.MarkUnreachable("Not connected")
	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(reasons) == 2
	}, time.Second, time.Millisecond*5)
	mutex.Lock()
	defer mutex.Unlock()
	assert.ElementsMatch(t, []string{"HTTP 500", "Not connected"}, reasons)
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore(model.MustNewPinSet("D0", "D1"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch (i + j) % 3 {
				case 0:
					store.Publish(model.PinStateSnapshot{
						States: map[model.PinID]model.PinState{"D0": j%2 == 0},
					})
				case 1:
					store.MarkUnreachable("Not connected")
				default:
					p, _ := store.SetProvisional("D1", model.On)
					store.Rollback(p)
				}
				snap := store.Current()
				assert.Len(t, snap.States, 2)
			}
		}(i)
	}
	wg.Wait()
}
