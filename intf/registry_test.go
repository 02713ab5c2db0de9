// Copyright 2024-2025 Ali Sufyan Baig
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package intf

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		FailureThreshold:      3,
		DegradedResponseTime:  2 * time.Second,
		ProbeInterval:         15 * time.Second,
		RecoveryProbeInterval: 5 * time.Second,
		MaxConnsPerInterface:  100,
		ConnectTimeout:        2 * time.Second,
		IdleTimeout:           10 * time.Second,
		MaxConnectAttempts:    3,
	}
}

func newTestRegistry(t *testing.T, ids ...Identity) *Registry {
	t.Helper()
	reg, err := NewRegistry(testPolicy(), nil)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, reg.Register(id))
	}
	return reg
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	require.Error(t, reg.Register(eth0))

	rec, ok := reg.Get(eth0)
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, rec.Status)
	assert.True(t, rec.Status.Eligible())

	_, ok = reg.Get(Identity{Name: "wlan0", IP: "192.0.2.2"})
	assert.False(t, ok)
}

func TestRegistryInvalidPolicy(t *testing.T) {
	t.Parallel()
	policy := testPolicy()
	policy.FailureThreshold = 0
	_, err := NewRegistry(policy, nil)
	require.Error(t, err)
}

func TestRegistryListOrder(t *testing.T) {
	t.Parallel()
	wlan0 := Identity{Name: "wlan0", IP: "192.0.2.2"}
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	eth0alias := Identity{Name: "eth0", IP: "192.0.2.9"}
	reg := newTestRegistry(t, wlan0, eth0alias, eth0)

	records := reg.List()
	require.Len(t, records, 3)
	assert.Equal(t, eth0, records[0].Identity)
	assert.Equal(t, eth0alias, records[1].Identity)
	assert.Equal(t, wlan0, records[2].Identity)
}

func TestApplyOutcomeCounters(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	reg.ApplyOutcome(eth0, Outcome{Success: true, Elapsed: 100 * time.Millisecond, BytesSent: 10, BytesReceived: 20})
	reg.ApplyOutcome(eth0, Outcome{Success: true, Elapsed: 300 * time.Millisecond, BytesSent: 5, BytesReceived: 5})
	reg.ApplyOutcome(eth0, Outcome{Success: false, Err: errors.New("connection refused")})

	rec, ok := reg.Get(eth0)
	require.True(t, ok)
	assert.Equal(t, uint64(2), rec.SuccessCount)
	assert.Equal(t, uint64(1), rec.FailureCount)
	assert.Equal(t, uint64(2), rec.CompletedCount)
	assert.Equal(t, 200*time.Millisecond, rec.AvgResponseTime())
	assert.Equal(t, int64(15), rec.BytesSent)
	assert.Equal(t, int64(25), rec.BytesReceived)
	assert.InDelta(t, 2.0/3.0, rec.SuccessRate(), 1e-9)
}

func TestApplyOutcomeConcurrent(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	wlan0 := Identity{Name: "wlan0", IP: "192.0.2.2"}
	reg := newTestRegistry(t, eth0, wlan0)

	const workers = 16
	const perWorker = 250
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				reg.ApplyOutcome(eth0, Outcome{
					Success: j%2 == 0,
					Elapsed: time.Millisecond,
				})
				if i%2 == 0 {
					reg.ApplyOutcome(wlan0, Outcome{Success: true})
				}
			}
		}(i)
	}
	wg.Wait()

	rec, ok := reg.Get(eth0)
	require.True(t, ok)
	// No double counting and no lost updates: N outcomes in, N counted.
	assert.Equal(t, uint64(workers*perWorker), rec.SuccessCount+rec.FailureCount)
	assert.Equal(t, uint64(workers*perWorker/2), rec.SuccessCount)
}

func TestRegisterConcurrentWithList(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)

	// Registration re-sorts the identity order while readers snapshot it;
	// List must hand out a copy so late registrations never corrupt an
	// in-progress iteration.
	const interfaces = 64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for iter := 0; iter < 1000; iter++ {
			for _, rec := range reg.List() {
				if rec.Identity.Name == "" {
					t.Error("list returned an empty identity")
					return
				}
			}
		}
	}()
	for i := 0; i < interfaces; i++ {
		require.NoError(t, reg.Register(Identity{
			Name: fmt.Sprintf("eth%d", i),
			IP:   fmt.Sprintf("192.0.2.%d", i+1),
		}))
	}
	<-done

	records := reg.List()
	require.Len(t, records, interfaces)
	for i := 0; i < len(records)-1; i++ {
		assert.True(t, records[i].Identity.Less(records[i+1].Identity))
	}
}

func TestConsecutiveFailuresResetOnSuccess(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	reg.ApplyOutcome(eth0, Outcome{Success: false})
	reg.ApplyOutcome(eth0, Outcome{Success: false})
	rec, _ := reg.Get(eth0)
	assert.Equal(t, 2, rec.ConsecutiveFailures)

	reg.ApplyOutcome(eth0, Outcome{Success: true})
	rec, _ = reg.Get(eth0)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}

func TestFailureThresholdTransition(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	reg.ApplyOutcome(eth0, Outcome{Success: true})
	rec, _ := reg.Get(eth0)
	assert.Equal(t, StatusHealthy, rec.Status)

	// One failure below the threshold degrades, two more trip failed.
	reg.ApplyOutcome(eth0, Outcome{Success: false})
	rec, _ = reg.Get(eth0)
	assert.Equal(t, StatusDegraded, rec.Status)
	assert.True(t, rec.Status.Eligible())

	reg.ApplyOutcome(eth0, Outcome{Success: false})
	reg.ApplyOutcome(eth0, Outcome{Success: false})
	rec, _ = reg.Get(eth0)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.False(t, rec.Status.Eligible())
	assert.Empty(t, reg.ListEligible())

	// A successful probe restores eligibility and resets the streak.
	reg.ApplyOutcome(eth0, Outcome{Origin: OriginProbe, Success: true, Elapsed: 50 * time.Millisecond})
	rec, _ = reg.Get(eth0)
	assert.Equal(t, StatusHealthy, rec.Status)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
	assert.False(t, rec.LastProbeAt.IsZero())
	require.Len(t, reg.ListEligible(), 1)
}

func TestSlowSuccessMarksDegraded(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	reg.ApplyOutcome(eth0, Outcome{Success: true, Elapsed: 10 * time.Second})
	rec, _ := reg.Get(eth0)
	assert.Equal(t, StatusDegraded, rec.Status)

	// Enough fast completions pull the average back under the threshold.
	for i := 0; i < 20; i++ {
		reg.ApplyOutcome(eth0, Outcome{Success: true, Elapsed: 10 * time.Millisecond})
	}
	rec, _ = reg.Get(eth0)
	assert.Equal(t, StatusHealthy, rec.Status)
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	require.True(t, reg.Acquire(eth0))
	require.True(t, reg.Acquire(eth0))
	rec, _ := reg.Get(eth0)
	assert.Equal(t, 2, rec.ActiveConnections)

	// Probe outcomes never touch the in-flight count.
	reg.ApplyOutcome(eth0, Outcome{Origin: OriginProbe, Success: false})
	rec, _ = reg.Get(eth0)
	assert.Equal(t, 2, rec.ActiveConnections)

	reg.Release(eth0)
	reg.Release(eth0)
	reg.Release(eth0)
	rec, _ = reg.Get(eth0)
	assert.Equal(t, 0, rec.ActiveConnections)

	assert.False(t, reg.Acquire(Identity{Name: "nope", IP: "192.0.2.99"}))
}

func TestCompareAndSetStatus(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	reg := newTestRegistry(t, eth0)

	assert.False(t, reg.CompareAndSetStatus(eth0, StatusFailed, StatusUnknown))

	require.True(t, reg.SetStatus(eth0, StatusFailed))
	assert.True(t, reg.CompareAndSetStatus(eth0, StatusFailed, StatusUnknown))
	rec, _ := reg.Get(eth0)
	assert.Equal(t, StatusUnknown, rec.Status)
}

func TestResetStats(t *testing.T) {
	t.Parallel()
	eth0 := Identity{Name: "eth0", IP: "192.0.2.1"}
	wlan0 := Identity{Name: "wlan0", IP: "192.0.2.2"}
	reg := newTestRegistry(t, eth0, wlan0)

	reg.Acquire(eth0)
	reg.ApplyOutcome(eth0, Outcome{Success: true, Elapsed: time.Second, BytesSent: 100})
	reg.ApplyOutcome(wlan0, Outcome{Success: false})

	require.True(t, reg.ResetStats(eth0))
	rec, _ := reg.Get(eth0)
	assert.Equal(t, uint64(0), rec.SuccessCount)
	assert.Equal(t, int64(0), rec.BytesSent)
	assert.Equal(t, time.Duration(0), rec.TotalResponseTime)
	// Status and in-flight count survive a reset.
	assert.Equal(t, StatusHealthy, rec.Status)
	assert.Equal(t, 1, rec.ActiveConnections)

	reg.ResetAllStats()
	rec, _ = reg.Get(wlan0)
	assert.Equal(t, uint64(0), rec.FailureCount)

	assert.False(t, reg.ResetStats(Identity{Name: "nope", IP: "192.0.2.99"}))
}
