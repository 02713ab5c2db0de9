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

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/internal/clocktest"
	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReporter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	aggregator, reg := newTestAggregator(t)
	reg.ApplyOutcome(ifaceA, intf.Outcome{Success: true, Elapsed: 100 * time.Millisecond})

	core, logs := observer.New(zap.InfoLevel)
	testClock := clocktest.NewFakeClock()
	reporter := NewReporter(aggregator, 30*time.Second, zap.New(core))
	reporter.clock = testClock
	reporter.Start(ctx)
	t.Cleanup(func() {
		err := reporter.Close()
		assert.NoError(t, err)
	})

	// Nothing is reported before the first interval elapses.
	require.NoError(t, testClock.BlockUntilContext(ctx, 1))
	assert.Zero(t, logs.Len())

	testClock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("interface report").Len() == 2
	}, 5*time.Second, time.Millisecond)

	entries := logs.FilterMessage("interface report").All()
	fields := entries[0].ContextMap()
	assert.Equal(t, "eth0", fields["interface"])
	assert.EqualValues(t, 1, fields["successes"])
	assert.Equal(t, "healthy", fields["status"])
}
