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

// Package clocktest adapts clockwork's fake clocks to the internal.Clock
// interface. Compatibility between Go interfaces is shallow: a method that
// returns another interface is compared by its exact (nominal) result type,
// so the NewTicker method of clockwork.Clock is not assignable to
// internal.Clock even though the two Ticker interfaces are structurally
// identical. The wrapper below re-boxes the return value.
package clocktest

import (
	"context"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/internal"
	"github.com/jonboulle/clockwork"
)

// FakeClock is a Clock which can be manually advanced through time.
type FakeClock interface {
	internal.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, waiters int) error
}

// NewFakeClock creates a new FakeClock using clockwork.
func NewFakeClock() FakeClock {
	return fakeClock{clockwork.NewFakeClock()}
}

type fakeClock struct {
	*clockwork.FakeClock
}

var _ FakeClock = fakeClock{}

func (f fakeClock) NewTicker(d time.Duration) internal.Ticker {
	return f.FakeClock.NewTicker(d)
}
