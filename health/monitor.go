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

// Package health keeps interface statuses current even when no live
// traffic flows, and drives recovery of failed interfaces.
//
// The monitor runs one polling loop per cadence: a regular loop probing
// every non-failed interface, and a slower recovery loop retrying failed
// ones at a fixed interval. Probe results feed the registry through the
// same ApplyOutcome path as real traffic, so probes and live sessions
// share one status state machine.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/internal"
	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"go.uber.org/zap"
)

// Monitor periodically probes registered interfaces.
type Monitor struct {
	registry *intf.Registry
	prober   Prober
	policy   intf.Policy
	logger   *zap.Logger
	clock    internal.Clock

	cancel     context.CancelFunc
	doneSignal chan struct{}
}

// NewMonitor returns a monitor that is not yet running; call Start.
func NewMonitor(registry *intf.Registry, prober Prober, policy intf.Policy, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		registry:   registry,
		prober:     prober,
		policy:     policy,
		logger:     logger,
		clock:      internal.NewRealClock(),
		doneSignal: make(chan struct{}),
	}
}

// Start launches the two polling loops. Each loop sweeps once
// immediately and then on its tick. The loops stop when the context is
// cancelled or Close is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go m.run(ctx, &wg, m.policy.ProbeInterval, m.sweep)
	go m.run(ctx, &wg, m.policy.RecoveryProbeInterval, m.sweepFailed)
	go func() {
		wg.Wait()
		close(m.doneSignal)
	}()
}

// Close stops the polling loops and waits for them to finish.
func (m *Monitor) Close() error {
	m.cancel()
	<-m.doneSignal
	return nil
}

func (m *Monitor) run(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, sweep func(context.Context)) {
	defer wg.Done()
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// sweep probes every interface that is not failed. Failed interfaces
// belong to the recovery loop's slower cadence.
func (m *Monitor) sweep(ctx context.Context) {
	for _, rec := range m.registry.List() {
		if ctx.Err() != nil {
			return
		}
		if rec.Status == intf.StatusFailed {
			continue
		}
		m.probe(ctx, rec.Identity)
	}
}

// sweepFailed retries failed interfaces. Each one is flipped to unknown
// before probing; if real traffic already recovered it, the flip loses
// and the interface is skipped.
func (m *Monitor) sweepFailed(ctx context.Context) {
	for _, rec := range m.registry.List() {
		if ctx.Err() != nil {
			return
		}
		if rec.Status != intf.StatusFailed {
			continue
		}
		if !m.registry.CompareAndSetStatus(rec.Identity, intf.StatusFailed, intf.StatusUnknown) {
			continue
		}
		m.probe(ctx, rec.Identity)
	}
}

// probe runs one connectivity check and feeds the result back through
// the registry. Probe errors stay local to the monitor: they drive
// status transitions and logging, nothing else.
func (m *Monitor) probe(ctx context.Context, id intf.Identity) {
	probeCtx, cancel := context.WithTimeout(ctx, m.policy.ConnectTimeout)
	start := m.clock.Now()
	err := m.prober.Probe(probeCtx, id)
	elapsed := m.clock.Since(start)
	cancel()

	// A probe cut short by shutdown says nothing about the interface.
	if ctx.Err() != nil {
		return
	}
	m.registry.ApplyOutcome(id, intf.Outcome{
		Origin:  intf.OriginProbe,
		Success: err == nil,
		Elapsed: elapsed,
		Err:     err,
	})
	if err != nil {
		m.logger.Debug("probe failed",
			zap.String("interface", id.Name),
			zap.String("ip", id.IP),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	m.logger.Debug("probe succeeded",
		zap.String("interface", id.Name),
		zap.String("ip", id.IP),
		zap.Duration("elapsed", elapsed))
}
