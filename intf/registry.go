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
	"fmt"
	"sort"
	"sync"

	"github.com/alisufyanbaig-dev/internet-load-balancer/internal"
	"go.uber.org/zap"
)

// Registry holds the live record for every registered interface.
//
// Records are created at startup and live for the process lifetime; they
// are never removed, only reset. Each record has its own lock so updates
// to different interfaces never serialize against each other; the
// registry-level lock only guards membership and is taken for reads
// after registration completes.
type Registry struct {
	policy Policy
	logger *zap.Logger
	clock  internal.Clock

	mu      sync.RWMutex
	records map[Identity]*record
	order   []Identity // sorted; gives List/ListEligible deterministic order
}

// record is the mutable state behind one interface. All fields are
// guarded by mu. The critical sections are a handful of integer updates,
// so a plain mutex is cheap and keeps multi-field transitions (counter
// update plus status change) linearizable.
type record struct {
	mu    sync.Mutex
	state Record
}

// NewRegistry validates the policy and returns an empty registry.
func NewRegistry(policy Policy, logger *zap.Logger) (*Registry, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		policy:  policy,
		logger:  logger,
		clock:   internal.NewRealClock(),
		records: map[Identity]*record{},
	}, nil
}

// Register adds an interface record with status unknown. Registering the
// same identity twice is an error.
func (r *Registry) Register(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; ok {
		return fmt.Errorf("interface %s already registered", id)
	}
	r.records[id] = &record{state: Record{Identity: id, Status: StatusUnknown}}
	r.order = append(r.order, id)
	sort.Slice(r.order, func(i, j int) bool { return r.order[i].Less(r.order[j]) })
	r.logger.Info("interface registered",
		zap.String("interface", id.Name),
		zap.String("ip", id.IP))
	return nil
}

// Len returns the number of registered interfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Get returns a snapshot of one record.
func (r *Registry) Get(id Identity) (Record, bool) {
	rec := r.lookup(id)
	if rec == nil {
		return Record{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state, true
}

// List returns snapshots of all records, ordered by identity.
func (r *Registry) List() []Record {
	return r.list(func(Record) bool { return true })
}

// ListEligible returns snapshots of all records whose status permits new
// connections, ordered by identity.
func (r *Registry) ListEligible() []Record {
	return r.list(func(rec Record) bool { return rec.Status.Eligible() })
}

func (r *Registry) list(keep func(Record) bool) []Record {
	ids := r.identities()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec := r.lookup(id)
		rec.mu.Lock()
		snapshot := rec.state
		rec.mu.Unlock()
		if keep(snapshot) {
			out = append(out, snapshot)
		}
	}
	return out
}

// ApplyOutcome folds one probe or traffic outcome into the interface's
// counters and re-evaluates its status. This is the only feedback path:
// probes and real sessions share it, so there is exactly one status
// state machine per interface.
//
// On success the consecutive-failure streak resets to zero and the
// interface returns to healthy (or degraded, when its average response
// time exceeds the configured threshold) regardless of its previous
// status. On failure the streak grows and trips the failed status at the
// configured threshold. Outcomes never change ActiveConnections; that is
// owned by the Acquire/Release pair.
func (r *Registry) ApplyOutcome(id Identity, out Outcome) {
	rec := r.lookup(id)
	if rec == nil {
		return
	}
	now := r.clock.Now()

	rec.mu.Lock()
	prev := rec.state.Status
	if out.Origin == OriginProbe {
		rec.state.LastProbeAt = now
	}
	if out.Success {
		rec.state.SuccessCount++
		rec.state.ConsecutiveFailures = 0
		rec.state.LastSuccessAt = now
		rec.state.TotalResponseTime += out.Elapsed
		rec.state.CompletedCount++
		rec.state.BytesSent += out.BytesSent
		rec.state.BytesReceived += out.BytesReceived
		if rec.state.AvgResponseTime() > r.policy.DegradedResponseTime {
			rec.state.Status = StatusDegraded
		} else {
			rec.state.Status = StatusHealthy
		}
	} else {
		rec.state.FailureCount++
		rec.state.ConsecutiveFailures++
		rec.state.BytesSent += out.BytesSent
		rec.state.BytesReceived += out.BytesReceived
		if rec.state.ConsecutiveFailures >= r.policy.FailureThreshold {
			rec.state.Status = StatusFailed
		} else if rec.state.Status == StatusHealthy {
			rec.state.Status = StatusDegraded
		}
	}
	next := rec.state.Status
	streak := rec.state.ConsecutiveFailures
	rec.mu.Unlock()

	if prev != next {
		r.logger.Info("interface status changed",
			zap.String("interface", id.Name),
			zap.String("ip", id.IP),
			zap.Stringer("from", prev),
			zap.Stringer("to", next),
			zap.Stringer("origin", out.Origin),
			zap.Int("consecutive_failures", streak),
			zap.Error(out.Err))
	}
}

// SetStatus forces an interface into the given status. It reports
// whether the identity is registered.
func (r *Registry) SetStatus(id Identity, status Status) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	prev := rec.state.Status
	rec.state.Status = status
	rec.mu.Unlock()
	if prev != status {
		r.logger.Info("interface status changed",
			zap.String("interface", id.Name),
			zap.String("ip", id.IP),
			zap.Stringer("from", prev),
			zap.Stringer("to", status))
	}
	return true
}

// CompareAndSetStatus transitions the interface from one status to
// another only if it currently has the expected status. The health
// monitor uses this to flip failed interfaces to unknown before a
// recovery probe without clobbering a concurrent recovery via real
// traffic.
func (r *Registry) CompareAndSetStatus(id Identity, from, to Status) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	if rec.state.Status != from {
		rec.mu.Unlock()
		return false
	}
	rec.state.Status = to
	rec.mu.Unlock()
	r.logger.Debug("interface status changed",
		zap.String("interface", id.Name),
		zap.String("ip", id.IP),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	return true
}

// Acquire increments the interface's in-flight session count. The load
// balancer calls it as part of selection so concurrent selections never
// observe the pre-increment count.
func (r *Registry) Acquire(id Identity) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	rec.state.ActiveConnections++
	rec.mu.Unlock()
	return true
}

// Release decrements the interface's in-flight session count. The count
// never goes below zero.
func (r *Registry) Release(id Identity) {
	rec := r.lookup(id)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	if rec.state.ActiveConnections > 0 {
		rec.state.ActiveConnections--
	}
	rec.mu.Unlock()
}

// ResetStats zeroes one interface's counters. Status, in-flight count,
// and timestamps are preserved. It reports whether the identity is
// registered.
func (r *Registry) ResetStats(id Identity) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	r.resetLocked(rec)
	rec.mu.Unlock()
	r.logger.Info("interface stats reset",
		zap.String("interface", id.Name),
		zap.String("ip", id.IP))
	return true
}

// ResetAllStats zeroes the counters of every registered interface.
func (r *Registry) ResetAllStats() {
	ids := r.identities()
	for _, id := range ids {
		rec := r.lookup(id)
		rec.mu.Lock()
		r.resetLocked(rec)
		rec.mu.Unlock()
	}
	r.logger.Info("all interface stats reset", zap.Int("interfaces", len(ids)))
}

func (r *Registry) resetLocked(rec *record) {
	rec.state.SuccessCount = 0
	rec.state.FailureCount = 0
	rec.state.ConsecutiveFailures = 0
	rec.state.TotalResponseTime = 0
	rec.state.CompletedCount = 0
	rec.state.BytesSent = 0
	rec.state.BytesReceived = 0
}

// identities returns a copy of the sorted identity list. Register
// re-sorts the backing array in place, so callers iterating outside the
// registry lock need their own copy.
func (r *Registry) identities() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]Identity, len(r.order))
	copy(ids, r.order)
	return ids
}

func (r *Registry) lookup(id Identity) *record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[id]
}
