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

// Package balancer implements egress interface selection. For each new
// connection it scores every eligible interface from registry state and
// picks the best one, incrementing the interface's in-flight count as
// part of selection.
package balancer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"go.uber.org/zap"
)

// ErrNoEligibleInterface is returned by Select when every registered
// interface is failed. It is surfaced to the client as a connection
// failure and is never process-fatal.
var ErrNoEligibleInterface = errors.New("no eligible interface")

// Balancer picks egress interfaces for new connections.
type Balancer struct {
	registry *intf.Registry
	policy   intf.Policy
	weights  Weights
	logger   *zap.Logger

	// mu serializes selection so that the score-and-acquire pair is
	// atomic: a concurrent Select always observes the in-flight count
	// incremented by the previous one.
	mu sync.Mutex
}

// New validates the weights and returns a balancer reading from the
// given registry.
func New(registry *intf.Registry, policy intf.Policy, weights Weights, logger *zap.Logger) (*Balancer, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Balancer{
		registry: registry,
		policy:   policy,
		weights:  weights,
		logger:   logger,
	}, nil
}

// Select picks the best eligible interface and increments its in-flight
// session count. The caller owns exactly one matching Release on the
// registry once the session ends.
func (b *Balancer) Select() (intf.Identity, error) {
	return b.SelectExcluding(nil)
}

// SelectExcluding is Select restricted to interfaces not in the exclude
// set. The forwarder uses it to retry a failed connect on a distinct
// interface.
//
// Scoring is a weighted sum of success rate, inverse average response
// time, and inverse load, with multiplicative penalties for degraded
// and saturated interfaces. Ties break on the lowest in-flight count,
// then on identity order, so selection is reproducible.
func (b *Balancer) SelectExcluding(exclude map[intf.Identity]struct{}) (intf.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best *intf.Record
	var bestScore float64
	records := b.registry.ListEligible()
	for i := range records {
		rec := &records[i]
		if _, skip := exclude[rec.Identity]; skip {
			continue
		}
		score := b.score(rec)
		if best == nil || score > bestScore ||
			(score == bestScore && rec.ActiveConnections < best.ActiveConnections) {
			best, bestScore = rec, score
		}
	}
	if best == nil {
		return intf.Identity{}, ErrNoEligibleInterface
	}
	b.registry.Acquire(best.Identity)
	b.logger.Debug("interface selected",
		zap.String("interface", best.Identity.Name),
		zap.String("ip", best.Identity.IP),
		zap.Float64("score", bestScore),
		zap.Int("active_connections", best.ActiveConnections+1))
	return best.Identity, nil
}

func (b *Balancer) score(rec *intf.Record) float64 {
	score := b.weights.SuccessRate*rec.SuccessRate() +
		b.weights.ResponseTime/(1+rec.AvgResponseTime().Seconds()) +
		b.weights.Load/(1+float64(rec.ActiveConnections))
	if rec.ActiveConnections >= b.policy.MaxConnsPerInterface {
		score *= b.weights.SaturationPenalty
	}
	if rec.Status == intf.StatusDegraded {
		score *= b.weights.DegradedPenalty
	}
	return score
}
