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
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/internal"
	"go.uber.org/zap"
)

// Reporter periodically logs the interface snapshot so the health of
// the egress paths is visible without scraping the metrics endpoint.
type Reporter struct {
	aggregator *Aggregator
	interval   time.Duration
	logger     *zap.Logger
	clock      internal.Clock

	cancel     context.CancelFunc
	doneSignal chan struct{}
}

func NewReporter(aggregator *Aggregator, interval time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		aggregator: aggregator,
		interval:   interval,
		logger:     logger,
		clock:      internal.NewRealClock(),
		doneSignal: make(chan struct{}),
	}
}

// Start launches the reporting loop. The first report is emitted after
// one full interval, not at startup.
func (r *Reporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go func() {
		defer close(r.doneSignal)
		ticker := r.clock.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.report()
			}
		}
	}()
}

// Close stops the reporting loop and waits for it to finish.
func (r *Reporter) Close() error {
	r.cancel()
	<-r.doneSignal
	return nil
}

func (r *Reporter) report() {
	for _, s := range r.aggregator.Snapshot() {
		r.logger.Info("interface report",
			zap.String("interface", s.Name),
			zap.String("ip", s.IP),
			zap.String("status", s.Status),
			zap.Int("active_connections", s.ActiveConnections),
			zap.Uint64("successes", s.SuccessCount),
			zap.Uint64("failures", s.FailureCount),
			zap.Float64("success_rate", s.SuccessRate),
			zap.Int64("avg_response_ms", s.AvgResponseMs),
			zap.String("sent", FormatBytes(s.BytesSent)),
			zap.String("received", FormatBytes(s.BytesReceived)))
	}
}
