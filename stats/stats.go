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

// Package stats is the read side of the interface registry: on-demand
// snapshots for the admin API, Prometheus metrics, and the periodic
// log report. Nothing here ever mutates registry state or blocks its
// writers; a snapshot taken mid-update is eventually consistent, which
// is all reporting needs.
package stats

import (
	"fmt"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
)

// InterfaceStats is the derived, reporting-friendly view of one
// interface record.
type InterfaceStats struct {
	Name              string    `json:"name"`
	IP                string    `json:"ip"`
	Status            string    `json:"status"`
	ActiveConnections int       `json:"active_connections"`
	SuccessCount      uint64    `json:"success_count"`
	FailureCount      uint64    `json:"failure_count"`
	SuccessRate       float64   `json:"success_rate"`
	AvgResponseMs     int64     `json:"avg_response_ms"`
	BytesSent         int64     `json:"bytes_sent"`
	BytesReceived     int64     `json:"bytes_received"`
	LastSuccessAt     time.Time `json:"last_success_at"`
}

// Aggregator derives rolling metrics from raw registry counters.
type Aggregator struct {
	registry *intf.Registry
}

func NewAggregator(registry *intf.Registry) *Aggregator {
	return &Aggregator{registry: registry}
}

// Snapshot returns per-interface statistics ordered by identity.
func (a *Aggregator) Snapshot() []InterfaceStats {
	records := a.registry.List()
	out := make([]InterfaceStats, len(records))
	for i, rec := range records {
		out[i] = InterfaceStats{
			Name:              rec.Identity.Name,
			IP:                rec.Identity.IP,
			Status:            rec.Status.String(),
			ActiveConnections: rec.ActiveConnections,
			SuccessCount:      rec.SuccessCount,
			FailureCount:      rec.FailureCount,
			SuccessRate:       rec.SuccessRate(),
			AvgResponseMs:     rec.AvgResponseTime().Milliseconds(),
			BytesSent:         rec.BytesSent,
			BytesReceived:     rec.BytesReceived,
			LastSuccessAt:     rec.LastSuccessAt,
		}
	}
	return out
}

// FormatBytes renders a byte count in a human-readable unit.
func FormatBytes(n int64) string {
	value := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}
