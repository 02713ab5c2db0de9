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

import "time"

// Identity names one local egress interface: a stable name/address pair.
// Identities are comparable and used as registry keys.
type Identity struct {
	Name string
	IP   string
}

func (id Identity) String() string {
	return id.Name + " (" + id.IP + ")"
}

// Less orders identities lexicographically by name, then by address.
// List and ListEligible return records in this order so selection
// tie-breaks are deterministic.
func (id Identity) Less(other Identity) bool {
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	return id.IP < other.IP
}

// Origin tags which feedback path produced an Outcome.
type Origin int

const (
	// OriginTraffic marks outcomes produced by real client sessions.
	OriginTraffic Origin = iota
	// OriginProbe marks outcomes produced by synthetic health probes.
	OriginProbe
)

func (o Origin) String() string {
	if o == OriginProbe {
		return "probe"
	}
	return "traffic"
}

// Outcome is the result of one attempted transfer or probe. It is the
// unit of feedback into the health model: produced by the forwarder or
// the health monitor, consumed exactly once by Registry.ApplyOutcome,
// and then discarded.
type Outcome struct {
	Origin        Origin
	Success       bool
	Elapsed       time.Duration
	BytesSent     int64
	BytesReceived int64
	Err           error
}

// Record is a point-in-time snapshot of one interface's health and
// performance counters. Snapshots are plain values; mutating one has no
// effect on the registry.
type Record struct {
	Identity            Identity
	Status              Status
	ActiveConnections   int
	SuccessCount        uint64
	FailureCount        uint64
	ConsecutiveFailures int
	TotalResponseTime   time.Duration
	CompletedCount      uint64
	BytesSent           int64
	BytesReceived       int64
	LastProbeAt         time.Time
	LastSuccessAt       time.Time
}

// SuccessRate returns successes over total attempts in the unit range.
// An untested interface (0/0) is treated as neutral 1.0 so that fresh
// interfaces are optimistically eligible.
func (r Record) SuccessRate() float64 {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(r.SuccessCount) / float64(total)
}

// AvgResponseTime returns the mean elapsed time of completed sessions,
// or zero when nothing has completed yet.
func (r Record) AvgResponseTime() time.Duration {
	if r.CompletedCount == 0 {
		return 0
	}
	return r.TotalResponseTime / time.Duration(r.CompletedCount)
}
