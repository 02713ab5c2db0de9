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

import "fmt"

// Status represents the health of an interface. Their natural ordering is
// for "better" statuses to be before "worse" ones. So StatusHealthy is the
// lowest value and StatusFailed is the highest.
type Status int

const (
	StatusHealthy  = Status(-1)
	StatusUnknown  = Status(0)
	StatusDegraded = Status(1)
	StatusFailed   = Status(2)
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Eligible reports whether an interface with this status may carry new
// connections. Only failed interfaces are excluded from selection;
// degraded and unknown interfaces remain usable.
func (s Status) Eligible() bool {
	return s != StatusFailed
}
