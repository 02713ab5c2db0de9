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

package balancer

import "errors"

// Weights are the named scoring factors of the selection algorithm.
// They are explicit configuration, validated once at startup, rather
// than values computed on the fly.
type Weights struct {
	// SuccessRate weighs the interface's success ratio (0/0 counts as a
	// neutral 1.0).
	SuccessRate float64
	// ResponseTime weighs the inverse of the average response time.
	ResponseTime float64
	// Load weighs the inverse of the current in-flight session count.
	Load float64
	// DegradedPenalty multiplies the score of degraded interfaces. They
	// stay usable, just disfavored, so they still carry traffic when
	// every healthy interface is gone.
	DegradedPenalty float64
	// SaturationPenalty multiplies the score of interfaces at or over
	// the per-interface soft connection cap. The cap is a penalty, not
	// a hard block, so selection always makes progress even when all
	// interfaces are saturated.
	SaturationPenalty float64
}

// DefaultWeights returns the stock scoring configuration.
func DefaultWeights() Weights {
	return Weights{
		SuccessRate:       1.0,
		ResponseTime:      1.0,
		Load:              1.0,
		DegradedPenalty:   0.5,
		SaturationPenalty: 0.1,
	}
}

func (w Weights) Validate() error {
	if w.SuccessRate <= 0 || w.ResponseTime <= 0 || w.Load <= 0 {
		return errors.New("scoring weights must be positive")
	}
	if w.DegradedPenalty <= 0 || w.DegradedPenalty > 1 {
		return errors.New("degraded penalty must be in (0, 1]")
	}
	if w.SaturationPenalty <= 0 || w.SaturationPenalty > 1 {
		return errors.New("saturation penalty must be in (0, 1]")
	}
	return nil
}
