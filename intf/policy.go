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
	"errors"
	"time"
)

// Policy holds the selection and health thresholds shared by the
// registry, the load balancer, the health monitor, and the forwarder.
// It is validated once at startup; invalid values are fatal to process
// start, never a runtime condition.
type Policy struct {
	// FailureThreshold is the number of consecutive failures after which
	// an interface is marked failed and excluded from selection.
	FailureThreshold int
	// DegradedResponseTime is the average response time above which an
	// otherwise-successful interface is marked degraded.
	DegradedResponseTime time.Duration
	// ProbeInterval is the cadence for probing interfaces that are not
	// failed.
	ProbeInterval time.Duration
	// RecoveryProbeInterval is the slower cadence at which failed
	// interfaces are retried.
	RecoveryProbeInterval time.Duration
	// MaxConnsPerInterface is a soft cap on concurrent sessions per
	// interface. Interfaces at or over the cap are heavily penalized in
	// scoring but never excluded, so progress is guaranteed even when
	// every interface is saturated.
	MaxConnsPerInterface int
	// ConnectTimeout bounds each upstream connect attempt (and each
	// probe dial).
	ConnectTimeout time.Duration
	// IdleTimeout closes a relay session that moves no bytes in either
	// direction for this long.
	IdleTimeout time.Duration
	// MaxConnectAttempts bounds failover: each attempt must use a
	// distinct interface.
	MaxConnectAttempts int
}

func (p Policy) Validate() error {
	if p.FailureThreshold <= 0 {
		return errors.New("failure threshold must be positive")
	}
	if p.DegradedResponseTime <= 0 {
		return errors.New("degraded response time must be positive")
	}
	if p.ProbeInterval <= 0 {
		return errors.New("probe interval must be positive")
	}
	if p.RecoveryProbeInterval <= 0 {
		return errors.New("recovery probe interval must be positive")
	}
	if p.MaxConnsPerInterface <= 0 {
		return errors.New("max connections per interface must be positive")
	}
	if p.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}
	if p.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if p.MaxConnectAttempts <= 0 {
		return errors.New("max connect attempts must be positive")
	}
	return nil
}
