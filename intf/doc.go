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

// Package intf provides the representation of local egress interfaces and
// the registry that tracks their live health and performance records.
//
// The registry is the single piece of shared mutable state in the proxy.
// Both real traffic (the forwarder) and synthetic probes (the health
// monitor) report results through the one ApplyOutcome entry point, so
// there is a single status state machine per interface rather than two
// that could diverge. The load balancer and the stats aggregator only
// ever read snapshots.
package intf
