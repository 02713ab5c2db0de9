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

package health

import (
	"context"
	"fmt"
	"net"

	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
)

// A Prober performs a single-shot connectivity check through one
// interface. A nil error means the interface can reach the network.
type Prober interface {
	Probe(ctx context.Context, id intf.Identity) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, id intf.Identity) error

func (f ProberFunc) Probe(ctx context.Context, id intf.Identity) error {
	return f(ctx, id)
}

// NewDialProber returns a prober that opens a short-lived TCP connection
// to target, bound to the probed interface's local address. An interface
// whose address can no longer be bound (for example because it vanished
// from the OS) fails the probe like any other connectivity error.
func NewDialProber(target string) Prober {
	return ProberFunc(func(ctx context.Context, id intf.Identity) error {
		ip := net.ParseIP(id.IP)
		if ip == nil {
			return fmt.Errorf("interface %s has unusable address %q", id.Name, id.IP)
		}
		dialer := net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			return fmt.Errorf("probing %s via %s: %w", target, id, err)
		}
		return conn.Close()
	})
}
