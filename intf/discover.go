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
	"net"
)

// Discover enumerates the host's usable egress interfaces: every IPv4
// address on an interface that is up, excluding loopback and link-local
// (169.254/16) addresses, which cannot reach the wider network.
func Discover() ([]Identity, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerating interfaces: %w", err)
	}
	var ids []Identity
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip, ok := usableIPv4(addr); ok {
				ids = append(ids, Identity{Name: iface.Name, IP: ip})
			}
		}
	}
	return ids, nil
}

// usableIPv4 extracts an egress-capable IPv4 address from an interface
// address, rejecting loopback and link-local ranges.
func usableIPv4(addr net.Addr) (string, bool) {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return "", false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return "", false
	}
	if ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
		return "", false
	}
	return ip4.String(), true
}
