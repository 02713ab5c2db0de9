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

package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/balancer"
	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	loopbackA = intf.Identity{Name: "lo", IP: "127.0.0.1"}
	ifaceA    = intf.Identity{Name: "eth0", IP: "192.0.2.1"}
	ifaceB    = intf.Identity{Name: "wlan0", IP: "192.0.2.2"}
)

func testPolicy() intf.Policy {
	return intf.Policy{
		FailureThreshold:      3,
		DegradedResponseTime:  2 * time.Second,
		ProbeInterval:         15 * time.Second,
		RecoveryProbeInterval: 5 * time.Second,
		MaxConnsPerInterface:  100,
		ConnectTimeout:        2 * time.Second,
		IdleTimeout:           5 * time.Second,
		MaxConnectAttempts:    3,
	}
}

func newTestHandler(t *testing.T, policy intf.Policy, ids ...intf.Identity) (*Handler, *intf.Registry) {
	t.Helper()
	reg, err := intf.NewRegistry(policy, nil)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, reg.Register(id))
	}
	bal, err := balancer.New(reg, policy, balancer.DefaultWeights(), nil)
	require.NoError(t, err)
	return NewHandler(bal, reg, policy, 5*time.Second, nil), reg
}

// startUpstream runs a loopback listener handling each connection with
// the given function.
func startUpstream(t *testing.T, serve func(net.Conn)) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serve(conn)
		}
	}()
	return listener.Addr().String()
}

func expectRecord(t *testing.T, reg *intf.Registry, id intf.Identity, check func(intf.Record) bool) {
	t.Helper()
	assert.Eventually(t, func() bool {
		rec, ok := reg.Get(id)
		return ok && check(rec)
	}, 5*time.Second, time.Millisecond)
}

func TestHandleConnectTunnel(t *testing.T) {
	t.Parallel()
	addr := startUpstream(t, func(conn net.Conn) {
		defer func() { _ = conn.Close() }()
		_, _ = io.Copy(conn, conn)
	})
	handler, reg := newTestHandler(t, testPolicy(), loopbackA)

	clientSide, proxySide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	go handler.Handle(context.Background(), proxySide)

	_, err := fmt.Fprintf(clientSide, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", addr, addr)
	require.NoError(t, err)

	response := make([]byte, len(respConnected))
	_, err = io.ReadFull(clientSide, response)
	require.NoError(t, err)
	require.Equal(t, respConnected, string(response))

	_, err = io.WriteString(clientSide, "hello through the tunnel")
	require.NoError(t, err)
	echoed := make([]byte, len("hello through the tunnel"))
	_, err = io.ReadFull(clientSide, echoed)
	require.NoError(t, err)
	require.Equal(t, "hello through the tunnel", string(echoed))

	// Client hangs up; the session must settle as one success with the
	// in-flight slot returned.
	require.NoError(t, clientSide.Close())
	expectRecord(t, reg, loopbackA, func(rec intf.Record) bool {
		return rec.ActiveConnections == 0 && rec.SuccessCount == 1
	})
	rec, _ := reg.Get(loopbackA)
	assert.Equal(t, uint64(0), rec.FailureCount)
	assert.GreaterOrEqual(t, rec.BytesSent, int64(len("hello through the tunnel")))
	assert.GreaterOrEqual(t, rec.BytesReceived, int64(len("hello through the tunnel")))
	assert.Equal(t, intf.StatusHealthy, rec.Status)
}

func TestHandlePlainHTTP(t *testing.T) {
	t.Parallel()
	const reply = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	var gotHead strings.Builder
	var mu sync.Mutex
	addr := startUpstream(t, func(conn net.Conn) {
		defer func() { _ = conn.Close() }()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		mu.Lock()
		gotHead.Write(buf[:n])
		mu.Unlock()
		_, _ = io.WriteString(conn, reply)
	})
	handler, reg := newTestHandler(t, testPolicy(), loopbackA)

	clientSide, proxySide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	go handler.Handle(context.Background(), proxySide)

	request := fmt.Sprintf("GET http://%s/ HTTP/1.1\r\nHost: %s\r\n\r\n", addr, addr)
	_, err := io.WriteString(clientSide, request)
	require.NoError(t, err)

	response := make([]byte, len(reply))
	_, err = io.ReadFull(clientSide, response)
	require.NoError(t, err)
	require.Equal(t, reply, string(response))
	require.NoError(t, clientSide.Close())

	expectRecord(t, reg, loopbackA, func(rec intf.Record) bool {
		return rec.ActiveConnections == 0 && rec.SuccessCount == 1
	})
	// The replayed request head counts toward bytes sent.
	rec, _ := reg.Get(loopbackA)
	assert.GreaterOrEqual(t, rec.BytesSent, int64(len(request)))
	mu.Lock()
	assert.Contains(t, gotHead.String(), "GET http://")
	mu.Unlock()
}

func TestHandleServiceUnavailable(t *testing.T) {
	t.Parallel()
	handler, reg := newTestHandler(t, testPolicy(), ifaceA)
	reg.SetStatus(ifaceA, intf.StatusFailed)

	clientSide, proxySide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	go handler.Handle(context.Background(), proxySide)

	_, err := io.WriteString(clientSide, "CONNECT example.com:443 HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	response, err := io.ReadAll(clientSide)
	require.NoError(t, err)
	assert.Equal(t, respServiceUnavailable, string(response))
}

func TestHandleFailoverAcrossInterfaces(t *testing.T) {
	t.Parallel()
	handler, reg := newTestHandler(t, testPolicy(), ifaceA, ifaceB)

	var mu sync.Mutex
	var attempts []string
	handler.dial = func(_ context.Context, localIP, _ string) (net.Conn, error) {
		mu.Lock()
		attempts = append(attempts, localIP)
		mu.Unlock()
		return nil, errors.New("connect: network is unreachable")
	}

	clientSide, proxySide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	go handler.Handle(context.Background(), proxySide)

	_, err := io.WriteString(clientSide, "CONNECT example.com:443 HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	response, err := io.ReadAll(clientSide)
	require.NoError(t, err)
	assert.Equal(t, respBadGateway, string(response))

	// Each attempt used a distinct interface, never the same one twice.
	mu.Lock()
	assert.Equal(t, []string{ifaceA.IP, ifaceB.IP}, attempts)
	mu.Unlock()

	for _, id := range []intf.Identity{ifaceA, ifaceB} {
		expectRecord(t, reg, id, func(rec intf.Record) bool {
			return rec.FailureCount == 1 && rec.ActiveConnections == 0
		})
	}
}

func TestHandleIdleTimeoutFailsSession(t *testing.T) {
	t.Parallel()
	policy := testPolicy()
	policy.IdleTimeout = 50 * time.Millisecond
	// A mute upstream: accepts the tunnel and then never speaks.
	addr := startUpstream(t, func(conn net.Conn) {
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		_ = conn.Close()
	})
	handler, reg := newTestHandler(t, policy, loopbackA)

	clientSide, proxySide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	go handler.Handle(context.Background(), proxySide)

	_, err := fmt.Fprintf(clientSide, "CONNECT %s HTTP/1.1\r\n\r\n", addr)
	require.NoError(t, err)
	response := make([]byte, len(respConnected))
	_, err = io.ReadFull(clientSide, response)
	require.NoError(t, err)

	// Neither side transfers a byte; the idle window must cut the
	// session and record it as a failure with the slot released.
	expectRecord(t, reg, loopbackA, func(rec intf.Record) bool {
		return rec.FailureCount == 1 && rec.ActiveConnections == 0
	})
	rec, _ := reg.Get(loopbackA)
	assert.Equal(t, uint64(0), rec.SuccessCount)
}
