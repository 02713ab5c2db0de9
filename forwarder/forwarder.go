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

// Package forwarder relays accepted client connections to their upstream
// through a selected egress interface. It is the sole producer of
// traffic-origin outcomes: every session, however it ends, reports back
// to the registry exactly once.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/alisufyanbaig-dev/internet-load-balancer/balancer"
	"github.com/alisufyanbaig-dev/internet-load-balancer/intf"
	"go.uber.org/zap"
)

const (
	respConnected          = "HTTP/1.1 200 Connection established\r\n\r\n"
	respBadGateway         = "HTTP/1.1 502 Bad Gateway\r\n\r\n"
	respServiceUnavailable = "HTTP/1.1 503 Service Unavailable\r\n\r\n"
)

// bufferPool recycles the 32KiB relay buffers; sessions are many and
// short-lived, so allocating per copy would churn the GC.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 32*1024)
		return &buf
	},
}

// dialFunc establishes an upstream connection bound to the given local
// interface address. It exists so tests can substitute the dialer.
type dialFunc func(ctx context.Context, localIP, hostPort string) (net.Conn, error)

// Handler proxies one accepted client connection per Handle call.
type Handler struct {
	balancer      *balancer.Balancer
	registry      *intf.Registry
	policy        intf.Policy
	headerTimeout time.Duration
	logger        *zap.Logger
	dial          dialFunc
}

// NewHandler returns a forwarder feeding outcomes into the given
// registry and drawing egress paths from the given balancer.
func NewHandler(bal *balancer.Balancer, registry *intf.Registry, policy intf.Policy, headerTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		balancer:      bal,
		registry:      registry,
		policy:        policy,
		headerTimeout: headerTimeout,
		logger:        logger,
		dial:          upstreamDialer(policy.ConnectTimeout),
	}
}

func upstreamDialer(timeout time.Duration) dialFunc {
	return func(ctx context.Context, localIP, hostPort string) (net.Conn, error) {
		ip := net.ParseIP(localIP)
		if ip == nil {
			return nil, fmt.Errorf("unusable local address %q", localIP)
		}
		dialer := net.Dialer{
			Timeout:   timeout,
			LocalAddr: &net.TCPAddr{IP: ip},
		}
		return dialer.DialContext(ctx, "tcp", hostPort)
	}
}

// Handle proxies one client connection: parse the request head, pick an
// egress interface, establish the upstream (failing over across distinct
// interfaces), relay both directions, and report the session outcome.
// All errors are contained here; nothing escapes to the accept loop.
func (h *Handler) Handle(ctx context.Context, clientConn net.Conn) {
	defer func() { _ = clientConn.Close() }()

	req, err := readRequest(clientConn, h.headerTimeout)
	if err != nil {
		h.logger.Debug("rejecting client request", zap.Error(err))
		return
	}

	upstream, id, err := h.connectUpstream(ctx, req)
	if err != nil {
		if errors.Is(err, errNothingTried) {
			_, _ = io.WriteString(clientConn, respServiceUnavailable)
		} else {
			_, _ = io.WriteString(clientConn, respBadGateway)
		}
		h.logger.Warn("could not reach upstream",
			zap.String("upstream", req.hostPort),
			zap.Error(err))
		return
	}

	// From here the session owns one in-flight slot on id and must
	// submit exactly one traffic outcome, no matter how it ends.
	start := time.Now()
	outcome := intf.Outcome{Origin: intf.OriginTraffic}
	defer func() {
		outcome.Elapsed = time.Since(start)
		h.registry.Release(id)
		h.registry.ApplyOutcome(id, outcome)
		h.logger.Info("session finished",
			zap.String("interface", id.Name),
			zap.String("upstream", req.hostPort),
			zap.Bool("success", outcome.Success),
			zap.Duration("elapsed", outcome.Elapsed),
			zap.Int64("bytes_sent", outcome.BytesSent),
			zap.Int64("bytes_received", outcome.BytesReceived),
			zap.Error(outcome.Err))
	}()
	defer func() { _ = upstream.Close() }()

	if req.connect {
		if _, err := io.WriteString(clientConn, respConnected); err != nil {
			outcome.Err = fmt.Errorf("confirming tunnel: %w", err)
			return
		}
	} else {
		n, err := upstream.Write(req.head)
		outcome.BytesSent += int64(n)
		if err != nil {
			outcome.Err = fmt.Errorf("replaying request head: %w", err)
			return
		}
	}

	sent, received, relayErr := h.relay(clientConn, upstream)
	outcome.BytesSent += sent
	outcome.BytesReceived += received
	outcome.Success = relayErr == nil
	outcome.Err = relayErr
}

// errNothingTried marks a selection failure before any connect attempt;
// the client gets 503 rather than 502.
var errNothingTried = errors.New("no eligible interface for new session")

var errAttemptsExhausted = errors.New("upstream connect attempts exhausted")

// connectUpstream tries to establish the upstream connection, failing
// over to a different interface after each connect failure, bounded by
// the configured attempt count. Each failed attempt is recorded against
// the interface that failed and its in-flight slot is returned.
func (h *Handler) connectUpstream(ctx context.Context, req *request) (net.Conn, intf.Identity, error) {
	tried := make(map[intf.Identity]struct{})
	for len(tried) < h.policy.MaxConnectAttempts {
		id, err := h.balancer.SelectExcluding(tried)
		if err != nil {
			if len(tried) == 0 {
				return nil, intf.Identity{}, errNothingTried
			}
			return nil, intf.Identity{}, fmt.Errorf("failover: %w", err)
		}
		start := time.Now()
		conn, err := h.dial(ctx, id.IP, req.hostPort)
		if err == nil {
			return conn, id, nil
		}
		h.registry.ApplyOutcome(id, intf.Outcome{
			Origin:  intf.OriginTraffic,
			Elapsed: time.Since(start),
			Err:     err,
		})
		h.registry.Release(id)
		tried[id] = struct{}{}
		h.logger.Warn("upstream connect failed",
			zap.String("interface", id.Name),
			zap.String("upstream", req.hostPort),
			zap.Int("attempt", len(tried)),
			zap.Error(err))
	}
	return nil, intf.Identity{}, errAttemptsExhausted
}

// relay pumps bytes in both directions until either side closes or
// errors. The first direction to finish closes both sockets, which
// unblocks the other; a clean shutdown on one side therefore propagates
// immediately to the other.
func (h *Handler) relay(clientConn, upstream net.Conn) (sent, received int64, err error) {
	type result struct {
		n   int64
		err error
	}
	closeBoth := func() {
		_ = clientConn.Close()
		_ = upstream.Close()
	}
	clientToUpstream := make(chan result, 1)
	upstreamToClient := make(chan result, 1)
	go func() {
		n, err := h.copyWithIdleTimeout(upstream, clientConn)
		closeBoth()
		clientToUpstream <- result{n, err}
	}()
	go func() {
		n, err := h.copyWithIdleTimeout(clientConn, upstream)
		closeBoth()
		upstreamToClient <- result{n, err}
	}()

	up := <-clientToUpstream
	down := <-upstreamToClient
	if abnormal(up.err) {
		return up.n, down.n, fmt.Errorf("relay client to upstream: %w", up.err)
	}
	if abnormal(down.err) {
		return up.n, down.n, fmt.Errorf("relay upstream to client: %w", down.err)
	}
	return up.n, down.n, nil
}

// copyWithIdleTimeout copies src to dst with a rolling read deadline.
// A session that moves no bytes for the idle window is cut off and
// counted as a failure with its partial byte counts preserved.
func (h *Handler) copyWithIdleTimeout(dst, src net.Conn) (int64, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)
	buf := *bufPtr

	var total int64
	for {
		if err := src.SetReadDeadline(time.Now().Add(h.policy.IdleTimeout)); err != nil {
			return total, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return total, writeErr
			}
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// abnormal reports whether a relay error should fail the session.
// EOF is a clean close; ErrClosed is the echo of the peer direction
// finishing first. Everything else, including an expired idle
// deadline, is a real I/O failure.
func abnormal(err error) bool {
	return err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed)
}
