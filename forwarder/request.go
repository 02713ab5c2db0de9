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
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxHeaderBytes bounds how much of the initial request is buffered
// before the tunnel is established.
const maxHeaderBytes = 32 * 1024

var (
	errHeaderTooLarge = errors.New("request header exceeds limit")
	errMalformedLine  = errors.New("malformed request line")
)

// request is the parsed head of one proxied session.
type request struct {
	method   string
	hostPort string
	// connect marks a CONNECT tunnel. For plain HTTP requests the
	// buffered head is replayed to the upstream instead.
	connect bool
	// head holds everything read from the client so far, up to and
	// including the header terminator.
	head []byte
}

// readRequest reads the client's request head, bounded by the header
// timeout, and extracts the upstream host:port. The tunneled payload
// itself is opaque; only the request line and the Host header are
// interpreted.
func readRequest(conn net.Conn, timeout time.Duration) (*request, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for !bytes.Contains(buf, []byte("\r\n\r\n")) {
		if len(buf) >= maxHeaderBytes {
			return nil, errHeaderTooLarge
		}
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			return nil, fmt.Errorf("reading request head: %w", err)
		}
	}
	return parseRequest(buf)
}

func parseRequest(head []byte) (*request, error) {
	line, _, ok := bytes.Cut(head, []byte("\r\n"))
	if !ok {
		return nil, errMalformedLine
	}
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) != 3 {
		return nil, errMalformedLine
	}
	method, target := parts[0], parts[1]

	req := &request{method: method, head: head}
	if method == http.MethodConnect {
		req.connect = true
		req.hostPort = ensurePort(target, "443")
		return req, nil
	}

	if host := headerValue(head, "Host"); host != "" {
		req.hostPort = ensurePort(host, "80")
		return req, nil
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("no upstream host in request %q", string(line))
	}
	port := "80"
	if parsed.Scheme == "https" {
		port = "443"
	}
	req.hostPort = ensurePort(parsed.Host, port)
	return req, nil
}

// headerValue extracts the first value of a header from a raw request
// head, matching the name case-insensitively.
func headerValue(head []byte, name string) string {
	for _, line := range bytes.Split(head, []byte("\r\n"))[1:] {
		key, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(key)), name) {
			return strings.TrimSpace(string(value))
		}
	}
	return ""
}

func ensurePort(hostPort, defaultPort string) string {
	if _, _, err := net.SplitHostPort(hostPort); err == nil {
		return hostPort
	}
	return net.JoinHostPort(hostPort, defaultPort)
}
