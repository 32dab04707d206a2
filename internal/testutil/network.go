// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testutil provides testing utilities for the broker and its peers.
package testutil

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

var portCounter int64 = 20000

// GetAvailablePort returns an available TCP port for testing
func GetAvailablePort() (int, error) {
	basePort := atomic.AddInt64(&portCounter, 1)

	for i := 0; i < 100; i++ {
		port := int(basePort) + i
		if port > 65535 {
			port = 20000 + (port % 45535)
		}

		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports found in range")
}

// isPortAvailable checks if a TCP port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// GetTestEndpoint returns a broker endpoint with an available port
func GetTestEndpoint() (string, error) {
	port, err := GetAvailablePort()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tcp://127.0.0.1:%d", port), nil
}

// WaitForConnection waits until something accepts TCP connections at
// endpoint.
func WaitForConnection(endpoint string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", parseAddress(endpoint), 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("connection timeout for endpoint %s", endpoint)
}

// parseAddress extracts the address from a ZMQ endpoint
func parseAddress(endpoint string) string {
	return strings.TrimPrefix(endpoint, "tcp://")
}
