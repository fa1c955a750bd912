package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/teranos/strata/errors"
)

// DefaultPort is used when the configured port is zero.
const DefaultPort = 8787

// newUpgrader creates a WebSocket upgrader that checks origins against allowed.
func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r.Header.Get("Origin"), allowed)
		},
	}
}

// checkOrigin allows requests with no Origin header (direct WebSocket
// clients, tests) and origins matching an allowed prefix, so any port of an
// allowed host is accepted. With nothing configured only localhost passes.
func checkOrigin(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost") ||
			strings.HasPrefix(origin, "http://127.0.0.1")
	}
	for _, prefix := range allowed {
		if prefix == "*" || strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close() // best-effort check, the real bind may still race
	return true
}

// findAvailablePort tries the requested port, then the next ten.
func findAvailablePort(requested int) (int, error) {
	if requested == 0 {
		requested = DefaultPort
	}
	for port := requested; port <= requested+10; port++ {
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, errors.WithHint(
		errors.Newf("no available ports found in %d-%d", requested, requested+10),
		"set server.port in am.toml or STRATA_SERVER_PORT",
	)
}
