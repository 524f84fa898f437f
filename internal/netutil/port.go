// Package netutil picks the address the HTTP server listens on.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// ErrNoAddress is returned when neither the preferred address nor any
// candidate could be bound.
var ErrNoAddress = errors.New("no available bind address")

// Listen binds preferred, or with autoFallback the first free candidate. The
// returned listener is already open, so the address cannot be taken between
// selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address unavailable: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying candidates", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == "" || addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Debug("bind candidate unavailable", "addr", addr, "error", err)
			continue
		}
		return ln, nil
	}
	return nil, ErrNoAddress
}

// PortCandidates expands a host and a list of ports into addresses.
func PortCandidates(host string, ports []string) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if p == "" {
			continue
		}
		out = append(out, net.JoinHostPort(host, p))
	}
	return out
}
