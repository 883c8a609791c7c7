package core

import (
	"fmt"
	"net/url"
	"strings"
)

// Relay endpoint paths.
const (
	SignalPath = "/api/ws/signal"
	MediaPath  = "/api/ws/media"
)

// RelayURL turns a relay base address (ws, wss, http, https or a bare
// host:port) into a WebSocket URL for path with the given query.
func RelayURL(base, path string, q url.Values) (string, error) {
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse relay address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay address %q has no host", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String(), nil
}
