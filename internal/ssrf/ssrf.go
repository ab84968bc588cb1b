// Package ssrf validates outbound URLs before the agent fetches them.
//
// The checks are purely syntactic: hostnames and IP literals are rejected by
// pattern, never by DNS resolution, since resolution itself could be abused
// (an attacker-controlled record can answer differently for the checker and
// the fetcher).
package ssrf

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrBlocked wraps every rejection so callers can distinguish policy blocks
// from malformed input.
var ErrBlocked = errors.New("blocked by SSRF policy")

// blockedHostnames are never fetched, regardless of what they resolve to.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// blockedSuffixes mark hostnames that name internal or local resources.
var blockedSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// ValidateURL rejects URLs that are not plain http/https to a public host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrBlocked, u.Scheme)
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid URL: empty host")
	}
	return validateHost(host)
}

// validateHost rejects blocked hostnames and private/loopback/link-local IP
// literals (IPv4 and IPv6, including v4-mapped forms).
func validateHost(host string) error {
	if blockedHostnames[host] {
		return fmt.Errorf("%w: hostname %q", ErrBlocked, host)
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: hostname %q", ErrBlocked, host)
		}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// Not an IP literal; a non-blocked hostname passes. Resolution-time
		// games are out of scope for a pattern check.
		return nil
	}
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsUnspecified():
		return fmt.Errorf("%w: address %s is not public", ErrBlocked, addr)
	}
	return nil
}

// normalizeHost lowercases, trims the trailing dot, and unwraps IPv6 brackets.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return host
}
