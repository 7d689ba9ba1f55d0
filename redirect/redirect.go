// Package redirect validates third-party login targets against the
// trusted identity-provider allowlist before the browser is sent there.
package redirect

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrUntrustedHost is returned when the target host is not allowlisted.
	ErrUntrustedHost = errors.New("redirect host is not trusted")

	// ErrInsecureScheme is returned when the target is not served over https.
	ErrInsecureScheme = errors.New("redirect target must use https")
)

// Allowed reports whether rawURL may be navigated to. Patterns support a
// leading "*." wildcard and ports are ignored on both sides. Plain http
// is tolerated for loopback hosts only, so local development backends work.
func Allowed(rawURL string, patterns []string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	host := stripPort(strings.ToLower(u.Host))

	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(host) {
			return ErrInsecureScheme
		}
	default:
		return ErrInsecureScheme
	}

	if !matchHost(host, patterns) {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, host)
	}
	return nil
}

func matchHost(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, p := range patterns {
		p = stripPort(strings.ToLower(strings.TrimSpace(p)))
		if p == host {
			return true
		}
		if strings.HasPrefix(p, "*.") {
			suffix := p[1:] // ".example.com"
			if strings.HasSuffix(host, suffix) && host != suffix[1:] {
				return true
			}
		}
	}
	return false
}

func stripPort(host string) string {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
