// Package siteinfo derives the public identity of the site this admin serves
// from config.PublicOrigin.
package siteinfo

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Site is the resolved public identity.
type Site struct {
	origin string
	domain string
}

// New resolves publicOrigin. The domain is the ASCII (punycode) form of the
// hostname, without port.
func New(publicOrigin string) (*Site, error) {
	origin, err := NormalizePublicOrigin(publicOrigin)
	if err != nil {
		return nil, err
	}
	host, err := Hostname(publicOrigin)
	if err != nil {
		return nil, err
	}
	domain, err := ASCIIDomain(host)
	if err != nil {
		return nil, err
	}
	return &Site{origin: origin, domain: domain}, nil
}

// Domain returns the site domain, e.g. "news.example.com".
func (s *Site) Domain() string {
	return s.domain
}

// Origin returns the normalized public origin.
func (s *Site) Origin() string {
	return s.origin
}

// ASCIIDomain lowercases host and converts internationalized labels to
// punycode. IP literals are returned unchanged.
func ASCIIDomain(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", fmt.Errorf("siteinfo: empty host")
	}
	if strings.Contains(host, ":") || isIPv4(host) {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("siteinfo: invalid host %q: %w", host, err)
	}
	return ascii, nil
}

// NormalizePublicOrigin applies cosmetic-only normalization to a public origin:
// trim a single trailing slash and lowercase scheme + hostname.
// It does NOT strip default ports.
func NormalizePublicOrigin(publicOrigin string) (string, error) {
	u, err := url.Parse(publicOrigin)
	if err != nil {
		return "", fmt.Errorf("siteinfo: invalid public origin: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("siteinfo: public origin must be an absolute URL with scheme and host: %q", publicOrigin)
	}

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Hostname returns the hostname only (no port) from a public origin URL.
func Hostname(publicOrigin string) (string, error) {
	u, err := url.Parse(publicOrigin)
	if err != nil {
		return "", fmt.Errorf("siteinfo: invalid public origin: %w", err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("siteinfo: public origin has no host: %q", publicOrigin)
	}

	return strings.ToLower(u.Hostname()), nil
}

func isIPv4(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 || strings.Trim(p, "0123456789") != "" {
			return false
		}
	}
	return true
}
