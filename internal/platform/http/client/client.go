// Package client provides the outbound HTTP client used for third-party
// calls, with SSRF protection, bounded redirects and response size limits.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

var (
	ErrSSRFBlocked         = errors.New("request blocked by SSRF protection")
	ErrTooManyRedirects    = errors.New("too many redirects")
	ErrResponseTooLarge    = errors.New("response body too large")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrRedirectBlocked     = errors.New("redirect blocked by policy")
	ErrRedirectNotSameHost = errors.New("redirect to different host blocked")
	ErrRedirectDowngrade   = errors.New("redirect from https to http blocked")
	ErrHostUnresolvable    = errors.New("host could not be resolved")
)

// Resolver abstracts DNS resolution for testing.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Client is a safe HTTP client.
type Client struct {
	cfg        config.OutboundHTTPConfig
	httpClient *http.Client
	resolver   Resolver // nil uses net.DefaultResolver
	log        *slog.Logger
}

// DefaultConfig is used when New is given a nil config.
func DefaultConfig() config.OutboundHTTPConfig {
	return config.OutboundHTTPConfig{
		SSRFMode:         "strict",
		TimeoutMS:        10000,
		ConnectTimeoutMS: 2000,
		MaxRedirects:     1,
		MaxResponseBytes: 1 << 20,
	}
}

// New creates a client. Proxy environment variables are ignored.
func New(cfg *config.OutboundHTTPConfig, log *slog.Logger) *Client {
	c := &Client{cfg: DefaultConfig(), log: logutil.NoopIfNil(log)}
	if cfg != nil {
		c.cfg = *cfg
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(c.cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			// Re-checked at dial time so DNS rebinding between the
			// pre-flight check and the connection is caught.
			if c.strict() {
				if err := c.checkSSRF(ctx, addr); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(c.cfg.TimeoutMS) * time.Millisecond,
		// Redirects are followed manually under our own policy.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c
}

// SetResolver sets a custom DNS resolver (for testing).
func (c *Client) SetResolver(r Resolver) {
	c.resolver = r
}

func (c *Client) strict() bool {
	return c.cfg.SSRFMode == "strict"
}

func (c *Client) getResolver() Resolver {
	if c.resolver != nil {
		return c.resolver
	}
	return net.DefaultResolver
}

// checkSSRF validates a host:port dial address.
func (c *Client) checkSSRF(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return c.checkSSRFHost(ctx, host)
}

// checkSSRFHost rejects loopback, private, link-local, unspecified and
// multicast destinations. Unresolvable hosts fail closed.
func (c *Client) checkSSRFHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	lowerHost := strings.ToLower(host)
	if lowerHost == "localhost" || lowerHost == "localhost.localdomain" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("%w: localhost is blocked", ErrSSRFBlocked)
	}

	if ip := net.ParseIP(host); ip != nil {
		if !IsAllowedIP(ip) {
			return fmt.Errorf("%w: IP %s is blocked", ErrSSRFBlocked, ip)
		}
		return nil
	}

	ipAddrs, err := c.getResolver().LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}
	for _, ipAddr := range ipAddrs {
		if !IsAllowedIP(ipAddr.IP) {
			return fmt.Errorf("%w: %s resolves to blocked IP %s", ErrSSRFBlocked, host, ipAddr.IP)
		}
	}
	return nil
}

// IsAllowedIP reports whether ip is a public unicast address.
func IsAllowedIP(ip net.IP) bool {
	return !ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsUnspecified() &&
		!ip.IsMulticast()
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return c.Do(req)
}

// Do performs req under the SSRF, redirect and size policies. The returned
// body fails with ErrResponseTooLarge once it exceeds MaxResponseBytes.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.strict() {
		if err := c.checkSSRFHost(req.Context(), req.URL.Hostname()); err != nil {
			c.log.Warn("outbound request blocked", "host", req.URL.Hostname(), "error", err)
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if isRedirect(resp.StatusCode) {
		resp, err = c.followRedirect(req, resp, 0)
		if err != nil {
			return nil, err
		}
	}
	c.limitBody(resp)
	return resp, nil
}

// StandardClient returns an *http.Client whose requests go through Do. Use
// it with libraries that take a plain client.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{
		Transport: roundTripper{c},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type roundTripper struct{ c *Client }

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.c.Do(req)
}

// followRedirect follows a redirect only to the same host, without
// downgrading https, up to MaxRedirects hops. Bodies are not replayed, so
// the follow-up request is a GET.
func (c *Client) followRedirect(origReq *http.Request, resp *http.Response, depth int) (*http.Response, error) {
	defer resp.Body.Close()
	ctx := origReq.Context()

	maxRedirects := c.cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 1
	}
	if depth >= maxRedirects {
		return nil, fmt.Errorf("%w: exceeded limit of %d", ErrTooManyRedirects, maxRedirects)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: no Location header", ErrRedirectBlocked)
	}
	redirectURL, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Location: %v", ErrRedirectBlocked, err)
	}
	redirectURL = origReq.URL.ResolveReference(redirectURL)

	if origReq.URL.Scheme == "https" && redirectURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectDowngrade, origReq.URL.Scheme, redirectURL.Scheme)
	}
	if !isSameHost(origReq.URL, redirectURL) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectNotSameHost, origReq.URL.Host, redirectURL.Host)
	}

	newReq, err := http.NewRequestWithContext(ctx, http.MethodGet, redirectURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectBlocked, err)
	}
	// Authorization is never carried across a redirect.
	for _, h := range []string{"User-Agent", "Accept"} {
		if v := origReq.Header.Get(h); v != "" {
			newReq.Header.Set(h, v)
		}
	}

	newResp, err := c.httpClient.Do(newReq)
	if err != nil {
		return nil, err
	}
	if isRedirect(newResp.StatusCode) {
		return c.followRedirect(newReq, newResp, depth+1)
	}
	return newResp, nil
}

// isSameHost compares hostname and effective port.
func isSameHost(a, b *url.URL) bool {
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func (c *Client) limitBody(resp *http.Response) {
	if c.cfg.MaxResponseBytes <= 0 || resp.Body == nil {
		return
	}
	resp.Body = &limitedBody{rc: resp.Body, remaining: c.cfg.MaxResponseBytes}
}

// limitedBody errors once more than the allowed bytes were read.
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrResponseTooLarge
	}
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n, ErrResponseTooLarge
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}

// IsSSRFError reports whether err came from the SSRF guard.
func IsSSRFError(err error) bool {
	return errors.Is(err, ErrSSRFBlocked) || errors.Is(err, ErrHostUnresolvable)
}

// IsRedirectError reports whether err came from the redirect policy.
func IsRedirectError(err error) bool {
	return errors.Is(err, ErrRedirectBlocked) ||
		errors.Is(err, ErrRedirectNotSameHost) ||
		errors.Is(err, ErrRedirectDowngrade) ||
		errors.Is(err, ErrTooManyRedirects)
}
