// Package httpclient fetches remote fragments over HTTP with SSRF
// protection, a request rate limit and a response size cap.
package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/version"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRedirects = 10
	DefaultMaxBytes     = 1 << 20
)

// StatusError is a non-2xx response other than 401, 403 and 404.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

var userAgent = version.Get().UserAgent()

// Options tune a SaferClient. Zero values take the defaults.
type Options struct {
	Timeout        time.Duration
	AllowedSchemes []string // Default: ["http", "https"]
	MaxRedirects   int      // Default: 10
	BlockPrivateIP *bool    // Default: true
	// MaxBytes caps a response body. Default: 1 MiB
	MaxBytes int64
	// RequestsPerMinute limits outbound fetches. Zero means no limit.
	RequestsPerMinute int
}

// SaferClient wraps http.Client with SSRF protection
type SaferClient struct {
	*http.Client
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
	maxBytes       int64
	limiter        *rate.Limiter
}

// NewSaferClient creates a client with SSRF protection and default options
func NewSaferClient(timeout time.Duration) *SaferClient {
	return New(Options{Timeout: timeout})
}

// New creates a client from opts.
func New(opts Options) *SaferClient {
	client := &SaferClient{
		Client:         &http.Client{Timeout: opts.Timeout},
		allowedSchemes: []string{"http", "https"},
		blockPrivateIP: true,
		maxRedirects:   DefaultMaxRedirects,
		maxBytes:       DefaultMaxBytes,
	}
	if opts.AllowedSchemes != nil {
		client.allowedSchemes = opts.AllowedSchemes
	}
	if opts.MaxRedirects > 0 {
		client.maxRedirects = opts.MaxRedirects
	}
	if opts.BlockPrivateIP != nil {
		client.blockPrivateIP = *opts.BlockPrivateIP
	}
	if opts.MaxBytes > 0 {
		client.maxBytes = opts.MaxBytes
	}
	if opts.RequestsPerMinute > 0 {
		client.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.RequestsPerMinute)
	}

	client.CheckRedirect = client.checkRedirect
	if client.blockPrivateIP {
		client.Transport = guardedTransport()
	}
	return client
}

// WrapClient wraps an existing http.Client without private IP blocking.
// Only tests against httptest servers on localhost should use it.
func WrapClient(client *http.Client) *SaferClient {
	c := &SaferClient{
		Client:         client,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   DefaultMaxRedirects,
		maxBytes:       DefaultMaxBytes,
	}
	if c.CheckRedirect == nil {
		c.CheckRedirect = c.checkRedirect
	}
	return c
}

// WithLimiter replaces the request rate limiter.
func (c *SaferClient) WithLimiter(l *rate.Limiter) *SaferClient {
	c.limiter = l
	return c
}

// WithMaxBytes replaces the response size cap.
func (c *SaferClient) WithMaxBytes(n int64) *SaferClient {
	c.maxBytes = n
	return c
}

func (c *SaferClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.maxRedirects {
		return errors.Newf("stopped after %d redirects", c.maxRedirects)
	}
	if err := c.validateURL(req.URL); err != nil {
		return errors.Wrap(err, "redirect blocked")
	}
	return nil
}

// guardedTransport resolves the host itself and refuses private addresses,
// which also covers DNS rebinding.
func guardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, errors.Newf("private IP address blocked: %s", ip)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// validateURL validates URL for SSRF protection before making request
func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}

	// http://evil.com@localhost/
	if strings.Contains(u.String(), "@") {
		return errors.New("URL contains @ character (potential SSRF attempt)")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

// ValidateURL validates a URL string before creating a request
func (c *SaferClient) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Fetch GETs urlStr and returns the body. Failures are marked with the
// errors package failure classes: ErrInvalidRequest for blocked or
// malformed URLs and oversized bodies, ErrTimeout, ErrTLS, ErrNetwork,
// ErrNotFound for 404 and ErrForbidden for 401/403. Other statuses are a
// *StatusError.
func (c *SaferClient) Fetch(ctx context.Context, urlStr string) ([]byte, error) {
	u, err := c.ValidateURL(urlStr)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidRequest)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "rate limit wait"), errors.ErrTimeout)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid request"), errors.ErrInvalidRequest)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFoundError("GET %s: 404", urlStr)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.NewForbiddenError("GET %s: %d", urlStr, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{URL: urlStr, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, errors.NewInvalidRequestError("GET %s: response exceeds %d bytes", urlStr, c.maxBytes)
	}
	return body, nil
}

// classifyTransportError marks a client.Do failure with its failure class.
func classifyTransportError(err error) error {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
		netErr           net.Error
	)
	switch {
	case errors.As(err, &verification), errors.As(err, &unknownAuthority),
		errors.As(err, &hostname), errors.As(err, &invalidCert), errors.As(err, &recordHeader):
		return errors.Mark(err, errors.ErrTLS)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Mark(err, errors.ErrTimeout)
	case errors.As(err, &netErr) && netErr.Timeout():
		return errors.Mark(err, errors.ErrTimeout)
	}
	return errors.Mark(err, errors.ErrNetwork)
}

// isPrivateIP checks if an IP is in private/special use ranges
func isPrivateIP(ip net.IP) bool {
	privateBlocks := []net.IPNet{
		{IP: net.IPv4(10, 0, 0, 0), Mask: net.CIDRMask(8, 32)},     // 10.0.0.0/8
		{IP: net.IPv4(172, 16, 0, 0), Mask: net.CIDRMask(12, 32)},  // 172.16.0.0/12
		{IP: net.IPv4(192, 168, 0, 0), Mask: net.CIDRMask(16, 32)}, // 192.168.0.0/16
		{IP: net.IPv4(127, 0, 0, 0), Mask: net.CIDRMask(8, 32)},    // loopback
		{IP: net.IPv4(169, 254, 0, 0), Mask: net.CIDRMask(16, 32)}, // link-local
		{IP: net.IPv4(0, 0, 0, 0), Mask: net.CIDRMask(8, 32)},      // 0.0.0.0/8
		{IP: net.IPv4(224, 0, 0, 0), Mask: net.CIDRMask(4, 32)},    // multicast
		{IP: net.IPv4(240, 0, 0, 0), Mask: net.CIDRMask(4, 32)},    // reserved
	}

	if ip4 := ip.To4(); ip4 != nil {
		for _, block := range privateBlocks {
			if block.Contains(ip4) {
				return true
			}
		}
		return false
	}

	if len(ip) != net.IPv6len {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	// fc00::/7 unique local
	if (ip[0] & 0xfe) == 0xfc {
		return true
	}
	// fec0::/10 site-local, deprecated
	if ip[0] == 0xfe && (ip[1]&0xc0) == 0xc0 {
		return true
	}
	// 2001:db8::/32 documentation
	return ip[0] == 0x20 && ip[1] == 0x01 && ip[2] == 0x0d && ip[3] == 0xb8
}

// isLocalhost checks for localhost variants
func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
