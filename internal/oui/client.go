// Package oui resolves MAC address prefixes to adapter vendors through
// the macvendors HTTP API. Lookups are cached per process and rate
// limited; every failure degrades to Unknown so vendor enrichment can
// never fail a scan.
package oui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Unknown is returned for every MAC the client cannot resolve.
const Unknown = "Unknown"

const (
	defaultEndpoint = "https://api.macvendors.com"
	defaultTimeout  = 5 * time.Second

	// The public API allows roughly one request per second without a
	// key; stay under that.
	defaultRPS = 1.0

	maxBodySize = 4 << 10
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// Resolver maps a hardware address to a vendor name.
type Resolver interface {
	Vendor(ctx context.Context, mac string) string
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Endpoint overrides the API base URL; tests point it at an
	// httptest server.
	Endpoint string

	// Timeout bounds a single lookup request.
	Timeout time.Duration

	// MaxRPS caps the request rate. Zero uses the API's public limit.
	MaxRPS float64

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// Client is the caching, rate-limited resolver.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.Mutex
	cache map[string]string // OUI prefix -> vendor
}

// Compile-time check that Client implements Resolver.
var _ Resolver = (*Client)(nil)

// NewClient creates a resolver with the given options.
func NewClient(opts ClientOptions) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRPS <= 0 {
		opts.MaxRPS = defaultRPS
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.MaxRPS), 1),
		cache:      make(map[string]string),
	}
}

// Vendor resolves mac to a vendor name. Invalid addresses, API errors,
// rate limit interruptions, and unknown prefixes all return Unknown.
// Results are cached by OUI prefix, so a capture full of clients from
// one vendor costs a single request.
func (c *Client) Vendor(ctx context.Context, mac string) string {
	if !macPattern.MatchString(mac) {
		return Unknown
	}
	prefix := ouiPrefix(mac)

	c.mu.Lock()
	if vendor, ok := c.cache[prefix]; ok {
		c.mu.Unlock()
		return vendor
	}
	c.mu.Unlock()

	vendor := c.lookup(ctx, mac)

	c.mu.Lock()
	c.cache[prefix] = vendor
	c.mu.Unlock()
	return vendor
}

func (c *Client) lookup(ctx context.Context, mac string) string {
	if err := c.limiter.Wait(ctx); err != nil {
		return Unknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", c.endpoint, mac), nil)
	if err != nil {
		return Unknown
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Unknown
	}
	defer resp.Body.Close()

	// The API answers 404 for unregistered prefixes.
	if resp.StatusCode != http.StatusOK {
		return Unknown
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Unknown
	}
	vendor := strings.TrimSpace(string(body))
	if vendor == "" {
		return Unknown
	}
	return vendor
}

// ouiPrefix returns the normalized first three octets of mac.
func ouiPrefix(mac string) string {
	mac = strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
	parts := strings.SplitN(mac, ":", 4)
	return strings.Join(parts[:3], ":")
}

// Disabled is a Resolver that never looks anything up, used when
// vendor enrichment is switched off.
type Disabled struct{}

var _ Resolver = Disabled{}

// Vendor implements Resolver.
func (Disabled) Vendor(context.Context, string) string { return Unknown }
