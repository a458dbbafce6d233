package httpx

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// Doer is the part of *http.Client the provider adapters depend on.
//
//go:generate mockgen -source=httpx.go -destination=httpxmock/mock_httpx.go -package=httpxmock
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultUserAgents is the browser pool rotated for providers that reject
// non-browser clients.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Client is a small wrapper around http.Client with sane defaults.
// When UserAgents is set, requests without an explicit User-Agent take the
// next entry of the pool in round-robin order.
type Client struct {
	HTTP       *http.Client
	UserAgent  string
	UserAgents []string
	Headers    map[string]string

	next atomic.Uint64
}

func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "portfoliotracker/1.0"}
}

// WithUserAgents returns a client sharing c's transport that rotates agents.
func (c *Client) WithUserAgents(agents []string) *Client {
	return &Client{HTTP: c.HTTP, UserAgent: c.UserAgent, UserAgents: agents, Headers: c.Headers}
}

// NextUserAgent returns the agent the next request would be sent with.
func (c *Client) NextUserAgent() string {
	if len(c.UserAgents) == 0 {
		return c.UserAgent
	}
	i := c.next.Add(1) - 1
	return c.UserAgents[i%uint64(len(c.UserAgents))]
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Header.Get("User-Agent") == "" {
		if ua := c.NextUserAgent(); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
