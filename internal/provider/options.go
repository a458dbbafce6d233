package provider

import (
	"context"
	"net/http"
	"time"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/httpx"
)

const (
	DefaultQuoteTimeout   = 10 * time.Second
	DefaultHistoryTimeout = 30 * time.Second
)

// Options holds the request settings shared by all adapters.
type Options struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string
	// HTTPClient performs the requests.
	HTTPClient httpx.Doer
	// Header is sent with each request.
	Header http.Header
	// QuoteTimeout bounds a single quote request.
	QuoteTimeout time.Duration
	// HistoryTimeout bounds a single history request.
	HistoryTimeout time.Duration
	// Clock supplies "now" for history windows.
	Clock clock.Clock
}

// Option is a configuration option for an adapter.
type Option func(*Options)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		if baseURL != "" {
			o.BaseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(c httpx.Doer) Option {
	return func(o *Options) {
		if c != nil {
			o.HTTPClient = c
		}
	}
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(o *Options) {
		for key, values := range header {
			for _, value := range values {
				o.Header.Add(key, value)
			}
		}
	}
}

// WithTimeouts overrides the per-request timeouts. Zero keeps the default.
func WithTimeouts(quote, history time.Duration) Option {
	return func(o *Options) {
		if quote > 0 {
			o.QuoteTimeout = quote
		}
		if history > 0 {
			o.HistoryTimeout = history
		}
	}
}

// WithClock sets the clock used to compute history windows.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.Clock = c
		}
	}
}

// NewOptions applies opts over the adapter defaults.
func NewOptions(baseURL string, opts ...Option) Options {
	o := Options{
		BaseURL:        baseURL,
		HTTPClient:     http.DefaultClient,
		Header:         http.Header{},
		QuoteTimeout:   DefaultQuoteTimeout,
		HistoryTimeout: DefaultHistoryTimeout,
		Clock:          clock.System{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// QuoteContext derives the context for one quote request.
func (o Options) QuoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.QuoteTimeout)
}

// HistoryContext derives the context for one history request.
func (o Options) HistoryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.HistoryTimeout)
}
