package alphavantage

import (
	"net/http"
	"time"

	"stockview/internal/provider/ratelimit"
)

// Name is the provider identity tag stored with every cached record this
// client produces.
const Name = "alphavantage"

const (
	baseURL = "https://www.alphavantage.co/query"

	// Free-tier documented limit: 5 requests per rolling minute.
	rateLimitPerMinute = 5
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyFunc resolves the API key at call time. It returns "" when no key is
// configured; the client then fails with a credential error before any
// network attempt.
type KeyFunc func() string

// Client talks to the Alpha Vantage query API. All outbound calls pass
// through a sliding-window rate limiter shared by every operation.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// key resolves the API key per call.
	key KeyFunc
	// httpClient performs the requests.
	httpClient HTTPClient
	// limiter gates every outbound call.
	limiter *ratelimit.SlidingWindow
}

// ClientOption is a configuration option for the Alpha Vantage client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLimiter replaces the default 5-per-minute sliding-window limiter.
func WithLimiter(l *ratelimit.SlidingWindow) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// New creates an Alpha Vantage client. key may be nil, in which case every
// call fails with a credential error.
func New(key KeyFunc, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		key:        key,
		httpClient: http.DefaultClient,
		limiter:    ratelimit.NewSlidingWindow(rateLimitPerMinute, time.Minute),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Name implements provider.Client.
func (c *Client) Name() string { return Name }
