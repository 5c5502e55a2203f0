package gateway

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/enterprise-universe/universe-gateway/internal/config"
)

// CallOptions are the per-call parts of a request descriptor.
type CallOptions struct {
	// Method defaults to GET, or POST when Body is set.
	Method string
	// Params values are coerced to strings; nil values are omitted.
	Params map[string]any
	// Body is JSON-encoded. json.RawMessage is sent as-is.
	Body any
	// Headers are merged after the defaults and the auth header. A name
	// that collides with the auth header fails the call.
	Headers map[string]string
	// PathVars fill {placeholder} segments of the base URL.
	PathVars map[string]string
}

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives call outcomes. The telemetry package provides a
// Prometheus implementation; a nil Recorder disables recording.
type Recorder interface {
	ObserveCall(provider, method, outcome string, duration time.Duration)
	LocalError(kind string)
}

type Option func(*Client)

// WithDoer replaces the HTTP transport, e.g. with a mock in tests.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithDefaultTimeout bounds calls to providers that set no timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// NewHTTPClient builds the shared outbound client. Deadlines come from the
// call context, so the client itself has no Timeout.
func NewHTTPClient(cfg config.ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// FromConfig returns the options matching the client section of gateway.yaml.
func FromConfig(cfg config.ClientConfig) []Option {
	return []Option{
		WithDoer(NewHTTPClient(cfg)),
		WithDefaultTimeout(cfg.DefaultTimeout),
		WithUserAgent(cfg.UserAgent),
	}
}
