// Package gateway is the declarative multi-provider API client. A Client
// turns (provider, path, options) into one authenticated HTTP request using
// the provider's registry descriptor and the resolved credential store, and
// returns the JSON body or a typed error.
//
// The client never retries, caches or rate-limits; each Call issues at most
// one outbound request, and none when a local check fails.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/enterprise-universe/universe-gateway/internal/credential"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

// Providers resolves provider keys. *registry.Registry satisfies it.
type Providers interface {
	Lookup(key string) (types.ProviderDescriptor, error)
}

// Client is safe for concurrent use; it holds no per-call state.
type Client struct {
	providers      Providers
	creds          *credential.Store
	doer           Doer
	logger         *slog.Logger
	recorder       Recorder
	userAgent      string
	defaultTimeout time.Duration
}

// New builds a client over a provider registry and an already-resolved
// credential store.
func New(providers Providers, creds *credential.Store, opts ...Option) *Client {
	c := &Client{
		providers: providers,
		creds:     creds,
		doer:      http.DefaultClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if creds == nil {
		c.creds = credential.NewStore(nil)
	}
	return c
}

// Call performs one request against providerKey ("category.name" or a
// unique bare name).
func (c *Client) Call(ctx context.Context, providerKey, path string, opts CallOptions) (*types.Response, error) {
	p, err := c.prepare(providerKey, path, opts)
	if err != nil {
		if c.recorder != nil {
			c.recorder.LocalError(Kind(err))
		}
		c.logger.Debug("provider call rejected", "provider", providerKey, "path", stripQuery(path), "error", err)
		return nil, err
	}
	return c.send(ctx, p, path)
}

// Do is Call driven by a request descriptor.
func (c *Client) Do(ctx context.Context, req types.Request) (*types.Response, error) {
	return c.Call(ctx, req.Provider, req.Path, CallOptions{
		Method:   req.Method,
		Params:   req.Params,
		Body:     req.Body,
		Headers:  req.Headers,
		PathVars: req.PathVars,
	})
}

// Build constructs the outbound request without sending it. Used by dry runs
// and tests; the returned request carries credentials.
func (c *Client) Build(ctx context.Context, providerKey, path string, opts CallOptions) (*http.Request, error) {
	p, err := c.prepare(providerKey, path, opts)
	if err != nil {
		return nil, err
	}
	return p.newRequest(ctx)
}

// Get, Post, Put, Patch and Delete are Call with a fixed method.
func (c *Client) Get(ctx context.Context, providerKey, path string, params map[string]any) (*types.Response, error) {
	return c.Call(ctx, providerKey, path, CallOptions{Method: http.MethodGet, Params: params})
}

func (c *Client) Post(ctx context.Context, providerKey, path string, body any) (*types.Response, error) {
	return c.Call(ctx, providerKey, path, CallOptions{Method: http.MethodPost, Body: body})
}

func (c *Client) Put(ctx context.Context, providerKey, path string, body any) (*types.Response, error) {
	return c.Call(ctx, providerKey, path, CallOptions{Method: http.MethodPut, Body: body})
}

func (c *Client) Patch(ctx context.Context, providerKey, path string, body any) (*types.Response, error) {
	return c.Call(ctx, providerKey, path, CallOptions{Method: http.MethodPatch, Body: body})
}

func (c *Client) Delete(ctx context.Context, providerKey, path string) (*types.Response, error) {
	return c.Call(ctx, providerKey, path, CallOptions{Method: http.MethodDelete})
}

func (c *Client) send(ctx context.Context, p *prepared, path string) (*types.Response, error) {
	key := p.desc.Key()
	logPath := stripQuery(path)

	timeout := p.desc.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := p.newRequest(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		netErr := &NetworkError{Provider: key, Path: logPath, Err: redactURLError(err)}
		c.finish(p, Kind(netErr), start, "error", netErr)
		return nil, netErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Provider:   key,
			Path:       logPath,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
		c.finish(p, "api_error", start, "status", resp.StatusCode)
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		netErr := &NetworkError{Provider: key, Path: logPath, Err: fmt.Errorf("read response body: %w", err)}
		c.finish(p, Kind(netErr), start, "error", netErr)
		return nil, netErr
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && !json.Valid(data) {
		decErr := &DecodeError{
			Provider:    key,
			Path:        logPath,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
		}
		c.finish(p, "decode_error", start, "status", resp.StatusCode)
		return nil, decErr
	}

	c.finish(p, "success", start, "status", resp.StatusCode)
	out := &types.Response{
		Provider:   key,
		Path:       path,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	if len(data) > 0 {
		out.Body = json.RawMessage(data)
	}
	return out, nil
}

func (c *Client) finish(p *prepared, outcome string, start time.Time, attrs ...any) {
	elapsed := time.Since(start)
	if c.recorder != nil {
		c.recorder.ObserveCall(p.desc.Key(), p.method, outcome, elapsed)
	}
	args := append([]any{
		"provider", p.desc.Key(),
		"method", p.method,
		"url", p.safeURL,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
	}, attrs...)
	if outcome == "success" {
		c.logger.Debug("provider call", args...)
		return
	}
	c.logger.Info("provider call failed", args...)
}

func statusText(resp *http.Response) string {
	// resp.Status is "404 Not Found"; keep the provider's own reason phrase.
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// redactURLError drops the request URL from transport errors, because the
// URL can carry query or path credentials.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: "[redacted]", Err: ue.Err}
	}
	return err
}
