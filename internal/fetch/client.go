// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 30 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 32
	defaultMaxIdleConnsPerHost   = MaxBatchSize

	// DefaultMaxBodyBytes caps a single playlist or segment body.
	DefaultMaxBodyBytes = 256 << 20
	userAgent           = "xgrab/1"
)

// NewHTTPClient returns a hardened, traced HTTP client for outbound media
// requests. Dial and header timeouts are capped below the overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialTimeout := min(timeout, defaultDialTimeout)
	headerTimeout := min(timeout, defaultResponseHeaderTimeout)

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// StatusError reports a non-200 response.
type StatusError struct {
	Locator string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s returned status %d", e.Locator, e.Status)
}

// Client performs bounded GET requests. It satisfies hls.Getter and Getter.
type Client struct {
	http    *http.Client
	maxBody int64
}

// NewClient wraps hc. A nil hc uses NewHTTPClient(0).
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = NewHTTPClient(0)
	}
	return &Client{http: hc, maxBody: DefaultMaxBodyBytes}
}

// HTTP returns the underlying client.
func (c *Client) HTTP() *http.Client { return c.http }

// Get returns the full body of locator. Bodies above the size cap fail.
func (c *Client) Get(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Locator: locator, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", locator, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("fetch: %s exceeds %d bytes", locator, c.maxBody)
	}
	return body, nil
}
