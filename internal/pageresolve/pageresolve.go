// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pageresolve turns video-hosting page short codes into direct media
// locators through an external, unauthenticated resolution service. Every
// response is treated as hostile input.
package pageresolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/idna"
	"golang.org/x/time/rate"

	"github.com/ManuGH/xgrab/internal/classify"
	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/resilience"
)

const (
	DefaultBaseURL      = "https://api.injahow.cn/bparse/"
	DefaultCodeParam    = "code"
	DefaultRatePerSec   = 2
	DefaultMaxBodyBytes = 8 << 10
	DefaultDedupSize    = 512

	breakerThreshold = 5
	breakerReset     = time.Minute
)

var (
	// ErrInvalidResponse is returned when the body is not an absolute
	// http(s) URL with a valid host.
	ErrInvalidResponse = errors.New("pageresolve: invalid response")
	// ErrResponseTooLarge is returned when the body exceeds the size cap.
	ErrResponseTooLarge = errors.New("pageresolve: response too large")
)

// Error wraps a failed resolution with the short code that triggered it.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pageresolve: code %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError reports a non-200 answer from the service.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service returned status %d", e.Status)
}

// Config tunes the client. Zero values take the defaults.
type Config struct {
	BaseURL       string
	CodeParam     string
	RatePerSecond float64
	MaxBodyBytes  int64
	DedupSize     int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.CodeParam == "" {
		c.CodeParam = DefaultCodeParam
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = DefaultRatePerSec
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.DedupSize <= 0 {
		c.DedupSize = DefaultDedupSize
	}
	return c
}

// Client calls the resolution service, throttled and behind a circuit
// breaker, and remembers which main paths it has already produced.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	seen    *lru.Cache[string, struct{}]
	logger  zerolog.Logger
}

// New validates cfg and returns a client. A nil hc uses http.DefaultClient.
func New(cfg Config, hc *http.Client) (*Client, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("pageresolve: invalid base url %q", cfg.BaseURL)
	}
	seen, err := lru.New[string, struct{}](cfg.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("pageresolve: dedup cache: %w", err)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		cfg:     cfg,
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(1, int(cfg.RatePerSecond))),
		breaker: resilience.NewCircuitBreaker("pageresolve", breakerThreshold, breakerReset),
		seen:    seen,
		logger:  xglog.WithComponent("pageresolve"),
	}, nil
}

// Resolve asks the service for the direct locator behind ref.
func (c *Client) Resolve(ctx context.Context, ref classify.PageRef) (string, error) {
	var direct string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := c.fetch(ctx, ref.APICode)
		if err != nil {
			return err
		}
		direct, err = ValidateDirectURL(body)
		return err
	})
	if err != nil {
		metrics.RecordPageResolution(resultLabel(err))
		c.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "pageresolve.failed").
			Str("code", ref.Code).
			Msg("page resolution failed")
		return "", &Error{Code: ref.Code, Err: err}
	}
	metrics.RecordPageResolution("ok")
	return direct, nil
}

// FirstSeen records the main path of locator and reports whether it was new.
func (c *Client) FirstSeen(locator string) bool {
	key, err := MainPath(locator)
	if err != nil {
		return false
	}
	found, _ := c.seen.ContainsOrAdd(key, struct{}{})
	return !found
}

// Forget drops the main path of locator from the dedup set.
func (c *Client) Forget(locator string) {
	if key, err := MainPath(locator); err == nil {
		c.seen.Remove(key)
	}
}

// BreakerState reports the state of the circuit guarding the service.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) fetch(ctx context.Context, code string) (string, error) {
	u := *c.base
	q := u.Query()
	q.Set(c.cfg.CodeParam, code)
	q.Set("otype", "url")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Status: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(raw)) > c.cfg.MaxBodyBytes {
		return "", ErrResponseTooLarge
	}
	return string(raw), nil
}

// ValidateDirectURL trims body and accepts it only as an absolute http(s)
// URL without credentials whose host survives IDNA lookup rules. It returns
// the normalised URL.
func ValidateDirectURL(body string) (string, error) {
	s := strings.TrimSpace(body)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", ErrInvalidResponse
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("%w: embedded whitespace", ErrInvalidResponse)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials not allowed", ErrInvalidResponse)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidResponse)
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: host %q: %v", ErrInvalidResponse, host, err)
		}
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment, u.RawFragment = "", ""
	return u.String(), nil
}

// MainPath returns scheme://host/path of locator, dropping query and
// fragment. Signed variants of one resource share a main path.
func MainPath(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("pageresolve: %q is not absolute", locator)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath(), nil
}

func resultLabel(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrResponseTooLarge):
		return "invalid"
	case errors.As(err, &se):
		return "status"
	default:
		return "error"
	}
}
