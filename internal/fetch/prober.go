package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ManuGH/xgrab/internal/classify"
)

// ErrUnknownSize is returned when the server does not disclose a length.
var ErrUnknownSize = errors.New("fetch: size unknown")

// Prober issues metadata-only requests, throttled by a token bucket.
type Prober struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewProber returns a prober allowing rps requests per second. rps <= 0
// disables throttling.
func NewProber(hc *http.Client, rps float64) *Prober {
	if hc == nil {
		hc = NewHTTPClient(0)
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &Prober{http: hc, limiter: rate.NewLimiter(limit, burst)}
}

// Size returns the length of locator from a HEAD response, falling back to a
// one-byte range request when HEAD does not report it.
func (p *Prober) Size(ctx context.Context, locator string) (int64, error) {
	resp, err := p.do(ctx, http.MethodHead, locator, nil)
	if err == nil && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	resp, err = p.do(ctx, http.MethodGet, locator, http.Header{"Range": []string{"bytes=0-0"}})
	if err != nil {
		return 0, err
	}
	if n, ok := totalFromContentRange(resp.Header.Get("Content-Range")); ok {
		return n, nil
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}
	return 0, ErrUnknownSize
}

// Observe issues a HEAD request and returns it as a network observation,
// ready for classification.
func (p *Prober) Observe(ctx context.Context, locator string) (classify.NetworkObservation, error) {
	resp, err := p.do(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return classify.NetworkObservation{}, err
	}
	obs := classify.NetworkObservation{Locator: locator}
	for name, values := range resp.Header {
		for _, v := range values {
			obs.Headers = append(obs.Headers, classify.Header{Name: name, Value: v})
		}
	}
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") == "" {
		obs.Headers = append(obs.Headers, classify.Header{Name: "Content-Length", Value: strconv.FormatInt(resp.ContentLength, 10)})
	}
	return obs, nil
}

// do performs the request and closes the body; only headers are kept.
func (p *Prober) do(ctx context.Context, method, locator string, header http.Header) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &StatusError{Locator: locator, Status: resp.StatusCode}
	}
	return resp, nil
}

// totalFromContentRange parses "bytes 0-0/12345".
func totalFromContentRange(v string) (int64, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
