// Package domscan finds <video> and <audio> sources in HTML pages and emits
// them as DOM observations for the classifier.
package domscan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/classify"
	xglog "github.com/ManuGH/xgrab/internal/log"
)

const (
	// DefaultInterval is the fallback re-scan interval of Watch.
	DefaultInterval = 5 * time.Second
	// DefaultMaxPageBytes caps a fetched page.
	DefaultMaxPageBytes = 4 << 20
)

var mediaTags = []string{"video", "audio"}

// Scanner fetches and scans pages.
type Scanner struct {
	http     *http.Client
	maxBytes int64
	logger   zerolog.Logger
}

// NewScanner returns a scanner using hc, or http.DefaultClient when nil.
func NewScanner(hc *http.Client) *Scanner {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Scanner{http: hc, maxBytes: DefaultMaxPageBytes, logger: xglog.WithComponent("domscan")}
}

// ScanHTML parses r as the document at pageURL. Element src attributes and
// nested <source src> children are resolved against the document base;
// duplicates are dropped while document order is kept.
func ScanHTML(pageURL string, r io.Reader, contextID *int64) ([]classify.DomObservation, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("domscan: page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("domscan: parse %s: %w", pageURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	var out []classify.DomObservation
	seen := make(map[string]bool)
	emit := func(tag, raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		src := raw
		if !strings.HasPrefix(raw, "blob:") {
			ref, err := base.Parse(raw)
			if err != nil {
				return
			}
			src = ref.String()
		}
		if seen[tag+"|"+src] {
			return
		}
		seen[tag+"|"+src] = true
		out = append(out, classify.DomObservation{Tag: tag, Source: src, ContextID: contextID})
	}

	doc.Find(strings.Join(mediaTags, ", ")).Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if src, ok := s.Attr("src"); ok {
			emit(tag, src)
		}
		s.Find("source[src]").Each(func(_ int, child *goquery.Selection) {
			emit(tag, child.AttrOr("src", ""))
		})
	})
	return out, nil
}

// Scan fetches pageURL and scans it.
func (s *Scanner) Scan(ctx context.Context, pageURL string, contextID *int64) ([]classify.DomObservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("domscan: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("domscan: %s returned status %d", pageURL, resp.StatusCode)
	}
	return ScanHTML(pageURL, io.LimitReader(resp.Body, s.maxBytes), contextID)
}

// Watch scans pageURL immediately and then every interval until ctx ends,
// handing each non-empty result to emit. Scan errors are logged and the
// watch continues. It returns ctx.Err().
func (s *Scanner) Watch(ctx context.Context, pageURL string, contextID *int64, interval time.Duration, emit func([]classify.DomObservation)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		obs, err := s.Scan(ctx, pageURL, contextID)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "domscan.failed").Str(xglog.FieldLocator, pageURL).Msg("page scan failed")
		case len(obs) > 0:
			emit(obs)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
