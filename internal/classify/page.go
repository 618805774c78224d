// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package classify

import (
	"net/url"
	"regexp"
	"strings"
)

var shortCodePattern = regexp.MustCompile(`/video/(BV[0-9A-Za-z]+)`)

// PageRef identifies a video-hosting page that needs page resolution rather
// than classification.
type PageRef struct {
	PageURL string
	// Code is the short code as it appears in the page URL ("BV1xx").
	Code string
	// APICode is the code as the resolution service expects it ("1xx").
	APICode string
}

// PageShortCode recognises video-hosting page URLs. Such pages are never
// classified directly.
func PageShortCode(locator string) (PageRef, bool) {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return PageRef{}, false
	}
	if !strings.Contains(strings.ToLower(u.Hostname()), "bilibili.com") {
		return PageRef{}, false
	}
	m := shortCodePattern.FindStringSubmatch(u.Path)
	if m == nil {
		return PageRef{}, false
	}
	return PageRef{PageURL: locator, Code: m[1], APICode: strings.TrimPrefix(m[1], "BV")}, true
}
