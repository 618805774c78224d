// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package classify decides whether an observed network transaction or DOM
// element is downloadable media. It holds no state.
package classify

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ManuGH/xgrab/internal/media"
)

// Result is a positive classification.
type Result struct {
	Locator     string
	Kind        media.Kind
	Provenance  string
	SizeBytes   *int64
	ContentType string
	ContextID   *int64
	// Ephemeral marks in-memory object references that cannot be fetched
	// outside the page that created them.
	Ephemeral bool
}

// Record converts the result into a catalog record observed now. extra
// options apply last, so media.ObservedAt can supply another clock.
func (r Result) Record(extra ...media.Option) (media.Record, error) {
	opts := []media.Option{media.WithProvenance(r.Provenance)}
	if r.SizeBytes != nil {
		opts = append(opts, media.WithSize(*r.SizeBytes))
	}
	if r.ContextID != nil {
		opts = append(opts, media.WithContext(*r.ContextID))
	}
	if r.ContentType != "" {
		opts = append(opts, media.WithContentType(r.ContentType))
	}
	return media.New(r.Locator, r.Kind, append(opts, extra...)...)
}

// Classify dispatches on the observation type. The boolean is false when the
// observation is not media.
func Classify(obs Observation) (Result, bool) {
	switch o := obs.(type) {
	case NetworkObservation:
		return classifyNetwork(o)
	case *NetworkObservation:
		if o == nil {
			return Result{}, false
		}
		return classifyNetwork(*o)
	case DomObservation:
		return classifyDom(o)
	case *DomObservation:
		if o == nil {
			return Result{}, false
		}
		return classifyDom(*o)
	default:
		return Result{}, false
	}
}

func classifyNetwork(o NetworkObservation) (Result, bool) {
	if !isHTTP(o.Locator) || Excluded(o.Locator) {
		return Result{}, false
	}

	contentType := o.Header("Content-Type")
	res := Result{
		Locator:     o.Locator,
		ContentType: contentType,
		ContextID:   o.ContextID,
		SizeBytes:   parseLength(o.Header("Content-Length")),
	}

	normalized := normalizeContentType(contentType)
	if k, ok := contentTypes[normalized]; ok {
		res.Kind, res.Provenance = k, media.ProvenanceContentType
		return res, true
	}
	if k, ok := KindForExtension(locatorExtension(o.Locator)); ok {
		res.Kind, res.Provenance = k, media.ProvenanceURLExtension
		if _, ambiguous := ambiguousTypes[normalized]; ambiguous {
			res.Provenance = media.ProvenanceAmbiguousResolved
		}
		return res, true
	}

	if name := FilenameFromDisposition(o.Header("Content-Disposition")); name != "" {
		if k, ok := KindForExtension(strings.TrimPrefix(path.Ext(name), ".")); ok {
			res.Kind, res.Provenance = k, media.ProvenanceContentDisposition
			return res, true
		}
	}
	return Result{}, false
}

func classifyDom(o DomObservation) (Result, bool) {
	var kind media.Kind
	switch lower(strings.TrimSpace(o.Tag)) {
	case "video":
		kind = media.KindVideo
	case "audio":
		kind = media.KindAudio
	default:
		return Result{}, false
	}

	src := strings.TrimSpace(o.Source)
	ephemeral := strings.HasPrefix(lower(src), "blob:")
	if !ephemeral && !isHTTP(src) {
		return Result{}, false
	}
	return Result{
		Locator:    src,
		Kind:       kind,
		Provenance: media.ProvenanceDOMScan,
		ContextID:  o.ContextID,
		Ephemeral:  ephemeral,
	}, true
}

// IsEphemeral reports whether a locator is an in-memory object reference.
func IsEphemeral(locator string) bool {
	return strings.HasPrefix(lower(locator), "blob:")
}

func isHTTP(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// locatorExtension returns the lower-case extension of the URL path, or "".
func locatorExtension(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) < 2 || !isAlnum(ext[1:]) {
		return ""
	}
	return lower(ext[1:])
}

// LocatorExtension is locatorExtension for other packages.
func LocatorExtension(locator string) string { return locatorExtension(locator) }

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return lower(strings.TrimSpace(ct))
}

func parseLength(v string) *int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func lower(s string) string { return strings.ToLower(s) }
