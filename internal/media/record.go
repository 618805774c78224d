// Package media defines the record shared by classification, the catalog and
// the HTTP surface.
package media

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind is the closed set of media kinds.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	return k == KindVideo || k == KindAudio
}

func (k Kind) String() string { return string(k) }

// Provenance values recorded by the detectors. Display and filtering only.
const (
	ProvenanceContentType        = "content-type"
	ProvenanceURLExtension       = "url-extension"
	ProvenanceContentDisposition = "content-disposition"
	ProvenanceAmbiguousResolved  = "ambiguous-resolved"
	ProvenanceDOMScan            = "dom-scan"
	ProvenanceBlob               = "blob"
	ProvenancePageResolved       = "page-resolved"
)

// ErrInvalidRecord is returned when a record fails shape validation.
var ErrInvalidRecord = errors.New("media: invalid record")

// Record describes one detected resource. Only SizeBytes may change after
// creation; the catalog owns that mutation.
type Record struct {
	Locator     string    `json:"url"`
	Kind        Kind      `json:"type"`
	SizeBytes   *int64    `json:"size"`
	ContextID   *int64    `json:"contextId"`
	ObservedAt  time.Time `json:"observedAt"`
	Provenance  string    `json:"source,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// Option customises a record built by New.
type Option func(*Record)

// WithSize sets the declared size in bytes.
func WithSize(n int64) Option {
	return func(r *Record) { r.SizeBytes = &n }
}

// WithContext sets the originating browsing context.
func WithContext(id int64) Option {
	return func(r *Record) { r.ContextID = &id }
}

// WithProvenance records how the resource was detected.
func WithProvenance(p string) Option {
	return func(r *Record) { r.Provenance = p }
}

// WithContentType records the declared MIME type.
func WithContentType(ct string) Option {
	return func(r *Record) { r.ContentType = ct }
}

// ObservedAt overrides the creation timestamp.
func ObservedAt(t time.Time) Option {
	return func(r *Record) { r.ObservedAt = t }
}

// New builds and validates a record observed now.
func New(locator string, kind Kind, opts ...Option) (Record, error) {
	r := Record{Locator: locator, Kind: kind, ObservedAt: time.Now()}
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate checks the record shape.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Locator) == "" {
		return fmt.Errorf("%w: locator is required", ErrInvalidRecord)
	}
	if u, err := url.Parse(r.Locator); err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: locator %q is not absolute", ErrInvalidRecord, r.Locator)
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: kind must be one of video, audio (got %q)", ErrInvalidRecord, r.Kind)
	}
	if r.SizeBytes != nil && *r.SizeBytes < 0 {
		return fmt.Errorf("%w: size must be unknown or non-negative", ErrInvalidRecord)
	}
	if r.ContextID != nil && *r.ContextID < 0 {
		return fmt.Errorf("%w: context id must be non-negative", ErrInvalidRecord)
	}
	if r.ObservedAt.IsZero() || r.ObservedAt.Unix() < 0 {
		return fmt.Errorf("%w: observedAt must be set", ErrInvalidRecord)
	}
	return nil
}

// Age returns how long ago the record was observed relative to now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.ObservedAt)
}

// IsExpired reports whether the record is strictly older than maxAge.
func (r Record) IsExpired(now time.Time, maxAge time.Duration) bool {
	return r.Age(now) > maxAge
}

// InContext reports whether the record belongs to the given context.
func (r Record) InContext(id int64) bool {
	return r.ContextID != nil && *r.ContextID == id
}

// Clone returns a deep copy so callers cannot mutate catalog state.
func (r Record) Clone() Record {
	out := r
	if r.SizeBytes != nil {
		n := *r.SizeBytes
		out.SizeBytes = &n
	}
	if r.ContextID != nil {
		c := *r.ContextID
		out.ContextID = &c
	}
	return out
}

func (r Record) String() string {
	prov := r.Provenance
	if prov == "" {
		prov = "unknown"
	}
	return fmt.Sprintf("Record(%s: %s, size: %s, source: %s)", r.Kind, r.Locator, FormatSize(r.SizeBytes), prov)
}
