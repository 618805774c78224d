package hls

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/telemetry"
)

// MaxMasterHops bounds how many master playlists Resolve follows.
const MaxMasterHops = 2

// ErrTooManyHops is returned when a master chain exceeds MaxMasterHops.
var ErrTooManyHops = errors.New("hls: too many master playlist hops")

// FetchError reports a failed playlist retrieval.
type FetchError struct {
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("hls: fetch playlist %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Getter retrieves a playlist body.
type Getter interface {
	Get(ctx context.Context, locator string) ([]byte, error)
}

// Resolver fetches playlists and follows master variants down to a media
// playlist.
type Resolver struct {
	getter  Getter
	maxHops int
	logger  zerolog.Logger
}

// NewResolver returns a resolver that fetches through g.
func NewResolver(g Getter) *Resolver {
	return &Resolver{
		getter:  g,
		maxHops: MaxMasterHops,
		logger:  xglog.WithComponent("hls"),
	}
}

// Resolve returns the media playlist reachable from locator.
func (r *Resolver) Resolve(ctx context.Context, locator string) (doc *Document, err error) {
	ctx, span := telemetry.Tracer("xgrab/hls").Start(ctx, "hls.resolve")
	defer func() {
		if doc != nil {
			span.SetAttributes(attribute.Int(telemetry.SegmentsKey, len(doc.Segments)))
		}
		telemetry.EndSpan(span, err)
		metrics.RecordPlaylistResolution(resolutionResult(err))
	}()

	logger := xglog.WithContext(ctx, r.logger)
	current := locator
	for hop := 0; ; hop++ {
		body, err := r.getter.Get(ctx, current)
		if err != nil {
			return nil, &FetchError{Locator: current, Err: err}
		}
		doc, err := Parse(string(body), current)
		if err != nil {
			return nil, err
		}
		span.AddEvent("playlist", trace.WithAttributes(telemetry.PlaylistAttributes(current, string(doc.Kind), hop)...))

		if doc.Kind == KindMedia {
			logger.Debug().
				Str(xglog.FieldEvent, "hls.resolved").
				Str(xglog.FieldLocator, current).
				Int(xglog.FieldSegments, len(doc.Segments)).
				Int("hops", hop).
				Msg("media playlist resolved")
			return doc, nil
		}

		if hop >= r.maxHops {
			return nil, ErrTooManyHops
		}
		variant, _ := SelectVariant(doc.Variants)
		logger.Debug().
			Str(xglog.FieldEvent, "hls.variant_selected").
			Str(xglog.FieldVariant, variant.Locator).
			Int64("bandwidth", variant.Bandwidth).
			Msg("following master playlist variant")
		current = variant.Locator
	}
}

func resolutionResult(err error) string {
	var fe *FetchError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &fe):
		return "fetch_error"
	case errors.Is(err, ErrEmptyPlaylist), errors.Is(err, ErrNoVariants), errors.Is(err, ErrTooManyHops):
		return "malformed"
	default:
		return "error"
	}
}
