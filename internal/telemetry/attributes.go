// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the resolve/fetch/merge spans.
const (
	LocatorKey      = "xgrab.locator"
	ContextIDKey    = "xgrab.context_id"
	JobIDKey        = "xgrab.job_id"
	PlaylistKindKey = "hls.playlist_kind"
	VariantBWKey    = "hls.variant_bandwidth"
	HopKey          = "hls.hop"
	SegmentsKey     = "fetch.segments"
	BatchSizeKey    = "fetch.batch_size"
	BatchIndexKey   = "fetch.batch_index"
	BytesKey        = "fetch.bytes"
	JobStatusKey    = "job.status"
)

// JobAttributes describes one transfer job.
func JobAttributes(jobID string, contextID int64, locator string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.Int64(ContextIDKey, contextID),
		attribute.String(LocatorKey, locator),
	}
}

// FetchAttributes describes one FetchAll call.
func FetchAttributes(segments, batchSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SegmentsKey, segments),
		attribute.Int(BatchSizeKey, batchSize),
	}
}

// PlaylistAttributes describes one fetched playlist.
func PlaylistAttributes(locator, kind string, hop int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LocatorKey, locator),
		attribute.String(PlaylistKindKey, kind),
		attribute.Int(HopKey, hop),
	}
}
