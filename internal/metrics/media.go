// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for xgrab.
// No locator, context or job ids in labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClassificationsTotal counts observations by outcome and provenance.
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_classifications_total",
		Help: "Total number of classified observations, by source, kind and provenance.",
	}, []string{"source", "kind", "provenance"})

	// CatalogRecords tracks the current catalog size.
	CatalogRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xgrab_catalog_records",
		Help: "Current number of records held by the catalog.",
	})

	// CatalogEvictionsTotal counts records removed by sweeps.
	CatalogEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_catalog_evictions_total",
		Help: "Total number of catalog records evicted, by reason (age, context, explicit).",
	}, []string{"reason"})

	// PersistFailuresTotal counts swallowed persistence errors.
	PersistFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_persist_failures_total",
		Help: "Total number of durable-storage writes that failed, by key space.",
	}, []string{"keyspace"})
)

// RecordClassification counts one positive classification. Use kind "none"
// for observations that were not media.
func RecordClassification(source, kind, provenance string) {
	ClassificationsTotal.WithLabelValues(source, kind, provenance).Inc()
}

// SetCatalogSize records the number of catalog records.
func SetCatalogSize(n int) {
	CatalogRecords.Set(float64(n))
}

// RecordEvictions adds n evictions for reason.
func RecordEvictions(reason string, n int) {
	if n <= 0 {
		return
	}
	CatalogEvictionsTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordPersistFailure counts a failed durable write.
func RecordPersistFailure(keyspace string) {
	PersistFailuresTotal.WithLabelValues(keyspace).Inc()
}

var (
	// SegmentFetchesTotal counts segment fetches by result.
	SegmentFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_segment_fetches_total",
		Help: "Total number of segment fetches, by result (ok, error, cancelled).",
	}, []string{"result"})

	// SegmentBytesTotal counts downloaded segment bytes.
	SegmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xgrab_segment_bytes_total",
		Help: "Total number of segment bytes downloaded.",
	})

	// BatchDuration observes wall time per segment batch.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xgrab_segment_batch_duration_seconds",
		Help:    "Duration of one segment batch, from fan-out to join.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// PlaylistResolutionsTotal counts playlist resolutions by result.
	PlaylistResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_playlist_resolutions_total",
		Help: "Total number of playlist resolutions, by result.",
	}, []string{"result"})

	// TransfersTotal counts finished transfers by terminal status.
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_transfers_total",
		Help: "Total number of transfers reaching a terminal status, by status.",
	}, []string{"status"})

	// ActiveTransfers tracks running transfers.
	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xgrab_active_transfers",
		Help: "Current number of running transfers.",
	})

	// PageResolutionsTotal counts page-resolution service calls by result.
	PageResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrab_page_resolutions_total",
		Help: "Total number of page-resolution attempts, by result.",
	}, []string{"result"})
)

// RecordSegmentFetch counts one segment fetch.
func RecordSegmentFetch(result string, bytes int) {
	SegmentFetchesTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		SegmentBytesTotal.Add(float64(bytes))
	}
}

// ObserveBatch records one batch duration.
func ObserveBatch(d time.Duration) {
	BatchDuration.Observe(d.Seconds())
}

// RecordPlaylistResolution counts one playlist resolution.
func RecordPlaylistResolution(result string) {
	PlaylistResolutionsTotal.WithLabelValues(result).Inc()
}

// RecordTransfer counts one transfer reaching status.
func RecordTransfer(status string) {
	TransfersTotal.WithLabelValues(status).Inc()
}

// RecordPageResolution counts one page-resolution attempt.
func RecordPageResolution(result string) {
	PageResolutionsTotal.WithLabelValues(result).Inc()
}
