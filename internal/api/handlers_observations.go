// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/media"
)

// RecordView is a catalog record as served to clients.
type RecordView struct {
	media.Record
	SizeLabel string `json:"sizeLabel"`
}

func viewRecord(rec media.Record) RecordView {
	return RecordView{Record: rec, SizeLabel: media.FormatSize(rec.SizeBytes)}
}

// ObservationResponse reports what an observation produced.
type ObservationResponse struct {
	Media    bool        `json:"media"`
	Inserted bool        `json:"inserted"`
	Record   *RecordView `json:"record,omitempty"`
}

func observationResponse(rec media.Record, inserted bool) ObservationResponse {
	if rec.Locator == "" {
		return ObservationResponse{}
	}
	v := viewRecord(rec)
	return ObservationResponse{Media: true, Inserted: inserted, Record: &v}
}

func (s *Server) handleNetworkObservation(w http.ResponseWriter, r *http.Request) {
	var obs classify.NetworkObservation
	if err := decodeJSON(w, r, &obs); err != nil {
		writeError(w, r, err)
		return
	}
	s.observe(w, r, obs, obs.ContextID)
}

func (s *Server) handleDomObservation(w http.ResponseWriter, r *http.Request) {
	var obs classify.DomObservation
	if err := decodeJSON(w, r, &obs); err != nil {
		writeError(w, r, err)
		return
	}
	s.observe(w, r, obs, obs.ContextID)
}

func (s *Server) observe(w http.ResponseWriter, r *http.Request, obs classify.Observation, contextID *int64) {
	ctx := r.Context()
	if contextID != nil {
		ctx = log.ContextWithContextID(ctx, *contextID)
	}
	rec, inserted, err := s.deps.Orchestrator.Observe(ctx, obs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, observationResponse(rec, inserted))
}

type navigationRequest struct {
	URL       string `json:"url"`
	ContextID *int64 `json:"contextId,omitempty"`
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	if req.ContextID != nil {
		ctx = log.ContextWithContextID(ctx, *req.ContextID)
	}
	rec, inserted, err := s.deps.Orchestrator.Navigate(ctx, req.URL, req.ContextID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, observationResponse(rec, inserted))
}

type scanRequest struct {
	URL string `json:"url"`
	// Watch keeps re-scanning the page in the background after this scan.
	Watch bool `json:"watch"`
}

// ScanResponse lists what a page scan found and catalogued.
type ScanResponse struct {
	Found    int          `json:"found"`
	Added    []RecordView `json:"added"`
	Watching bool         `json:"watching"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Scanner == nil {
		writeJSON(w, http.StatusNotImplemented, Problem{Error: "not_configured", Detail: "page scanner disabled"})
		return
	}

	ctx := log.ContextWithContextID(r.Context(), id)
	found, err := s.deps.Scanner.Scan(ctx, req.URL, &id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := ScanResponse{Found: len(found), Added: []RecordView{}}
	for _, obs := range found {
		rec, inserted, err := s.deps.Orchestrator.Observe(ctx, obs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if inserted {
			resp.Added = append(resp.Added, viewRecord(rec))
		}
	}
	if req.Watch {
		if err := s.deps.Orchestrator.Watch(id, req.URL, 0); err != nil {
			writeError(w, r, err)
			return
		}
		resp.Watching = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// WatchResponse reports whether a page watch was stopped.
type WatchResponse struct {
	Stopped bool `json:"stopped"`
}

func (s *Server) handleStopWatch(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WatchResponse{Stopped: s.deps.Orchestrator.StopWatch(id)})
}

type sizeRequest struct {
	URL string `json:"url"`
}

// SizeResponse is the result of a size back-fill.
type SizeResponse struct {
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	SizeLabel string `json:"sizeLabel"`
}

func (s *Server) handleProbeSize(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.deps.Orchestrator.ProbeSize(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SizeResponse{URL: req.URL, Size: n, SizeLabel: media.FormatSize(&n)})
}
