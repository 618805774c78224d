package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/xgrab/internal/config"
)

// refreshMaxAge is how old a context's records may be before a refresh
// drops them.
const refreshMaxAge = 5 * time.Minute

// MediaList is the catalog view of one browsing context.
type MediaList struct {
	ContextID int64        `json:"contextId"`
	Count     int          `json:"count"`
	Items     []RecordView `json:"items"`
}

// Removed reports how many records an operation evicted.
type Removed struct {
	Removed int `json:"removed"`
}

func (s *Server) settings() config.Settings {
	if s.deps.Settings == nil {
		return config.DefaultSettings()
	}
	return s.deps.Settings.Get()
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st := s.settings()
	ephemeral, err := queryBool(r, "ephemeral", st.ShowEphemeralSources)
	if err != nil {
		writeError(w, r, err)
		return
	}
	segments, err := queryBool(r, "segments", st.ShowSegmentLikeEntries)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs := s.deps.Catalog.ForContext(id, ephemeral, segments)
	list := MediaList{ContextID: id, Count: len(recs), Items: make([]RecordView, 0, len(recs))}
	for _, rec := range recs {
		list.Items = append(list.Items, viewRecord(rec))
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleClearMedia(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Removed{Removed: s.deps.Orchestrator.ClearContext(r.Context(), id)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Removed{Removed: s.deps.Catalog.SweepContext(r.Context(), id, refreshMaxAge)})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Settings == nil {
		writeJSON(w, http.StatusNotImplemented, Problem{Error: "not_configured", Detail: "settings store disabled"})
		return
	}
	next := s.settings()
	if err := decodeJSON(w, r, &next); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.deps.Settings.Put(r.Context(), next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
