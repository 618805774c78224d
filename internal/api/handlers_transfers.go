// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"

	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/transfer"
)

// TransferView is a job plus its derived progress percentage.
type TransferView struct {
	transfer.Job
	Progress int `json:"progress"`
}

func viewTransfer(job transfer.Job) TransferView {
	return TransferView{Job: job, Progress: job.Progress()}
}

type transferRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

func (s *Server) handleStartTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := log.ContextWithContextID(r.Context(), id)
	job, err := s.deps.Orchestrator.StartTransfer(ctx, orchestrator.TransferRequest{
		Locator:    req.URL,
		OutputName: req.Filename,
		ContextID:  id,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/contexts/"+strconv.FormatInt(id, 10)+"/transfer")
	writeJSON(w, http.StatusAccepted, viewTransfer(job))
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, ok, err := s.deps.Tracker.Current(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, Problem{Error: "not_found", Detail: "no transfer for context"})
		return
	}
	writeJSON(w, http.StatusOK, viewTransfer(job))
}

// CancelResponse reports whether a running job was stopped.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cancelled, err := s.deps.Orchestrator.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

func (s *Server) handleClearTransferState(w http.ResponseWriter, r *http.Request) {
	id, err := contextParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, active := s.deps.Tracker.Active(id); active {
		writeJSON(w, http.StatusConflict, Problem{Error: "transfer_active", Detail: "cancel the transfer before clearing its state"})
		return
	}
	if err := s.deps.Tracker.Clear(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
