// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/xgrab/internal/catalog"
	"github.com/ManuGH/xgrab/internal/fetch"
	"github.com/ManuGH/xgrab/internal/hls"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/media"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/pageresolve"
	"github.com/ManuGH/xgrab/internal/resilience"
)

// errBadRequest marks request decoding and parameter failures.
var errBadRequest = errors.New("bad request")

// Problem is the JSON body of every error response.
type Problem struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and problem code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := classifyError(err)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "request.failed").Msg("request failed")
	}
	writeJSON(w, code, Problem{
		Error:     kind,
		Detail:    err.Error(),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func classifyError(err error) (int, string) {
	var (
		fetchStatus *fetch.StatusError
		pageStatus  *pageresolve.StatusError
		hlsFetch    *hls.FetchError
	)
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, orchestrator.ErrInvalidLocator), errors.Is(err, media.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_locator"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orchestrator.ErrUnsupported):
		return http.StatusNotImplemented, "not_configured"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, pageresolve.ErrInvalidResponse), errors.Is(err, pageresolve.ErrResponseTooLarge),
		errors.Is(err, fetch.ErrUnknownSize), errors.As(err, &fetchStatus), errors.As(err, &pageStatus),
		errors.As(err, &hlsFetch):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
