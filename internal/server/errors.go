package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"grepwise/internal/errs"
)

// errorResponse is the JSON body written for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// statusForKind centrally maps an errs error kind to an HTTP status code,
// per the error-kind taxonomy's client/capacity/availability/integrity
// grouping.
func statusForKind(kind error) int {
	switch {
	case errors.Is(kind, errs.ErrQuerySyntax), errors.Is(kind, errs.ErrEvalUnsupported),
		errors.Is(kind, errs.ErrBadConfig):
		return http.StatusBadRequest
	case errors.Is(kind, errs.ErrUnauthorizedReveal):
		return http.StatusForbidden
	case errors.Is(kind, errs.ErrBufferFull):
		return http.StatusServiceUnavailable
	case errors.Is(kind, errs.ErrQueryTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(kind, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(kind, errs.ErrPartitionUnavailable), errors.Is(kind, errs.ErrArchiveUnavailable),
		errors.Is(kind, errs.ErrNotifyChannelDown):
		return http.StatusServiceUnavailable
	case errors.Is(kind, errs.ErrIndexCorrupt), errors.Is(kind, errs.ErrIndexIO), errors.Is(kind, errs.ErrConfigIO):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err via errs.Kind and writes the matching status
// code plus a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.Kind(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
