package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pithomlabs/orderflow/internal/store"
)

var (
	// ErrOrderExists rejects a start request for an order id that is
	// already on record.
	ErrOrderExists = errors.New("order already exists")

	// ErrUpstream wraps failures talking to the Restate ingress.
	ErrUpstream = errors.New("orchestrator unavailable")
)

// ErrorPayload is the body of every non-2xx response.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorPayload `json:"error"`
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, store.ErrOrderNotFound):
		return "not_found"

	case errors.Is(err, ErrOrderExists):
		return "conflict"

	case errors.Is(err, ErrUpstream):
		return "upstream_unavailable"

	default:
		return "internal"
	}
}

func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, store.ErrOrderNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrOrderExists):
		return http.StatusConflict

	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: ErrorPayload{Kind: kind, Message: message}})
}

// writeErr maps a sentinel-wrapped error onto the HTTP error vocabulary.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, httpStatus(err), errorKind(err), err.Error())
}
