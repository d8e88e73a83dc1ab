package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorResponse is the uniform rejection body. Reason carries the stable
// machine-readable code so callers can branch without parsing messages.
type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// writeError sends a JSON-formatted error response with an explicit reason.
func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Reason: reason})
}

// writeServiceError maps a service-layer error onto an HTTP status and the
// stable reason code. Unrecognised errors become an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrStakeMismatch),
		errors.Is(err, domain.ErrInvalidProof),
		errors.Is(err, domain.ErrNotExpired),
		errors.Is(err, domain.ErrNotResolved),
		errors.Is(err, domain.ErrNoVote):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrClaimLocked):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrLockHeld):
		status, msg = http.StatusConflict, "resolution in progress"
	case errors.Is(err, domain.ErrEncodingUnavailable),
		errors.Is(err, domain.ErrDecryptionUnavailable):
		status, msg = http.StatusServiceUnavailable, err.Error()
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, domain.Reason(err), msg)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
