package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// ResolutionService defines the methods that the resolve handler requires
// from the service layer.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID, initiator string) (domain.Market, error)
}

// ResolveHandler serves the market resolution endpoint.
type ResolveHandler struct {
	resolver ResolutionService
	logger   *slog.Logger
}

// NewResolveHandler creates a ResolveHandler with the given service and logger.
func NewResolveHandler(resolver ResolutionService, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		resolver: resolver,
		logger:   logger,
	}
}

type resolveRequest struct {
	Initiator string `json:"initiator"`
}

// Resolve settles an expired market: reveals the tally, decides the outcome
// and commits it. Only the creator may resolve until the grace period
// elapses; after that anyone may.
// POST /api/markets/{id}/resolve
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	market, err := h.resolver.Resolve(r.Context(), id, req.Initiator)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}
