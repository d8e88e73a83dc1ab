package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// ClaimService defines the methods that the claim handler requires from the
// service layer.
type ClaimService interface {
	Claim(ctx context.Context, marketID, claimant string) (int64, error)
	GetClaim(ctx context.Context, marketID, claimant string) (domain.ClaimRecord, error)
}

// ClaimHandler serves reward claim endpoints.
type ClaimHandler struct {
	claims ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler with the given service and logger.
func NewClaimHandler(claims ClaimService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logger,
	}
}

type claimRequest struct {
	Claimant string `json:"claimant"`
}

type claimResponse struct {
	MarketID   string `json:"market_id"`
	Claimant   string `json:"claimant"`
	AmountPaid int64  `json:"amount_paid"`
}

// Claim pays out the claimant's entitlement for a resolved market, exactly
// once. Losers settle at zero and are marked claimed all the same.
// POST /api/markets/{id}/claims
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	amount, err := h.claims.Claim(r.Context(), id, req.Claimant)
	if err != nil {
		writeServiceError(w, r, h.logger, "claim reward", err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		MarketID:   id,
		Claimant:   req.Claimant,
		AmountPaid: amount,
	})
}

// GetClaim returns the claim ledger entry for one claimant.
// GET /api/markets/{id}/claims/{claimant}
func (h *ClaimHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	claimant := pathParam(r, "claimant")
	if id == "" || claimant == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id or claimant")
		return
	}

	rec, err := h.claims.GetClaim(r.Context(), id, claimant)
	if err != nil {
		writeServiceError(w, r, h.logger, "get claim", err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
