package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/convictiond/internal/domain"
	"github.com/alanyoungcy/convictiond/internal/service"
)

// VoteService defines the methods that the vote handler requires from the
// service layer.
type VoteService interface {
	Cast(ctx context.Context, in service.CastVoteInput) (domain.Vote, error)
	EncodeStake(ctx context.Context, marketID, voter string, amount int64) (domain.Ciphertext, domain.Proof, error)
}

// VoteHandler serves vote ingestion endpoints.
type VoteHandler struct {
	votes  VoteService
	logger *slog.Logger
}

// NewVoteHandler creates a VoteHandler with the given service and logger.
func NewVoteHandler(votes VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		votes:  votes,
		logger: logger,
	}
}

// castVoteRequest is the body for casting a confidential vote. Ciphertext
// and proof are base64 as produced by the encode endpoint or a client-side
// enclave SDK.
type castVoteRequest struct {
	Voter         string `json:"voter"`
	Option        string `json:"option"`
	Ciphertext    string `json:"ciphertext"`
	Proof         string `json:"proof"`
	AttachedValue int64  `json:"attached_value"`
}

// CastVote records one vote for the market in the path.
// POST /api/markets/{id}/votes
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id")
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	ct, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "ciphertext is not valid base64")
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "proof is not valid base64")
		return
	}

	vote, err := h.votes.Cast(r.Context(), service.CastVoteInput{
		MarketID:      id,
		Voter:         req.Voter,
		Option:        domain.VoteOption(req.Option),
		Ciphertext:    ct,
		Proof:         proof,
		AttachedValue: req.AttachedValue,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "cast vote", err)
		return
	}

	writeJSON(w, http.StatusCreated, vote)
}

// encodeStakeRequest asks the enclave to encrypt a stake for this market.
type encodeStakeRequest struct {
	Voter  string `json:"voter"`
	Amount int64  `json:"amount"`
}

type encodeStakeResponse struct {
	Ciphertext string `json:"ciphertext"`
	Proof      string `json:"proof"`
}

// EncodeStake returns an enclave-encrypted stake plus range proof, ready to
// submit to CastVote. Clients without their own enclave SDK use this.
// POST /api/markets/{id}/votes/encode
func (h *VoteHandler) EncodeStake(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id")
		return
	}

	var req encodeStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	ct, proof, err := h.votes.EncodeStake(r.Context(), id, req.Voter, req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "encode stake", err)
		return
	}

	writeJSON(w, http.StatusOK, encodeStakeResponse{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Proof:      base64.StdEncoding.EncodeToString(proof),
	})
}
