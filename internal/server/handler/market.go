package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator string, minStake int64, duration time.Duration) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	ListVotes(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Vote, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the body for opening a new market.
type createMarketRequest struct {
	Creator         string `json:"creator"`
	MinStake        int64  `json:"min_stake"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// CreateMarket opens a new conviction market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), req.Creator, req.MinStake,
		time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination, effective status included.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "count markets", err)
		return
	}

	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// listVotesResponse wraps the vote listing. Ciphertexts never serialize.
type listVotesResponse struct {
	Votes []domain.Vote `json:"votes"`
}

// ListVotes returns the public record of votes for a market: voter, option
// and timestamp only. Stake amounts stay encrypted server-side.
// GET /api/markets/{id}/votes
func (h *MarketHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing market id")
		return
	}

	votes, err := h.markets.ListVotes(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list votes", err)
		return
	}

	if votes == nil {
		votes = []domain.Vote{}
	}

	writeJSON(w, http.StatusOK, listVotesResponse{Votes: votes})
}
