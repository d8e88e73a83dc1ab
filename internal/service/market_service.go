package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// MarketService handles market creation and querying. It owns the Market
// Ledger's write path for creation; resolution writes go through
// ResolutionService.
type MarketService struct {
	markets   domain.MarketStore
	votes     domain.VoteStore
	cache     domain.MarketCache
	projector domain.Projector
	logger    *slog.Logger

	creatorSeed int64
	minDuration time.Duration
	now         func() time.Time
}

// NewMarketService creates a MarketService. creatorSeed is the listing stake
// the creator contributes to the prize pool at creation; minDuration is the
// shortest allowed voting window. cache and projector may be nil.
func NewMarketService(
	markets domain.MarketStore,
	votes domain.VoteStore,
	cache domain.MarketCache,
	projector domain.Projector,
	creatorSeed int64,
	minDuration time.Duration,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:     markets,
		votes:       votes,
		cache:       cache,
		projector:   projector,
		logger:      logger,
		creatorSeed: creatorSeed,
		minDuration: minDuration,
		now:         time.Now,
	}
}

// CreateMarket registers a new conviction market and returns it. The market
// starts active with the prize pool seeded by the creator's listing stake.
func (s *MarketService) CreateMarket(ctx context.Context, creator string, minStake int64, duration time.Duration) (domain.Market, error) {
	if !common.IsHexAddress(creator) {
		return domain.Market{}, fmt.Errorf("market_service: creator %q: %w", creator, domain.ErrUnauthorized)
	}
	if minStake <= 0 {
		return domain.Market{}, fmt.Errorf("market_service: min stake must be positive")
	}
	if duration < s.minDuration {
		return domain.Market{}, fmt.Errorf("market_service: duration %s below minimum %s", duration, s.minDuration)
	}

	now := s.now().UTC()
	m := domain.Market{
		ID:        uuid.New().String(),
		Creator:   common.HexToAddress(creator).Hex(),
		MinStake:  minStake,
		PrizePool: s.creatorSeed,
		ExpiresAt: now.Add(duration),
		Status:    domain.MarketStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.project(ctx, domain.ProjectionEvent{
		Kind:     domain.ProjectionMarketCreated,
		MarketID: m.ID,
		Status:   domain.MarketStatusActive,
		At:       now,
	})

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("creator", m.Creator),
		slog.Int64("min_stake", minStake),
		slog.Time("expires_at", m.ExpiresAt),
	)
	return m, nil
}

// GetMarket retrieves a market by ID, cache first, store on miss. The
// returned market's Status is the derived effective status.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	var err error
	if s.cache != nil {
		m, err = s.cache.Get(ctx, id)
	} else {
		err = domain.ErrNotFound
	}
	if err != nil {
		m, err = s.markets.GetByID(ctx, id)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
		}
		if s.cache != nil {
			if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
				s.logger.WarnContext(ctx, "market_service: cache set failed",
					slog.String("market_id", id),
					slog.String("error", cacheErr.Error()),
				)
			}
		}
	}

	m.Status = m.EffectiveStatus(s.now())
	return m, nil
}

// ListMarkets returns markets with derived statuses, newest first.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	now := s.now()
	for i := range markets {
		markets[i].Status = markets[i].EffectiveStatus(now)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// ListVotes returns the public view of a market's votes: option and cast
// time only, stakes stay confidential.
func (s *MarketService) ListVotes(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Vote, error) {
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return nil, fmt.Errorf("market_service: list votes %q: %w", marketID, err)
	}
	votes, err := s.votes.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list votes %q: %w", marketID, err)
	}
	for i := range votes {
		votes[i].Ciphertext = nil
	}
	return votes, nil
}

func (s *MarketService) project(ctx context.Context, ev domain.ProjectionEvent) {
	if s.projector == nil {
		return
	}
	if err := s.projector.Publish(ctx, ev); err != nil {
		// Display freshness only; settlement is unaffected.
		s.logger.WarnContext(ctx, "market_service: projection publish failed",
			slog.String("market_id", ev.MarketID),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
