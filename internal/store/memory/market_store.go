// Package memory implements the domain store interfaces with mutex-guarded
// maps. It backs the dev mode and the service-layer tests, with the same
// conditional-write semantics as the PostgreSQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// MarketStore implements domain.MarketStore in process memory.
type MarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty in-memory MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

// Create stores a new market. Returns domain.ErrAlreadyExists on a duplicate ID.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

// GetByID retrieves a market by its ID.
func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// List returns markets ordered by creation time, newest first.
func (s *MarketStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	return paginate(all, opts), nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

// AddStake grows the prize pool, conditional on the market being active.
func (s *MarketStore) AddStake(_ context.Context, id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.ErrAlreadyResolved
	}
	m.PrizePool += amount
	m.UpdatedAt = time.Now().UTC()
	s.markets[id] = m
	return nil
}

// CommitResolution performs the terminal status compare-and-swap. Only the
// first caller succeeds.
func (s *MarketStore) CommitResolution(_ context.Context, id string, outcome domain.Outcome, tally domain.Tally, resolvedBy string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.ErrAlreadyResolved
	}
	m.Status = domain.MarketStatusResolved
	m.Outcome = &outcome
	m.Tally = &tally
	m.ResolvedBy = resolvedBy
	m.ResolvedAt = &resolvedAt
	m.UpdatedAt = resolvedAt
	s.markets[id] = m
	return nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
