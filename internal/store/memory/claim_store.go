package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

type claimKey struct {
	marketID string
	claimant string
}

// ClaimStore implements domain.ClaimStore in process memory. MarkClaimed is
// the atomic check-and-mark; concurrent claims for the same key admit
// exactly one.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[claimKey]domain.ClaimRecord
}

// NewClaimStore creates an empty in-memory ClaimStore.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{claims: make(map[claimKey]domain.ClaimRecord)}
}

// MarkClaimed flips Claimed false-to-true and records the amount atomically.
func (s *ClaimStore) MarkClaimed(_ context.Context, marketID, claimant string, amount int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{marketID: marketID, claimant: claimant}
	if rec, ok := s.claims[k]; ok {
		if rec.TransferLocked {
			return domain.ErrClaimLocked
		}
		if rec.Claimed {
			return domain.ErrAlreadyClaimed
		}
	}
	s.claims[k] = domain.ClaimRecord{
		MarketID:   marketID,
		Claimant:   claimant,
		Claimed:    true,
		AmountPaid: amount,
		ClaimedAt:  &at,
	}
	return nil
}

// Get retrieves a claim record by its (marketID, claimant) key.
func (s *ClaimStore) Get(_ context.Context, marketID, claimant string) (domain.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.claims[claimKey{marketID: marketID, claimant: claimant}]
	if !ok {
		return domain.ClaimRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// ListByMarket returns a market's claim records ordered by claim time.
func (s *ClaimStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []domain.ClaimRecord
	for k, rec := range s.claims {
		if k.marketID == marketID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := recs[i].ClaimedAt, recs[j].ClaimedAt
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.Before(*tj)
	})
	return paginate(recs, opts), nil
}

// MarkTransferFailed freezes a claim record pending operator reconciliation.
func (s *ClaimStore) MarkTransferFailed(_ context.Context, marketID, claimant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{marketID: marketID, claimant: claimant}
	rec, ok := s.claims[k]
	if !ok {
		return domain.ErrNotFound
	}
	rec.TransferLocked = true
	s.claims[k] = rec
	return nil
}

// Compile-time interface check.
var _ domain.ClaimStore = (*ClaimStore)(nil)
