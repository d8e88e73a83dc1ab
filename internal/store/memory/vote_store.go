package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

type voteKey struct {
	marketID string
	voter    string
}

// VoteStore implements domain.VoteStore in process memory. Insert is an
// atomic insert-if-absent that re-checks the market's state under the market
// store's mutex, mirroring the transactional insert of the PostgreSQL store:
// a vote can never land on a resolved or expired market, and concurrent casts
// for the same (market, voter) admit exactly one vote.
//
// Lock order: the market mutex is always taken before the vote mutex.
type VoteStore struct {
	markets *MarketStore

	mu    sync.Mutex
	votes map[voteKey]domain.Vote
	order []voteKey // insertion order, for stable listings
}

// NewVoteStore creates an empty in-memory VoteStore over the given market
// store, whose records gate vote acceptance.
func NewVoteStore(markets *MarketStore) *VoteStore {
	return &VoteStore{
		markets: markets,
		votes:   make(map[voteKey]domain.Vote),
	}
}

// Insert stores a vote if no vote exists for the same key and the market can
// still accept it at the moment of the write. Holding the market mutex across
// the state check and the insert excludes a concurrent CommitResolution.
func (s *VoteStore) Insert(_ context.Context, v domain.Vote) error {
	s.markets.mu.Lock()
	defer s.markets.mu.Unlock()

	m, ok := s.markets.markets[v.MarketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.ErrAlreadyResolved
	}
	if !v.CastAt.Before(m.ExpiresAt) {
		return domain.ErrMarketExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := voteKey{marketID: v.MarketID, voter: v.Voter}
	if _, ok := s.votes[k]; ok {
		return domain.ErrAlreadyVoted
	}
	s.votes[k] = v
	s.order = append(s.order, k)
	return nil
}

// Delete removes the vote for the key, if present.
func (s *VoteStore) Delete(_ context.Context, marketID, voter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := voteKey{marketID: marketID, voter: voter}
	if _, ok := s.votes[k]; !ok {
		return nil
	}
	delete(s.votes, k)
	for i, key := range s.order {
		if key == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a vote by its (marketID, voter) key.
func (s *VoteStore) Get(_ context.Context, marketID, voter string) (domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteKey{marketID: marketID, voter: voter}]
	if !ok {
		return domain.Vote{}, domain.ErrNotFound
	}
	return v, nil
}

// ListByMarket returns a market's votes in cast order.
func (s *VoteStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var votes []domain.Vote
	for _, k := range s.order {
		if k.marketID == marketID {
			votes = append(votes, s.votes[k])
		}
	}
	sort.SliceStable(votes, func(i, j int) bool {
		return votes[i].CastAt.Before(votes[j].CastAt)
	})
	return paginate(votes, opts), nil
}

// Ciphertexts returns the encrypted tally for one option in cast order.
func (s *VoteStore) Ciphertexts(_ context.Context, marketID string, option domain.VoteOption) ([]domain.Ciphertext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cts []domain.Ciphertext
	for _, k := range s.order {
		v := s.votes[k]
		if k.marketID == marketID && v.Option == option {
			cts = append(cts, v.Ciphertext)
		}
	}
	return cts, nil
}

// CountByOption returns the number of votes per option.
func (s *VoteStore) CountByOption(_ context.Context, marketID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var yes, no int64
	for k, v := range s.votes {
		if k.marketID != marketID {
			continue
		}
		if v.Option == domain.VoteOptionYes {
			yes++
		} else {
			no++
		}
	}
	return yes, no, nil
}

// Compile-time interface check.
var _ domain.VoteStore = (*VoteStore)(nil)
