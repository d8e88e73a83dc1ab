package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

func TestCastVoteAcceptsAndGrowsPool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	v := f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	assert.Equal(t, voterA, v.Voter)
	assert.Equal(t, domain.VoteOptionYes, v.Option)

	stored, err := f.votes.Get(context.Background(), m.ID, voterA)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Ciphertext)

	reloaded, err := f.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, testCreatorSeed+10, reloaded.PrizePool)
}

func TestCastVoteDuplicateRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)

	_, err := f.tryVote(m.ID, voterA, domain.VoteOptionNo, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
	assert.Equal(t, "already_voted", domain.Reason(err))
}

func TestCastVoteStakeMismatchLeavesNoTrace(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	_, err := f.tryVote(m.ID, voterA, domain.VoteOptionYes, 7)
	assert.ErrorIs(t, err, domain.ErrStakeMismatch)

	// The rejection must not have mutated anything: no vote row, pool at the
	// creator seed, and the voter is free to vote correctly afterwards.
	_, err = f.votes.Get(context.Background(), m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reloaded, err := f.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, testCreatorSeed, reloaded.PrizePool)

	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
}

func TestCastVoteInvalidProofRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	ctx := context.Background()
	ct, proof, err := f.encl.Encrypt(ctx, 10, domain.EncryptionContext{MarketID: m.ID, Voter: voterA})
	require.NoError(t, err)
	proof[0] ^= 0xff

	_, err = f.voteSvc.Cast(ctx, CastVoteInput{
		MarketID:      m.ID,
		Voter:         voterA,
		Option:        domain.VoteOptionYes,
		Ciphertext:    ct,
		Proof:         proof,
		AttachedValue: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidProof)
}

func TestCastVoteProofBoundToVoter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	// A ciphertext encoded for voter A cannot be replayed by voter B.
	ctx := context.Background()
	ct, proof, err := f.encl.Encrypt(ctx, 10, domain.EncryptionContext{MarketID: m.ID, Voter: voterA})
	require.NoError(t, err)

	_, err = f.voteSvc.Cast(ctx, CastVoteInput{
		MarketID:      m.ID,
		Voter:         voterB,
		Option:        domain.VoteOptionYes,
		Ciphertext:    ct,
		Proof:         proof,
		AttachedValue: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidProof)
}

func TestCastVoteInvalidOptionRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	_, err := f.tryVote(m.ID, voterA, domain.VoteOption("maybe"), 10)
	assert.Error(t, err)
}

func TestCastVoteAfterExpiryRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	f.advance(time.Hour)

	_, err := f.tryVote(m.ID, voterA, domain.VoteOptionYes, 10)
	assert.ErrorIs(t, err, domain.ErrMarketExpired)
}

func TestCastVoteOnResolvedMarketRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)

	f.advance(time.Hour)
	_, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)

	_, err = f.tryVote(m.ID, voterB, domain.VoteOptionNo, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestCastVoteUnknownMarket(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.tryVote("nope", voterA, domain.VoteOptionYes, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCastVoteConcurrentSameVoterAdmitsOne(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.tryVote(m.ID, voterA, domain.VoteOptionYes, 10)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
		}
	}
	assert.Equal(t, 1, accepted)

	// Exactly one stake joined the pool.
	reloaded, err := f.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, testCreatorSeed+10, reloaded.PrizePool)
}

// gatedVoteStore runs a hook before delegating the first Insert, so a test
// can interleave another operation between a cast's precondition reads and
// its write.
type gatedVoteStore struct {
	domain.VoteStore
	once        sync.Once
	beforeFirst func()
}

func (g *gatedVoteStore) Insert(ctx context.Context, v domain.Vote) error {
	g.once.Do(g.beforeFirst)
	return g.VoteStore.Insert(ctx, v)
}

func TestCastVoteLandingAfterResolutionRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterB, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterC, domain.VoteOptionYes, 10)

	// D's precondition reads pass while the market is still open, but its
	// write lands only after expiry and the creator's resolution commit. The
	// conditional insert must refuse the row; otherwise D would hold a
	// claimable vote that was never in the revealed tally or the pool.
	ctx := context.Background()
	gated := &gatedVoteStore{VoteStore: f.votes, beforeFirst: func() {
		f.advance(time.Hour)
		_, err := f.resolveSvc.Resolve(ctx, m.ID, creatorAddr)
		require.NoError(t, err)
	}}
	lateSvc := NewVoteService(f.markets, gated, f.encl, nil, nil, testLogger())
	lateSvc.now = func() time.Time { return f.clock }

	ct, proof, err := f.encl.Encrypt(ctx, 10, domain.EncryptionContext{MarketID: m.ID, Voter: voterD})
	require.NoError(t, err)
	_, err = lateSvc.Cast(ctx, CastVoteInput{
		MarketID:      m.ID,
		Voter:         voterD,
		Option:        domain.VoteOptionYes,
		Ciphertext:    ct,
		Proof:         proof,
		AttachedValue: 10,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// No trace of the refused vote, and the pool holds only the three
	// counted stakes.
	_, err = f.votes.Get(ctx, m.ID, voterD)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reloaded, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, testCreatorSeed+30, reloaded.PrizePool)

	// Settlement stays within the pool: the counted winners are paid, the
	// refused voter settles nothing.
	rt := &recordingTreasury{}
	claimSvc := NewClaimService(f.markets, f.votes, f.claims, rt, nil, testLogger())
	claimSvc.now = func() time.Time { return f.clock }

	var paid int64
	for _, voter := range []string{voterA, voterB, voterC} {
		amount, err := claimSvc.Claim(ctx, m.ID, voter)
		require.NoError(t, err)
		paid += amount
	}
	_, err = claimSvc.Claim(ctx, m.ID, voterD)
	assert.ErrorIs(t, err, domain.ErrNoVote)
	assert.LessOrEqual(t, paid, reloaded.PrizePool)
}

// addStakeFailStore fails the next AddStake call, then recovers.
type addStakeFailStore struct {
	domain.MarketStore
	err error
}

func (s *addStakeFailStore) AddStake(ctx context.Context, id string, amount int64) error {
	if s.err != nil {
		err := s.err
		s.err = nil
		return err
	}
	return s.MarketStore.AddStake(ctx, id, amount)
}

func TestCastVoteBacksOutWhenPoolGrowthFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	failing := &addStakeFailStore{MarketStore: f.markets, err: errors.New("connection reset")}
	svc := NewVoteService(failing, f.votes, f.encl, nil, nil, testLogger())
	svc.now = func() time.Time { return f.clock }

	ctx := context.Background()
	cast := func() error {
		ct, proof, err := f.encl.Encrypt(ctx, 10, domain.EncryptionContext{MarketID: m.ID, Voter: voterA})
		require.NoError(t, err)
		_, err = svc.Cast(ctx, CastVoteInput{
			MarketID:      m.ID,
			Voter:         voterA,
			Option:        domain.VoteOptionYes,
			Ciphertext:    ct,
			Proof:         proof,
			AttachedValue: 10,
		})
		return err
	}

	err := cast()
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvariantViolation)

	// The failed cast was fully backed out: no vote row, pool untouched, and
	// the voter is free to retry.
	_, err = f.votes.Get(ctx, m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reloaded, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, testCreatorSeed, reloaded.PrizePool)

	require.NoError(t, cast())
	reloaded, err = f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, testCreatorSeed+10, reloaded.PrizePool)
}

func TestEncodeStakeRoundTrips(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	ctx := context.Background()
	ct, proof, err := f.voteSvc.EncodeStake(ctx, m.ID, voterA, 10)
	require.NoError(t, err)

	_, err = f.voteSvc.Cast(ctx, CastVoteInput{
		MarketID:      m.ID,
		Voter:         voterA,
		Option:        domain.VoteOptionNo,
		Ciphertext:    ct,
		Proof:         proof,
		AttachedValue: 10,
	})
	assert.NoError(t, err)
}
