package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

func TestResolveBeforeExpiryRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	_, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	assert.ErrorIs(t, err, domain.ErrNotExpired)
}

func TestResolveCreatorCommitsOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterB, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterC, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterD, domain.VoteOptionNo, 10)
	f.castVote(t, m.ID, voterE, domain.VoteOptionNo, 10)

	f.advance(time.Hour)

	resolved, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)

	assert.Equal(t, domain.MarketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Outcome)
	assert.Equal(t, domain.OutcomeYesWon, *resolved.Outcome)
	require.NotNil(t, resolved.Tally)
	assert.Equal(t, int64(30), resolved.Tally.YesWeight)
	assert.Equal(t, int64(20), resolved.Tally.NoWeight)
	assert.Equal(t, creatorAddr, resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestResolveStrangerDuringGraceRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	f.advance(time.Hour) // expired, grace running

	_, err := f.resolveSvc.Resolve(context.Background(), m.ID, strangerAddr)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolveStrangerAfterGraceSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionNo, 10)

	f.advance(time.Hour + testGracePeriod)

	resolved, err := f.resolveSvc.Resolve(context.Background(), m.ID, strangerAddr)
	require.NoError(t, err)
	require.NotNil(t, resolved.Outcome)
	assert.Equal(t, domain.OutcomeNoWon, *resolved.Outcome)
	assert.Equal(t, strangerAddr, resolved.ResolvedBy)
}

func TestResolveSecondAttemptRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	f.advance(time.Hour)

	_, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)

	_, err = f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestResolveZeroVotesIsTie(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	f.advance(time.Hour)

	resolved, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)
	require.NotNil(t, resolved.Outcome)
	assert.Equal(t, domain.OutcomeTie, *resolved.Outcome)
	assert.Equal(t, domain.Tally{}, *resolved.Tally)
}

func TestResolveEqualWeightsIsTie(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterB, domain.VoteOptionNo, 10)

	f.advance(time.Hour)

	resolved, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTie, *resolved.Outcome)
}

func TestResolveTallyMismatchRefusesCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	// A ciphertext that decodes to the wrong amount got into the store
	// somehow. The revealed weight will not match count*minStake; resolution
	// must refuse to commit rather than settle on corrupt numbers.
	ctx := context.Background()
	ct, _, err := f.encl.Encrypt(ctx, 999, domain.EncryptionContext{MarketID: m.ID, Voter: voterA})
	require.NoError(t, err)
	require.NoError(t, f.votes.Insert(ctx, domain.Vote{
		MarketID:   m.ID,
		Voter:      voterA,
		Option:     domain.VoteOptionYes,
		Ciphertext: ct,
		CastAt:     f.clock,
	}))

	f.advance(time.Hour)

	_, err = f.resolveSvc.Resolve(ctx, m.ID, creatorAddr)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	reloaded, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.MarketStatusResolved, reloaded.Status)
}

func TestResolveConcurrentCommitsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)

	f.advance(time.Hour)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
		}
	}
	assert.Equal(t, 1, committed)
}

// outageEnclave encodes and verifies normally but cannot reveal aggregates.
type outageEnclave struct {
	domain.Enclave
}

func (outageEnclave) RevealAggregate(context.Context, []domain.Ciphertext) (int64, error) {
	return 0, domain.ErrDecryptionUnavailable
}

func TestResolveEnclaveOutageLeavesMarketRetryable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)

	f.advance(time.Hour)

	down := NewResolutionService(f.markets, f.votes, outageEnclave{Enclave: f.encl},
		nil, nil, nil, nil, nil, testGracePeriod, testLogger())
	down.now = func() time.Time { return f.clock }

	ctx := context.Background()
	_, err := down.Resolve(ctx, m.ID, creatorAddr)
	assert.ErrorIs(t, err, domain.ErrDecryptionUnavailable)

	// The transient boundary failure must not have committed anything.
	reloaded, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.MarketStatusResolved, reloaded.Status)
	assert.Nil(t, reloaded.Outcome)

	// Once the enclave recovers, the same resolution goes through.
	resolved, err := f.resolveSvc.Resolve(ctx, m.ID, creatorAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, resolved.Status)
}

func TestResolveUnknownInitiatorAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.advance(time.Hour)

	_, err := f.resolveSvc.Resolve(context.Background(), m.ID, "not-an-address")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
