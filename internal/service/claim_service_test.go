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

// settle runs a 3-yes / 2-no market through resolution. With seed 10 and
// five stakes of 10 the pool ends at 60, so each yes voter is owed
// 60*10/30 = 20.
func settle(t *testing.T, f *fixture) domain.Market {
	t.Helper()

	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterB, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterC, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterD, domain.VoteOptionNo, 10)
	f.castVote(t, m.ID, voterE, domain.VoteOptionNo, 10)

	f.advance(time.Hour)

	resolved, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)
	return resolved
}

func TestClaimWinnerPaidProportionalShare(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rt := &recordingTreasury{}
	f.claimSvc.treasury = rt
	m := settle(t, f)

	amount, err := f.claimSvc.Claim(context.Background(), m.ID, voterA)
	require.NoError(t, err)
	assert.Equal(t, int64(20), amount)
	assert.Equal(t, []int64{20}, rt.calls)

	rec, err := f.claimSvc.GetClaim(context.Background(), m.ID, voterA)
	require.NoError(t, err)
	assert.True(t, rec.Claimed)
	assert.Equal(t, int64(20), rec.AmountPaid)
	require.NotNil(t, rec.ClaimedAt)
}

func TestClaimWinnersNeverExceedPool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := settle(t, f)

	var paid int64
	for _, voter := range []string{voterA, voterB, voterC, voterD, voterE} {
		amount, err := f.claimSvc.Claim(context.Background(), m.ID, voter)
		require.NoError(t, err)
		paid += amount
	}

	assert.LessOrEqual(t, paid, m.PrizePool)
}

func TestClaimLoserSettlesZero(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rt := &recordingTreasury{}
	f.claimSvc.treasury = rt
	m := settle(t, f)

	amount, err := f.claimSvc.Claim(context.Background(), m.ID, voterD)
	require.NoError(t, err)
	assert.Zero(t, amount)
	assert.Empty(t, rt.calls)

	// Zero entitlements still mark the ledger; the loser cannot come back.
	rec, err := f.claimSvc.GetClaim(context.Background(), m.ID, voterD)
	require.NoError(t, err)
	assert.True(t, rec.Claimed)
	assert.Zero(t, rec.AmountPaid)

	_, err = f.claimSvc.Claim(context.Background(), m.ID, voterD)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimTieRefundsStake(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterB, domain.VoteOptionNo, 10)
	f.advance(time.Hour)
	_, err := f.resolveSvc.Resolve(context.Background(), m.ID, creatorAddr)
	require.NoError(t, err)

	for _, voter := range []string{voterA, voterB} {
		amount, err := f.claimSvc.Claim(context.Background(), m.ID, voter)
		require.NoError(t, err)
		assert.Equal(t, int64(10), amount)
	}
}

func TestClaimSecondAttemptRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := settle(t, f)

	_, err := f.claimSvc.Claim(context.Background(), m.ID, voterA)
	require.NoError(t, err)

	_, err = f.claimSvc.Claim(context.Background(), m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimUnresolvedMarketRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)

	_, err := f.claimSvc.Claim(context.Background(), m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrNotResolved)

	// Expiry alone is not resolution.
	f.advance(time.Hour)
	_, err = f.claimSvc.Claim(context.Background(), m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrNotResolved)
}

func TestClaimWithoutVoteRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := settle(t, f)

	_, err := f.claimSvc.Claim(context.Background(), m.ID, strangerAddr)
	assert.ErrorIs(t, err, domain.ErrNoVote)
}

func TestClaimUnknownMarketRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.claimSvc.Claim(context.Background(), "nope", voterA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// plantedVoteStore serves one fabricated vote for its key and delegates
// everything else, to model a ledger row the write-time guards would refuse.
type plantedVoteStore struct {
	domain.VoteStore
	v domain.Vote
}

func (s plantedVoteStore) Get(ctx context.Context, marketID, voter string) (domain.Vote, error) {
	if marketID == s.v.MarketID && voter == s.v.Voter {
		return s.v, nil
	}
	return s.VoteStore.Get(ctx, marketID, voter)
}

func TestClaimRejectsVoteCastAfterResolution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := settle(t, f)
	require.NotNil(t, m.ResolvedAt)

	// A vote row stamped after the resolution commit was never in the
	// revealed tally; it must settle nothing even when it names the winner.
	phantom := domain.Vote{
		MarketID: m.ID,
		Voter:    strangerAddr,
		Option:   domain.VoteOptionYes,
		CastAt:   m.ResolvedAt.Add(time.Minute),
	}
	rt := &recordingTreasury{}
	svc := NewClaimService(f.markets, plantedVoteStore{VoteStore: f.votes, v: phantom}, f.claims, rt, nil, testLogger())
	svc.now = func() time.Time { return f.clock }

	_, err := svc.Claim(context.Background(), m.ID, strangerAddr)
	assert.ErrorIs(t, err, domain.ErrNoVote)
	assert.Empty(t, rt.calls)

	// The refusal happens before the ledger mark.
	_, err = f.claims.Get(context.Background(), m.ID, strangerAddr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetClaimRejectsInvalidClaimant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := settle(t, f)

	_, err := f.claimSvc.GetClaim(context.Background(), m.ID, "not-an-address")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClaimTransferFailureFreezesRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cause := errors.New("relayer unreachable")
	f.claimSvc.treasury = failingTreasury{err: cause}
	m := settle(t, f)

	_, err := f.claimSvc.Claim(context.Background(), m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.ErrorIs(t, err, cause)

	rec, err := f.claimSvc.GetClaim(context.Background(), m.ID, voterA)
	require.NoError(t, err)
	assert.True(t, rec.TransferLocked)

	// Frozen means frozen: no silent retry even after the treasury recovers.
	f.claimSvc.treasury = nopTreasury{}
	_, err = f.claimSvc.Claim(context.Background(), m.ID, voterA)
	assert.ErrorIs(t, err, domain.ErrClaimLocked)
}

func TestClaimConcurrentPaysOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rt := &recordingTreasury{}
	f.claimSvc.treasury = rt
	m := settle(t, f)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.claimSvc.Claim(context.Background(), m.ID, voterA)
		}(i)
	}
	wg.Wait()

	paid := 0
	for _, err := range errs {
		if err == nil {
			paid++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, []int64{20}, rt.calls)
}
