package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

func resolvedMarket(pool, minStake, yesWeight, noWeight int64) domain.Market {
	tally := domain.Tally{YesWeight: yesWeight, NoWeight: noWeight}
	outcome := tally.Outcome()
	return domain.Market{
		ID:        "m-1",
		MinStake:  minStake,
		PrizePool: pool,
		Status:    domain.MarketStatusResolved,
		Outcome:   &outcome,
		Tally:     &tally,
	}
}

func TestEntitlementUnresolvedMarketIsZero(t *testing.T) {
	t.Parallel()

	m := domain.Market{MinStake: 10, PrizePool: 50, Status: domain.MarketStatusActive}
	v := domain.Vote{Option: domain.VoteOptionYes}

	assert.Zero(t, Entitlement(m, v))
}

func TestEntitlementWinnerShareTruncates(t *testing.T) {
	t.Parallel()

	// Pool 50, three yes votes of 10 against two no votes of 10. Each winner
	// is owed 50*10/30 = 16.66, truncated to 16; the remainder stays in the
	// pool.
	m := resolvedMarket(50, 10, 30, 20)

	got := Entitlement(m, domain.Vote{Option: domain.VoteOptionYes})
	assert.Equal(t, int64(16), got)
}

func TestEntitlementLoserGetsZero(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(50, 10, 30, 20)

	assert.Zero(t, Entitlement(m, domain.Vote{Option: domain.VoteOptionNo}))
}

func TestEntitlementTieRefundsBothSides(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(30, 10, 10, 10)

	assert.Equal(t, int64(10), Entitlement(m, domain.Vote{Option: domain.VoteOptionYes}))
	assert.Equal(t, int64(10), Entitlement(m, domain.Vote{Option: domain.VoteOptionNo}))
}

func TestEntitlementZeroVotesTieRefunds(t *testing.T) {
	t.Parallel()

	// Nobody voted: the market still ties and a hypothetical voter would be
	// refunded. In practice there is no claimant, but the classification must
	// not divide by zero.
	m := resolvedMarket(10, 10, 0, 0)

	assert.Equal(t, int64(10), Entitlement(m, domain.Vote{Option: domain.VoteOptionYes}))
}

func TestEntitlementNeverOverDistributes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pool, minStake    int64
		yesVotes, noVotes int64
	}{
		{50, 10, 3, 2},
		{61, 10, 3, 2},
		{1_000_003, 7, 11, 4},
		{9_999_999_999, 1_000_000, 7, 3},
	}

	for _, tc := range cases {
		m := resolvedMarket(tc.pool, tc.minStake, tc.yesVotes*tc.minStake, tc.noVotes*tc.minStake)

		var paid int64
		for i := int64(0); i < tc.yesVotes; i++ {
			paid += Entitlement(m, domain.Vote{Option: domain.VoteOptionYes})
		}
		for i := int64(0); i < tc.noVotes; i++ {
			paid += Entitlement(m, domain.Vote{Option: domain.VoteOptionNo})
		}

		assert.LessOrEqual(t, paid, tc.pool,
			"pool=%d stake=%d yes=%d no=%d", tc.pool, tc.minStake, tc.yesVotes, tc.noVotes)
	}
}
