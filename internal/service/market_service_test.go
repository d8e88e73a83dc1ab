package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

func TestCreateMarketSeedsPrizePool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	m, err := f.marketSvc.CreateMarket(context.Background(), creatorAddr, 10, time.Hour)
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, creatorAddr, m.Creator)
	assert.Equal(t, int64(10), m.MinStake)
	assert.Equal(t, testCreatorSeed, m.PrizePool)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.Equal(t, f.clock.Add(time.Hour), m.ExpiresAt)
}

func TestCreateMarketRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.marketSvc.CreateMarket(ctx, "not-an-address", 10, time.Hour)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.marketSvc.CreateMarket(ctx, creatorAddr, 0, time.Hour)
	assert.Error(t, err)

	_, err = f.marketSvc.CreateMarket(ctx, creatorAddr, 10, time.Second)
	assert.Error(t, err)
}

func TestGetMarketDerivesAwaitingResolution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)

	got, err := f.marketSvc.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, got.Status)

	f.advance(time.Hour)

	got, err = f.marketSvc.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusAwaitingResolution, got.Status)
}

func TestGetMarketUnknownID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.marketSvc.GetMarket(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListMarketsDerivesStatuses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	expired := f.createMarket(t, 10)
	f.advance(2 * time.Hour)
	active := f.createMarket(t, 10)

	markets, err := f.marketSvc.ListMarkets(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, markets, 2)

	byID := map[string]domain.MarketStatus{}
	for _, m := range markets {
		byID[m.ID] = m.Status
	}
	assert.Equal(t, domain.MarketStatusAwaitingResolution, byID[expired.ID])
	assert.Equal(t, domain.MarketStatusActive, byID[active.ID])
}

func TestListVotesHidesCiphertexts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.createMarket(t, 10)
	f.castVote(t, m.ID, voterA, domain.VoteOptionYes, 10)
	f.castVote(t, m.ID, voterB, domain.VoteOptionNo, 10)

	votes, err := f.marketSvc.ListVotes(context.Background(), m.ID, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, votes, 2)
	for _, v := range votes {
		assert.Nil(t, v.Ciphertext)
		assert.NotEmpty(t, v.Voter)
		assert.True(t, v.Option.Valid())
	}
}
