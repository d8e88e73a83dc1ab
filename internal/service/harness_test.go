package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convictiond/internal/domain"
	"github.com/alanyoungcy/convictiond/internal/enclave"
	"github.com/alanyoungcy/convictiond/internal/store/memory"
)

const (
	testGracePeriod = 24 * time.Hour
	testCreatorSeed = int64(10)
	testMinDuration = time.Minute
)

var (
	creatorAddr  = common.HexToAddress("0x0000000000000000000000000000000000000c0f").Hex()
	voterA       = common.HexToAddress("0x00000000000000000000000000000000000000a1").Hex()
	voterB       = common.HexToAddress("0x00000000000000000000000000000000000000b2").Hex()
	voterC       = common.HexToAddress("0x00000000000000000000000000000000000000c3").Hex()
	voterD       = common.HexToAddress("0x00000000000000000000000000000000000000d4").Hex()
	voterE       = common.HexToAddress("0x00000000000000000000000000000000000000e5").Hex()
	strangerAddr = common.HexToAddress("0x000000000000000000000000000000000000dead").Hex()
)

// fixture wires the full service stack onto in-memory stores with the
// enclave stub and a controllable clock.
type fixture struct {
	markets *memory.MarketStore
	votes   *memory.VoteStore
	claims  *memory.ClaimStore
	encl    *enclave.Stub

	clock time.Time

	marketSvc  *MarketService
	voteSvc    *VoteService
	resolveSvc *ResolutionService
	claimSvc   *ClaimService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := testLogger()
	markets := memory.NewMarketStore()
	f := &fixture{
		markets: markets,
		votes:   memory.NewVoteStore(markets),
		claims:  memory.NewClaimStore(),
		encl:    enclave.NewStub(nil),
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	now := func() time.Time { return f.clock }

	f.marketSvc = NewMarketService(f.markets, f.votes, nil, nil, testCreatorSeed, testMinDuration, logger)
	f.marketSvc.now = now

	f.voteSvc = NewVoteService(f.markets, f.votes, f.encl, nil, nil, logger)
	f.voteSvc.now = now

	f.resolveSvc = NewResolutionService(f.markets, f.votes, f.encl, nil, nil, nil, nil, nil, testGracePeriod, logger)
	f.resolveSvc.now = now

	f.claimSvc = NewClaimService(f.markets, f.votes, f.claims, nopTreasury{}, nil, logger)
	f.claimSvc.now = now

	return f
}

// advance moves the fixture clock forward.
func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// createMarket opens a market with the given stake and a one-hour window.
func (f *fixture) createMarket(t *testing.T, minStake int64) domain.Market {
	t.Helper()
	m, err := f.marketSvc.CreateMarket(context.Background(), creatorAddr, minStake, time.Hour)
	require.NoError(t, err)
	return m
}

// castVote encodes a stake through the stub enclave and submits it.
func (f *fixture) castVote(t *testing.T, marketID, voter string, option domain.VoteOption, stake int64) domain.Vote {
	t.Helper()
	v, err := f.tryVote(marketID, voter, option, stake)
	require.NoError(t, err)
	return v
}

// tryVote is castVote without the success assertion.
func (f *fixture) tryVote(marketID, voter string, option domain.VoteOption, stake int64) (domain.Vote, error) {
	ctx := context.Background()
	ct, proof, err := f.encl.Encrypt(ctx, stake, domain.EncryptionContext{MarketID: marketID, Voter: voter})
	if err != nil {
		return domain.Vote{}, err
	}
	return f.voteSvc.Cast(ctx, CastVoteInput{
		MarketID:      marketID,
		Voter:         voter,
		Option:        option,
		Ciphertext:    ct,
		Proof:         proof,
		AttachedValue: stake,
	})
}

// nopTreasury settles transfers without moving value.
type nopTreasury struct{}

func (nopTreasury) Transfer(_ context.Context, recipient string, amount int64, _ string) (string, error) {
	return "test-tx", nil
}

// failingTreasury rejects every transfer.
type failingTreasury struct{ err error }

func (ft failingTreasury) Transfer(context.Context, string, int64, string) (string, error) {
	return "", ft.err
}

// recordingTreasury counts transfers, for exactly-once assertions.
type recordingTreasury struct {
	calls []int64
}

func (rt *recordingTreasury) Transfer(_ context.Context, _ string, amount int64, _ string) (string, error) {
	rt.calls = append(rt.calls, amount)
	return "test-tx", nil
}
