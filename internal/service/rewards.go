// Package service implements the conviction-market settlement engine: market
// lifecycle, confidential vote accumulation, resolution, reward computation,
// and the claim ledger. Services own no storage; they orchestrate the store
// interfaces in internal/domain, whose conditional writes carry the
// atomicity guarantees.
package service

import (
	"math/big"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// Entitlement computes what a vote is owed on a resolved market.
//
// Tie: full refund of the original stake, regardless of option. Winning
// side: a proportional share of the prize pool, prizePool * stake /
// winningWeight, truncated toward zero. Losing side: zero.
//
// Truncation means the sum of all entitlements never exceeds the pool; any
// rounding remainder is retained by the pool, never borrowed against it.
// A winning side with zero weight cannot occur: equal weights, including
// zero-zero, classify as a tie (see domain.Tally.Outcome), so the division
// is always by a positive weight.
//
// Every stake equals the market's MinStake, so the vote's plaintext stake is
// taken from the market record; the ciphertext is never decrypted here.
func Entitlement(m domain.Market, v domain.Vote) int64 {
	if m.Outcome == nil || m.Tally == nil {
		return 0
	}

	outcome := *m.Outcome
	if outcome == domain.OutcomeTie {
		return m.MinStake
	}

	winning := domain.VoteOptionYes
	winningWeight := m.Tally.YesWeight
	if outcome == domain.OutcomeNoWon {
		winning = domain.VoteOptionNo
		winningWeight = m.Tally.NoWeight
	}

	if v.Option != winning {
		return 0
	}

	// prizePool * minStake can overflow int64 for large pools; go through
	// math/big and truncate toward zero.
	num := new(big.Int).Mul(big.NewInt(m.PrizePool), big.NewInt(m.MinStake))
	share := num.Quo(num, big.NewInt(winningWeight))
	return share.Int64()
}
