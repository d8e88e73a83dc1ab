package domain

import "time"

// VoteOption is one of the two sides of a binary market.
type VoteOption string

const (
	VoteOptionYes VoteOption = "yes"
	VoteOptionNo  VoteOption = "no"
)

// Valid reports whether the option is one of the two supported sides.
func (o VoteOption) Valid() bool {
	return o == VoteOptionYes || o == VoteOptionNo
}

// Vote is a single confidential vote on a market. The (MarketID, Voter) pair
// is the unique key; a voter casts at most one vote per market. The stake
// amount is never stored in plaintext -- it is always exactly the market's
// MinStake, carried here only as the opaque ciphertext the voter submitted.
type Vote struct {
	MarketID   string     `json:"market_id"`
	Voter      string     `json:"voter"`
	Option     VoteOption `json:"option"`
	Ciphertext Ciphertext `json:"-"`
	CastAt     time.Time  `json:"cast_at"`
}
