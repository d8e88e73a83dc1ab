package domain

import "time"

// ClaimRecord tracks whether a participant's entitlement on a resolved market
// has been paid. Claimed is monotonic false-to-true; once true the amount is
// immutable and no further payment may occur for this (MarketID, Claimant).
type ClaimRecord struct {
	MarketID   string     `json:"market_id"`
	Claimant   string     `json:"claimant"`
	Claimed    bool       `json:"claimed"`
	AmountPaid int64      `json:"amount_paid"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`

	// TransferLocked is set when the claim was marked but the value transfer
	// failed. The record is frozen pending operator reconciliation; further
	// claim attempts are refused rather than retried.
	TransferLocked bool `json:"transfer_locked"`
}
