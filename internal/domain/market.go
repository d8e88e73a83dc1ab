package domain

import "time"

// MarketStatus represents the lifecycle state of a conviction market.
//
// Only "active" and "resolved" are ever stored; "awaiting_resolution" is
// derived at read time from the expiry timestamp (see EffectiveStatus).
type MarketStatus string

const (
	MarketStatusActive             MarketStatus = "active"
	MarketStatusAwaitingResolution MarketStatus = "awaiting_resolution"
	MarketStatusResolved           MarketStatus = "resolved"
)

// Outcome is the terminal result of a resolved market.
type Outcome string

const (
	OutcomeYesWon Outcome = "yes_won"
	OutcomeNoWon  Outcome = "no_won"
	OutcomeTie    Outcome = "tie"
)

// Tally holds the revealed aggregate stake weight per option. It only exists
// in plaintext after resolution; before that the per-option totals live as
// accumulated ciphertexts inside the vote store.
type Tally struct {
	YesWeight int64 `json:"yes_weight"`
	NoWeight  int64 `json:"no_weight"`
}

// Outcome classifies a revealed tally. Equal weights, including the
// zero-votes-on-both-sides case, are a tie; winning with zero weight is
// therefore impossible and the reward division never sees a zero divisor.
func (t Tally) Outcome() Outcome {
	switch {
	case t.YesWeight > t.NoWeight:
		return OutcomeYesWon
	case t.NoWeight > t.YesWeight:
		return OutcomeNoWon
	default:
		return OutcomeTie
	}
}

// Market is the authoritative record of a single binary conviction market.
type Market struct {
	ID        string       `json:"id"`
	Creator   string       `json:"creator"`
	MinStake  int64        `json:"min_stake"`
	PrizePool int64        `json:"prize_pool"`
	ExpiresAt time.Time    `json:"expires_at"`
	Status    MarketStatus `json:"status"`

	// Set exactly once by resolution, nil before.
	Outcome    *Outcome   `json:"outcome,omitempty"`
	Tally      *Tally     `json:"tally,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveStatus derives the externally visible status at the given time.
// An active market past its expiry is awaiting resolution; no background job
// performs that transition, callers observe it here.
func (m Market) EffectiveStatus(now time.Time) MarketStatus {
	if m.Status == MarketStatusResolved {
		return MarketStatusResolved
	}
	if !now.Before(m.ExpiresAt) {
		return MarketStatusAwaitingResolution
	}
	return MarketStatusActive
}

// Expired reports whether voting has closed.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// GraceElapsed reports whether the post-expiry grace window has passed, after
// which any caller may force resolution.
func (m Market) GraceElapsed(now time.Time, grace time.Duration) bool {
	return !now.Before(m.ExpiresAt.Add(grace))
}
