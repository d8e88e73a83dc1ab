package domain

import (
	"context"
	"time"
)

// ProjectionKind identifies the settlement fact being mirrored to the
// presentation layer.
type ProjectionKind string

const (
	ProjectionMarketCreated  ProjectionKind = "market_created"
	ProjectionVoteAccepted   ProjectionKind = "vote_accepted"
	ProjectionMarketResolved ProjectionKind = "market_resolved"
)

// ProjectionEvent is the display-facing fact emitted after each accepted
// vote and each resolution. Delivery is fire-and-forget: losing one of these
// affects display freshness only, never settlement correctness. Stake
// amounts never appear here; only vote counts and, post-resolution, the
// revealed aggregate tally.
type ProjectionEvent struct {
	Kind     ProjectionKind `json:"kind"`
	MarketID string         `json:"market_id"`
	Status   MarketStatus   `json:"status"`
	Outcome  *Outcome       `json:"outcome,omitempty"`
	Tally    *Tally         `json:"tally,omitempty"`
	YesVotes int64          `json:"yes_votes"`
	NoVotes  int64          `json:"no_votes"`
	At       time.Time      `json:"at"`
}

// Projector mirrors settlement facts into the presentation layer's
// read-optimized store.
type Projector interface {
	Publish(ctx context.Context, ev ProjectionEvent) error
}

// Treasury releases value to a participant. It is the outbound payment
// boundary; the claim ledger is always consulted and marked before Transfer
// is invoked.
type Treasury interface {
	// Transfer pays amount to recipient and returns an opaque transaction
	// reference for the audit trail.
	Transfer(ctx context.Context, recipient string, amount int64, memo string) (string, error)
}
