package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists Market records. It is the single source of truth for
// settlement decisions; all mutations are atomic conditional writes so that
// stale-read-then-write races cannot corrupt the lifecycle.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)

	// AddStake grows the prize pool by amount, conditional on the market
	// still being active. Returns ErrAlreadyResolved if the market has been
	// resolved in the meantime and ErrNotFound if it does not exist.
	AddStake(ctx context.Context, id string, amount int64) error

	// CommitResolution performs the terminal compare-and-swap on status.
	// Exactly one caller ever succeeds; later attempts, including retries of
	// the winner, get ErrAlreadyResolved. The outcome, tally, and status are
	// written as a single unit.
	CommitResolution(ctx context.Context, id string, outcome Outcome, tally Tally, resolvedBy string, resolvedAt time.Time) error
}

// VoteStore persists Vote records and is the only writer of per-market vote
// state. Votes are never mutated; Delete exists solely for the compensating
// removal of a vote whose acceptance could not complete.
type VoteStore interface {
	// Insert stores a vote if and only if no vote exists for the same
	// (MarketID, Voter) key AND the market can still accept it at the moment
	// of the write: ErrNotFound if the market does not exist,
	// ErrAlreadyResolved if it has been resolved, ErrMarketExpired if
	// v.CastAt is not before its expiry. The market-state check and the
	// insert are one atomic unit, so a vote can never land on a market after
	// its resolution commits. Concurrent inserts for the same key yield
	// exactly one success; the rest get ErrAlreadyVoted.
	Insert(ctx context.Context, v Vote) error

	// Delete removes the vote for the key, if present. Only the vote
	// acceptance path calls it, to back out an insert whose prize-pool
	// growth failed.
	Delete(ctx context.Context, marketID, voter string) error

	Get(ctx context.Context, marketID, voter string) (Vote, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Vote, error)

	// Ciphertexts returns the accumulated encrypted tally for one option:
	// every accepted ciphertext, in cast order.
	Ciphertexts(ctx context.Context, marketID string, option VoteOption) ([]Ciphertext, error)

	// CountByOption returns the number of accepted votes per option.
	CountByOption(ctx context.Context, marketID string) (yes int64, no int64, err error)
}

// ClaimStore persists ClaimRecord entries and is the single authority
// consulted immediately before any payout.
type ClaimStore interface {
	// MarkClaimed flips Claimed false-to-true for the key and records the
	// amount, as one atomic operation. Returns ErrAlreadyClaimed if already
	// marked and ErrClaimLocked if the record is frozen for reconciliation.
	MarkClaimed(ctx context.Context, marketID, claimant string, amount int64, at time.Time) error

	Get(ctx context.Context, marketID, claimant string) (ClaimRecord, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]ClaimRecord, error)

	// MarkTransferFailed freezes a claimed record whose value transfer did
	// not complete. Frozen records stay frozen until an operator reconciles
	// them out of band.
	MarkTransferFailed(ctx context.Context, marketID, claimant string) error
}

// MarketCache is a read-through cache for market records. Failures are
// non-fatal; callers fall back to the MarketStore.
type MarketCache interface {
	Get(ctx context.Context, id string) (Market, error)
	Set(ctx context.Context, m Market) error
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides distributed advisory locks. Acquire returns an unlock
// function on success and ErrLockHeld when another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
