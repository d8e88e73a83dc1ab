package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Vote casting rejections, in precondition order.
	ErrMarketExpired = errors.New("market expired")
	ErrAlreadyVoted  = errors.New("already voted")
	ErrStakeMismatch = errors.New("attached value does not match market stake")
	ErrInvalidProof  = errors.New("stake proof invalid")

	// Resolution rejections.
	ErrNotExpired      = errors.New("market not expired")
	ErrAlreadyResolved = errors.New("market already resolved")

	// Claim rejections.
	ErrNotResolved    = errors.New("market not resolved")
	ErrNoVote         = errors.New("no vote on market")
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrClaimLocked    = errors.New("claim locked pending reconciliation")

	// Boundary failures of the confidential-computation service. Transient;
	// callers retry with backoff, they are never a vote or resolution outcome.
	ErrEncodingUnavailable   = errors.New("stake encoding unavailable")
	ErrDecryptionUnavailable = errors.New("tally decryption unavailable")

	// ErrInvariantViolation marks states that must never be auto-corrected,
	// e.g. a claim marked paid whose value transfer failed. The affected
	// record is frozen and the condition escalated to operators.
	ErrInvariantViolation = errors.New("settlement invariant violated")
)

// Reason returns the stable machine-readable code for a rejection so the
// presentation layer can render an actionable message without knowing engine
// internals. Unrecognized errors map to "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMarketExpired):
		return "market_expired"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrStakeMismatch):
		return "stake_mismatch"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, ErrNotExpired):
		return "not_expired"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrNotResolved):
		return "not_resolved"
	case errors.Is(err, ErrNoVote):
		return "no_vote"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrClaimLocked):
		return "claim_locked"
	case errors.Is(err, ErrEncodingUnavailable):
		return "encoding_unavailable"
	case errors.Is(err, ErrDecryptionUnavailable):
		return "decryption_unavailable"
	case errors.Is(err, ErrLockHeld):
		return "busy"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "internal"
	}
}
