package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// ClaimService pays out entitlements on resolved markets. The claim ledger's
// atomic check-and-mark is the double-payment guard: the mark happens before
// the value transfer, and a transfer failure after the mark freezes the
// record for operator reconciliation instead of retrying.
type ClaimService struct {
	markets  domain.MarketStore
	votes    domain.VoteStore
	claims   domain.ClaimStore
	treasury domain.Treasury
	notifier Alerter
	logger   *slog.Logger
	now      func() time.Time
}

// NewClaimService creates a ClaimService with all required dependencies.
func NewClaimService(
	markets domain.MarketStore,
	votes domain.VoteStore,
	claims domain.ClaimStore,
	treasury domain.Treasury,
	notifier Alerter,
	logger *slog.Logger,
) *ClaimService {
	return &ClaimService{
		markets:  markets,
		votes:    votes,
		claims:   claims,
		treasury: treasury,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Claim settles a participant's entitlement on a resolved market and returns
// the amount paid. Winners receive their proportional pool share, every
// voter on a tied market receives a full refund, and losers settle at zero.
// A second claim for the same (market, claimant) fails with
// ErrAlreadyClaimed; concurrent claims race on the ledger mark and exactly
// one pays.
func (s *ClaimService) Claim(ctx context.Context, marketID, claimant string) (int64, error) {
	if !common.IsHexAddress(claimant) {
		return 0, fmt.Errorf("claim_service: claimant %q: %w", claimant, domain.ErrUnauthorized)
	}
	claimant = common.HexToAddress(claimant).Hex()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("claim_service: market %q: %w", marketID, err)
	}
	if m.Status != domain.MarketStatusResolved {
		return 0, fmt.Errorf("claim_service: market %q: %w", marketID, domain.ErrNotResolved)
	}

	v, err := s.votes.Get(ctx, marketID, claimant)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("claim_service: market %q claimant %s: %w", marketID, claimant, domain.ErrNoVote)
		}
		return 0, fmt.Errorf("claim_service: load vote: %w", err)
	}

	// A vote cast after resolution committed was never in the revealed tally
	// and carries no entitlement. The vote store's conditional insert keeps
	// such rows from existing; refusing them here is the backstop.
	if m.ResolvedAt != nil && v.CastAt.After(*m.ResolvedAt) {
		s.logger.ErrorContext(ctx, "claim_service: vote postdates resolution",
			slog.String("market_id", marketID),
			slog.String("claimant", claimant),
		)
		return 0, fmt.Errorf("claim_service: market %q claimant %s: vote postdates resolution: %w",
			marketID, claimant, domain.ErrNoVote)
	}

	amount := Entitlement(m, v)
	now := s.now().UTC()

	// Atomic check-and-mark. After this returns nil we are committed to the
	// payment; any failure past this point is an invariant violation, never
	// a silent retry.
	if err := s.claims.MarkClaimed(ctx, marketID, claimant, amount, now); err != nil {
		return 0, fmt.Errorf("claim_service: mark claim: %w", err)
	}

	if amount > 0 {
		txRef, err := s.treasury.Transfer(ctx, claimant, amount, "settlement "+marketID)
		if err != nil {
			s.freeze(ctx, marketID, claimant, amount, err)
			return 0, fmt.Errorf("claim_service: transfer: %w", errors.Join(domain.ErrInvariantViolation, err))
		}
		s.logger.InfoContext(ctx, "claim_service: entitlement paid",
			slog.String("market_id", marketID),
			slog.String("claimant", claimant),
			slog.Int64("amount", amount),
			slog.String("tx_ref", txRef),
		)
		return amount, nil
	}

	s.logger.InfoContext(ctx, "claim_service: zero entitlement settled",
		slog.String("market_id", marketID),
		slog.String("claimant", claimant),
	)
	return 0, nil
}

// GetClaim returns the claim record for a (market, claimant) pair.
func (s *ClaimService) GetClaim(ctx context.Context, marketID, claimant string) (domain.ClaimRecord, error) {
	if !common.IsHexAddress(claimant) {
		return domain.ClaimRecord{}, fmt.Errorf("claim_service: claimant %q: %w", claimant, domain.ErrUnauthorized)
	}
	claimant = common.HexToAddress(claimant).Hex()
	rec, err := s.claims.Get(ctx, marketID, claimant)
	if err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("claim_service: get claim: %w", err)
	}
	return rec, nil
}

// freeze locks a claim whose value transfer failed after the ledger mark and
// escalates for manual reconciliation.
func (s *ClaimService) freeze(ctx context.Context, marketID, claimant string, amount int64, cause error) {
	if err := s.claims.MarkTransferFailed(ctx, marketID, claimant); err != nil {
		s.logger.ErrorContext(ctx, "claim_service: failed to freeze claim",
			slog.String("market_id", marketID),
			slog.String("claimant", claimant),
			slog.String("error", err.Error()),
		)
	}
	msg := fmt.Sprintf("market %s claimant %s: claim marked for %d but transfer failed: %v",
		marketID, claimant, amount, cause)
	s.logger.ErrorContext(ctx, "claim_service: transfer failed after claim mark",
		slog.String("event", "invariant_violation"),
		slog.String("detail", msg),
	)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, "invariant_violation", "claim transfer failed", msg); err != nil {
			s.logger.ErrorContext(ctx, "claim_service: escalation delivery failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
