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

// CastVoteInput carries everything needed to cast one confidential vote.
// AttachedValue is the plaintext value sent alongside the ciphertext and
// must equal the market's MinStake exactly.
type CastVoteInput struct {
	MarketID      string
	Voter         string
	Option        domain.VoteOption
	Ciphertext    domain.Ciphertext
	Proof         domain.Proof
	AttachedValue int64
}

// VoteService ingests confidential votes and maintains the per-market
// encrypted tallies. This is the concurrency hot path: uniqueness of
// (market, voter) and market liveness both rest on the vote store's atomic
// conditional insert, not on the precondition reads.
type VoteService struct {
	markets   domain.MarketStore
	votes     domain.VoteStore
	enclave   domain.Enclave
	projector domain.Projector
	notifier  Alerter
	logger    *slog.Logger
	now       func() time.Time
}

// Alerter is the escalation channel for invariant violations.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// NewVoteService creates a VoteService with all required dependencies.
func NewVoteService(
	markets domain.MarketStore,
	votes domain.VoteStore,
	enclave domain.Enclave,
	projector domain.Projector,
	notifier Alerter,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		markets:   markets,
		votes:     votes,
		enclave:   enclave,
		projector: projector,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// EncodeStake wraps a plaintext stake into a ciphertext and proof via the
// confidential-computation service. Pure pass-through, no ledger effect; a
// voter who encodes and never submits leaves no trace.
func (s *VoteService) EncodeStake(ctx context.Context, marketID, voter string, amount int64) (domain.Ciphertext, domain.Proof, error) {
	ct, proof, err := s.enclave.Encrypt(ctx, amount, domain.EncryptionContext{
		MarketID: marketID,
		Voter:    voter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("vote_service: encode stake: %w", err)
	}
	return ct, proof, nil
}

// Cast validates and stores one confidential vote. Preconditions are checked
// in a fixed order, each with its own rejection reason: market exists,
// market active, not expired, voter has not voted, attached value matches
// the market stake, proof validates. On acceptance the vote joins the
// encrypted tally for its option and the prize pool grows by MinStake.
func (s *VoteService) Cast(ctx context.Context, in CastVoteInput) (domain.Vote, error) {
	if !common.IsHexAddress(in.Voter) {
		return domain.Vote{}, fmt.Errorf("vote_service: voter %q: %w", in.Voter, domain.ErrUnauthorized)
	}
	if !in.Option.Valid() {
		return domain.Vote{}, fmt.Errorf("vote_service: invalid option %q", in.Option)
	}
	voter := common.HexToAddress(in.Voter).Hex()

	m, err := s.markets.GetByID(ctx, in.MarketID)
	if err != nil {
		return domain.Vote{}, fmt.Errorf("vote_service: market %q: %w", in.MarketID, err)
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.Vote{}, fmt.Errorf("vote_service: market %q: %w", in.MarketID, domain.ErrAlreadyResolved)
	}

	now := s.now().UTC()
	if m.Expired(now) {
		return domain.Vote{}, fmt.Errorf("vote_service: market %q: %w", in.MarketID, domain.ErrMarketExpired)
	}

	// Early read-side duplicate check; the authoritative guard is the atomic
	// insert below.
	if _, err := s.votes.Get(ctx, in.MarketID, voter); err == nil {
		return domain.Vote{}, fmt.Errorf("vote_service: market %q voter %s: %w", in.MarketID, voter, domain.ErrAlreadyVoted)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Vote{}, fmt.Errorf("vote_service: prior vote check: %w", err)
	}

	if in.AttachedValue != m.MinStake {
		return domain.Vote{}, fmt.Errorf("vote_service: attached %d, required %d: %w",
			in.AttachedValue, m.MinStake, domain.ErrStakeMismatch)
	}

	if err := s.enclave.VerifyProof(ctx, in.Ciphertext, in.Proof, domain.EncryptionContext{
		MarketID: in.MarketID,
		Voter:    voter,
	}, m.MinStake); err != nil {
		return domain.Vote{}, fmt.Errorf("vote_service: verify proof: %w", err)
	}

	v := domain.Vote{
		MarketID:   in.MarketID,
		Voter:      voter,
		Option:     in.Option,
		Ciphertext: in.Ciphertext,
		CastAt:     now,
	}
	// The insert re-checks market state atomically at the write: a cast
	// whose precondition reads passed cannot land a row on a market that a
	// concurrent resolve has meanwhile committed, or past expiry.
	if err := s.votes.Insert(ctx, v); err != nil {
		return domain.Vote{}, fmt.Errorf("vote_service: insert vote: %w", err)
	}

	// A failure here means the vote was stored but the pool was not grown.
	// Back the vote out so no uncounted row survives; only a failed
	// compensation is an invariant violation.
	if err := s.markets.AddStake(ctx, in.MarketID, m.MinStake); err != nil {
		if delErr := s.votes.Delete(ctx, in.MarketID, voter); delErr != nil {
			s.escalate(ctx, "invariant_violation",
				"prize pool increment failed",
				fmt.Sprintf("market %s voter %s: vote stored, pool not grown, compensating delete failed: %v (delete: %v)",
					in.MarketID, voter, err, delErr))
			return domain.Vote{}, fmt.Errorf("vote_service: add stake: %w", errors.Join(domain.ErrInvariantViolation, err))
		}
		return domain.Vote{}, fmt.Errorf("vote_service: add stake: %w", err)
	}

	yes, no, err := s.votes.CountByOption(ctx, in.MarketID)
	if err != nil {
		s.logger.WarnContext(ctx, "vote_service: vote count for projection failed",
			slog.String("market_id", in.MarketID),
			slog.String("error", err.Error()),
		)
	}
	s.project(ctx, domain.ProjectionEvent{
		Kind:     domain.ProjectionVoteAccepted,
		MarketID: in.MarketID,
		Status:   m.EffectiveStatus(now),
		YesVotes: yes,
		NoVotes:  no,
		At:       now,
	})

	s.logger.InfoContext(ctx, "vote_service: vote accepted",
		slog.String("market_id", in.MarketID),
		slog.String("voter", voter),
		slog.String("option", string(in.Option)),
	)
	return v, nil
}

func (s *VoteService) project(ctx context.Context, ev domain.ProjectionEvent) {
	if s.projector == nil {
		return
	}
	if err := s.projector.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "vote_service: projection publish failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *VoteService) escalate(ctx context.Context, event, title, message string) {
	s.logger.ErrorContext(ctx, "vote_service: "+title,
		slog.String("event", event),
		slog.String("detail", message),
	)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.ErrorContext(ctx, "vote_service: escalation delivery failed",
			slog.String("error", err.Error()),
		)
	}
}
