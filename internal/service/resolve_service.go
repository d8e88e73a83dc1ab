package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// resolveLockTTL bounds how long the advisory resolve lock may outlive a
// crashed resolver.
const resolveLockTTL = 30 * time.Second

// Archiver persists a post-resolution settlement report. Best effort; a
// failed archive never affects the committed resolution.
type Archiver interface {
	ArchiveResolution(ctx context.Context, m domain.Market) error
}

// ResolutionService drives the terminal state transition of a market:
// reveal the aggregate tallies, classify the outcome, and commit it exactly
// once. Markets move Active -> AwaitingResolution by the passage of time and
// AwaitingResolution -> Resolved here.
type ResolutionService struct {
	markets   domain.MarketStore
	votes     domain.VoteStore
	enclave   domain.Enclave
	cache     domain.MarketCache
	locks     domain.LockManager
	projector domain.Projector
	archiver  Archiver
	notifier  Alerter
	logger    *slog.Logger

	gracePeriod time.Duration
	now         func() time.Time
}

// NewResolutionService creates a ResolutionService. gracePeriod is the
// window after expiry during which only the creator may resolve; after it,
// anyone may. locks, cache, projector, archiver, and notifier may be nil.
func NewResolutionService(
	markets domain.MarketStore,
	votes domain.VoteStore,
	enclave domain.Enclave,
	cache domain.MarketCache,
	locks domain.LockManager,
	projector domain.Projector,
	archiver Archiver,
	notifier Alerter,
	gracePeriod time.Duration,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		markets:     markets,
		votes:       votes,
		enclave:     enclave,
		cache:       cache,
		locks:       locks,
		projector:   projector,
		archiver:    archiver,
		notifier:    notifier,
		gracePeriod: gracePeriod,
		logger:      logger,
		now:         time.Now,
	}
}

// Resolve commits the outcome of an expired market. Before the grace period
// elapses only the market's creator may initiate; afterwards any caller may,
// so an absent creator cannot strand a market. The aggregate tally is
// revealed once, synchronously; individual stakes are never decrypted.
// Retries and concurrent attempts after the first commit fail with
// ErrAlreadyResolved.
func (s *ResolutionService) Resolve(ctx context.Context, marketID, initiator string) (domain.Market, error) {
	if !common.IsHexAddress(initiator) {
		return domain.Market{}, fmt.Errorf("resolution: initiator %q: %w", initiator, domain.ErrUnauthorized)
	}
	initiator = common.HexToAddress(initiator).Hex()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution: market %q: %w", marketID, err)
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.Market{}, fmt.Errorf("resolution: market %q: %w", marketID, domain.ErrAlreadyResolved)
	}

	now := s.now().UTC()
	if !m.Expired(now) {
		return domain.Market{}, fmt.Errorf("resolution: market %q: %w", marketID, domain.ErrNotExpired)
	}
	if !strings.EqualFold(initiator, m.Creator) && !m.GraceElapsed(now, s.gracePeriod) {
		return domain.Market{}, fmt.Errorf("resolution: market %q initiator %s: %w", marketID, initiator, domain.ErrUnauthorized)
	}

	// Advisory lock so concurrent resolvers do not each pay for a tally
	// reveal. Correctness rests on the CommitResolution compare-and-swap,
	// not on this lock.
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "resolve:"+marketID, resolveLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Market{}, fmt.Errorf("resolution: market %q: %w", marketID, domain.ErrLockHeld)
			}
			// Lock service trouble is not a reason to strand the market.
			s.logger.WarnContext(ctx, "resolution: advisory lock unavailable",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		} else {
			defer unlock()
		}
	}

	tally, err := s.revealTally(ctx, marketID, m.MinStake)
	if err != nil {
		return domain.Market{}, err
	}
	outcome := tally.Outcome()

	if err := s.markets.CommitResolution(ctx, marketID, outcome, tally, initiator, now); err != nil {
		return domain.Market{}, fmt.Errorf("resolution: commit %q: %w", marketID, err)
	}

	m, err = s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution: reload %q: %w", marketID, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "resolution: cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	yes, no, countErr := s.votes.CountByOption(ctx, marketID)
	if countErr != nil {
		s.logger.WarnContext(ctx, "resolution: vote count for projection failed",
			slog.String("market_id", marketID),
			slog.String("error", countErr.Error()),
		)
	}
	s.project(ctx, domain.ProjectionEvent{
		Kind:     domain.ProjectionMarketResolved,
		MarketID: marketID,
		Status:   domain.MarketStatusResolved,
		Outcome:  m.Outcome,
		Tally:    m.Tally,
		YesVotes: yes,
		NoVotes:  no,
		At:       now,
	})

	if s.archiver != nil {
		if err := s.archiver.ArchiveResolution(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "resolution: settlement report archive failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "resolution: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int64("yes_weight", tally.YesWeight),
		slog.Int64("no_weight", tally.NoWeight),
		slog.String("resolved_by", initiator),
	)
	return m, nil
}

// revealTally decrypts the per-option aggregates and cross-checks them
// against the vote counts. Every stake is exactly minStake, so a revealed
// weight that is not count*minStake means the accumulated ciphertexts and
// the vote rows disagree -- that is an invariant violation, escalated and
// never committed.
func (s *ResolutionService) revealTally(ctx context.Context, marketID string, minStake int64) (domain.Tally, error) {
	yesCount, noCount, err := s.votes.CountByOption(ctx, marketID)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("resolution: count votes %q: %w", marketID, err)
	}

	yesWeight, err := s.revealOption(ctx, marketID, domain.VoteOptionYes)
	if err != nil {
		return domain.Tally{}, err
	}
	noWeight, err := s.revealOption(ctx, marketID, domain.VoteOptionNo)
	if err != nil {
		return domain.Tally{}, err
	}

	if yesWeight != yesCount*minStake || noWeight != noCount*minStake {
		s.escalate(ctx, "invariant_violation",
			"revealed tally disagrees with vote count",
			fmt.Sprintf("market %s: revealed yes=%d no=%d, expected yes=%d no=%d",
				marketID, yesWeight, noWeight, yesCount*minStake, noCount*minStake))
		return domain.Tally{}, fmt.Errorf("resolution: market %q tally mismatch: %w", marketID, domain.ErrInvariantViolation)
	}

	return domain.Tally{YesWeight: yesWeight, NoWeight: noWeight}, nil
}

func (s *ResolutionService) revealOption(ctx context.Context, marketID string, option domain.VoteOption) (int64, error) {
	cts, err := s.votes.Ciphertexts(ctx, marketID, option)
	if err != nil {
		return 0, fmt.Errorf("resolution: load %s ciphertexts %q: %w", option, marketID, err)
	}
	if len(cts) == 0 {
		return 0, nil
	}
	weight, err := s.enclave.RevealAggregate(ctx, cts)
	if err != nil {
		return 0, fmt.Errorf("resolution: reveal %s aggregate %q: %w", option, marketID, err)
	}
	return weight, nil
}

func (s *ResolutionService) project(ctx context.Context, ev domain.ProjectionEvent) {
	if s.projector == nil {
		return
	}
	if err := s.projector.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "resolution: projection publish failed",
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ResolutionService) escalate(ctx context.Context, event, title, message string) {
	s.logger.ErrorContext(ctx, "resolution: "+title,
		slog.String("event", event),
		slog.String("detail", message),
	)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.ErrorContext(ctx, "resolution: escalation delivery failed",
			slog.String("error", err.Error()),
		)
	}
}
