package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// ClaimStore implements domain.ClaimStore using PostgreSQL. A claim row only
// comes into existence through MarkClaimed, so ON CONFLICT DO NOTHING on the
// (market_id, claimant) key is the whole check-and-mark: among concurrent
// claims exactly one inserts, the rest find an existing row.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a new ClaimStore backed by the given connection pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// MarkClaimed records a payment atomically. Returns domain.ErrAlreadyClaimed
// when a claim already exists and domain.ErrClaimLocked when the existing
// record is frozen for reconciliation.
func (s *ClaimStore) MarkClaimed(ctx context.Context, marketID, claimant string, amount int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO claims (market_id, claimant, claimed, amount_paid, claimed_at)
		VALUES ($1, $2, TRUE, $3, $4)
		ON CONFLICT (market_id, claimant) DO NOTHING`,
		marketID, claimant, amount, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark claim %s/%s: %w", marketID, claimant, err)
	}
	if tag.RowsAffected() == 0 {
		rec, err := s.Get(ctx, marketID, claimant)
		if err != nil {
			return fmt.Errorf("postgres: mark claim check %s/%s: %w", marketID, claimant, err)
		}
		if rec.TransferLocked {
			return domain.ErrClaimLocked
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// Get retrieves a claim record by its (marketID, claimant) key.
func (s *ClaimStore) Get(ctx context.Context, marketID, claimant string) (domain.ClaimRecord, error) {
	var rec domain.ClaimRecord
	err := s.pool.QueryRow(ctx, `
		SELECT market_id, claimant, claimed, amount_paid, claimed_at, transfer_locked
		FROM claims WHERE market_id = $1 AND claimant = $2`,
		marketID, claimant,
	).Scan(&rec.MarketID, &rec.Claimant, &rec.Claimed, &rec.AmountPaid, &rec.ClaimedAt, &rec.TransferLocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClaimRecord{}, domain.ErrNotFound
		}
		return domain.ClaimRecord{}, fmt.Errorf("postgres: get claim %s/%s: %w", marketID, claimant, err)
	}
	return rec, nil
}

// ListByMarket returns a market's claim records ordered by claim time.
func (s *ClaimStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ClaimRecord, error) {
	query := `
		SELECT market_id, claimant, claimed, amount_paid, claimed_at, transfer_locked
		FROM claims WHERE market_id = $1 ORDER BY claimed_at ASC`
	args := []any{marketID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims %s: %w", marketID, err)
	}
	defer rows.Close()

	var recs []domain.ClaimRecord
	for rows.Next() {
		var rec domain.ClaimRecord
		if err := rows.Scan(&rec.MarketID, &rec.Claimant, &rec.Claimed,
			&rec.AmountPaid, &rec.ClaimedAt, &rec.TransferLocked); err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claims rows: %w", err)
	}
	return recs, nil
}

// MarkTransferFailed freezes a claim whose value transfer did not complete.
func (s *ClaimStore) MarkTransferFailed(ctx context.Context, marketID, claimant string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE claims SET transfer_locked = TRUE
		WHERE market_id = $1 AND claimant = $2`,
		marketID, claimant,
	)
	if err != nil {
		return fmt.Errorf("postgres: lock claim %s/%s: %w", marketID, claimant, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.ClaimStore = (*ClaimStore)(nil)
