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

// VoteStore implements domain.VoteStore using PostgreSQL. The primary key on
// (market_id, voter) plus ON CONFLICT DO NOTHING gives the atomic
// insert-if-absent that one-vote-per-participant rests on; the market-state
// re-check shares the same transaction so an insert cannot land after the
// resolution compare-and-swap commits.
type VoteStore struct {
	pool *pgxpool.Pool
}

// NewVoteStore creates a new VoteStore backed by the given connection pool.
func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Insert stores a vote if and only if no vote exists for the same key and the
// market can still accept it. The FOR SHARE lock on the market row conflicts
// with the resolution UPDATE, so the state read and the insert commit as one
// unit against a concurrent resolve. Concurrent inserts for the same key race
// at the primary key; losers see zero rows affected and get
// domain.ErrAlreadyVoted.
func (s *VoteStore) Insert(ctx context.Context, v domain.Vote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: insert vote %s/%s: begin: %w", v.MarketID, v.Voter, err)
	}
	defer tx.Rollback(ctx)

	var status string
	var expiresAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT status, expires_at FROM markets WHERE id = $1 FOR SHARE`,
		v.MarketID,
	).Scan(&status, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: insert vote %s/%s: market state: %w", v.MarketID, v.Voter, err)
	}
	if status == string(domain.MarketStatusResolved) {
		return domain.ErrAlreadyResolved
	}
	if !v.CastAt.Before(expiresAt) {
		return domain.ErrMarketExpired
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO votes (market_id, voter, option, ciphertext, cast_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, voter) DO NOTHING`,
		v.MarketID, v.Voter, string(v.Option), []byte(v.Ciphertext), v.CastAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert vote %s/%s: %w", v.MarketID, v.Voter, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyVoted
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: insert vote %s/%s: commit: %w", v.MarketID, v.Voter, err)
	}
	return nil
}

// Delete removes the vote for the key. Used only to back out an insert whose
// prize-pool growth failed.
func (s *VoteStore) Delete(ctx context.Context, marketID, voter string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM votes WHERE market_id = $1 AND voter = $2`,
		marketID, voter,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete vote %s/%s: %w", marketID, voter, err)
	}
	return nil
}

// Get retrieves a vote by its (marketID, voter) key.
func (s *VoteStore) Get(ctx context.Context, marketID, voter string) (domain.Vote, error) {
	var v domain.Vote
	var option string
	var ct []byte
	err := s.pool.QueryRow(ctx, `
		SELECT market_id, voter, option, ciphertext, cast_at
		FROM votes WHERE market_id = $1 AND voter = $2`,
		marketID, voter,
	).Scan(&v.MarketID, &v.Voter, &option, &ct, &v.CastAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("postgres: get vote %s/%s: %w", marketID, voter, err)
	}
	v.Option = domain.VoteOption(option)
	v.Ciphertext = domain.Ciphertext(ct)
	return v, nil
}

// ListByMarket returns a market's votes in cast order.
func (s *VoteStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Vote, error) {
	query := `
		SELECT market_id, voter, option, ciphertext, cast_at
		FROM votes WHERE market_id = $1 ORDER BY cast_at ASC`
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
		return nil, fmt.Errorf("postgres: list votes %s: %w", marketID, err)
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		var v domain.Vote
		var option string
		var ct []byte
		if err := rows.Scan(&v.MarketID, &v.Voter, &option, &ct, &v.CastAt); err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		v.Option = domain.VoteOption(option)
		v.Ciphertext = domain.Ciphertext(ct)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list votes rows: %w", err)
	}
	return votes, nil
}

// Ciphertexts returns the accumulated encrypted tally for one option, in
// cast order.
func (s *VoteStore) Ciphertexts(ctx context.Context, marketID string, option domain.VoteOption) ([]domain.Ciphertext, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ciphertext FROM votes
		WHERE market_id = $1 AND option = $2
		ORDER BY cast_at ASC`,
		marketID, string(option),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: ciphertexts %s/%s: %w", marketID, option, err)
	}
	defer rows.Close()

	var cts []domain.Ciphertext
	for rows.Next() {
		var ct []byte
		if err := rows.Scan(&ct); err != nil {
			return nil, fmt.Errorf("postgres: scan ciphertext: %w", err)
		}
		cts = append(cts, domain.Ciphertext(ct))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: ciphertexts rows: %w", err)
	}
	return cts, nil
}

// CountByOption returns the number of accepted votes per option.
func (s *VoteStore) CountByOption(ctx context.Context, marketID string) (int64, int64, error) {
	var yes, no int64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE option = 'yes'),
			COUNT(*) FILTER (WHERE option = 'no')
		FROM votes WHERE market_id = $1`,
		marketID,
	).Scan(&yes, &no)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: count votes %s: %w", marketID, err)
	}
	return yes, no, nil
}

// Compile-time interface check.
var _ domain.VoteStore = (*VoteStore)(nil)
