package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, creator, min_stake, prize_pool, expires_at, status,
	outcome, yes_weight, no_weight, resolved_at, resolved_by,
	created_at, updated_at`

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, min_stake, prize_pool, expires_at, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Creator, m.MinStake, m.PrizePool, m.ExpiresAt,
		string(m.Status), m.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var outcome *string
	var yesWeight, noWeight *int64
	err := row.Scan(
		&m.ID, &m.Creator, &m.MinStake, &m.PrizePool, &m.ExpiresAt, &status,
		&outcome, &yesWeight, &noWeight, &m.ResolvedAt, &m.ResolvedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	if outcome != nil {
		o := domain.Outcome(*outcome)
		m.Outcome = &o
	}
	if yesWeight != nil && noWeight != nil {
		m.Tally = &domain.Tally{YesWeight: *yesWeight, NoWeight: *noWeight}
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by creation time, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// AddStake grows the prize pool by amount, conditional on the market still
// being active. The status predicate makes the read-then-write race benign:
// a resolved market's pool is frozen at the database.
func (s *MarketStore) AddStake(ctx context.Context, id string, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET prize_pool = prize_pool + $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`,
		id, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: add stake %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: add stake check %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// CommitResolution writes status, outcome, and tally as a single guarded
// update. The status predicate is the compare-and-swap: among concurrent
// resolvers exactly one affects a row, the rest get ErrAlreadyResolved.
func (s *MarketStore) CommitResolution(ctx context.Context, id string, outcome domain.Outcome, tally domain.Tally, resolvedBy string, resolvedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET status = 'resolved',
		    outcome = $2,
		    yes_weight = $3,
		    no_weight = $4,
		    resolved_by = $5,
		    resolved_at = $6,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'resolved'`,
		id, string(outcome), tally.YesWeight, tally.NoWeight, resolvedBy, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: commit resolution %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: commit resolution check %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
