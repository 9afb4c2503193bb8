package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps usage rows in a PostgreSQL table with the columns
// user_email, page_credits, pages_used and pages_remaining. pages_remaining is
// written alongside every increment for readers that still expect it, but is
// never read back.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore uses table (default "usage").
func NewPostgresStore(pool *pgxpool.Pool, table string) *PostgresStore {
	if table == "" {
		table = "usage"
	}
	return &PostgresStore{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the usage table if it doesn't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_email TEXT PRIMARY KEY,
			page_credits INTEGER NOT NULL DEFAULT 0,
			pages_used INTEGER NOT NULL DEFAULT 0,
			pages_remaining INTEGER NOT NULL DEFAULT 0
		)`, s.table)
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ledger/postgres: ensure schema: %w", err)
	}
	return nil
}

// Upsert sets the allotment and consumption for an identity.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_email, page_credits, pages_used, pages_remaining)
			VALUES ($1, $2, $3, $2 - $3)
			ON CONFLICT (user_email) DO UPDATE
			SET page_credits = $2, pages_used = $3, pages_remaining = $2 - $3`, s.table),
		rec.UserEmail, rec.PageCredits, rec.PagesUsed,
	)
	if err != nil {
		return fmt.Errorf("ledger/postgres: upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userEmail string) (Record, error) {
	rec := Record{UserEmail: userEmail}
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT page_credits, pages_used FROM %s WHERE user_email = $1`, s.table),
		userEmail,
	).Scan(&rec.PageCredits, &rec.PagesUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("ledger/postgres: get: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Consume(ctx context.Context, userEmail string, pages int) (Record, error) {
	rec := Record{UserEmail: userEmail}
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s
			SET pages_used = pages_used + $2,
			    pages_remaining = page_credits - (pages_used + $2)
			WHERE user_email = $1 AND pages_used + $2 <= page_credits
			RETURNING page_credits, pages_used`, s.table),
		userEmail, pages,
	).Scan(&rec.PageCredits, &rec.PagesUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the row is missing or the condition failed.
		current, getErr := s.Get(ctx, userEmail)
		if getErr != nil {
			return Record{}, getErr
		}
		return current, ErrInsufficientCredit
	}
	if err != nil {
		return Record{}, fmt.Errorf("ledger/postgres: consume: %w", err)
	}
	return rec, nil
}
