package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore reads and writes the tenant_settings table:
//
//	CREATE TABLE tenant_settings (
//	  user_id text PRIMARY KEY,
//	  company_name text NOT NULL,
//	  currency char(3) NOT NULL DEFAULT 'USD',
//	  created_at timestamptz NOT NULL DEFAULT now(),
//	  updated_at timestamptz NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) Get(ctx context.Context, userID string) (Settings, error) {
	const q = `
SELECT user_id, company_name, currency, created_at, updated_at
FROM tenant_settings
WHERE user_id = $1
`
	var s Settings
	err := p.db.QueryRowContext(ctx, q, userID).Scan(
		&s.UserID,
		&s.CompanyName,
		&s.Currency,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, mapPostgresError(err)
	}
	return s, nil
}

// Save upserts the row; a repeated setup submission updates it in place.
func (p *PostgresStore) Save(ctx context.Context, s Settings) (Settings, error) {
	s, err := s.Normalize()
	if err != nil {
		return Settings{}, err
	}
	const q = `
INSERT INTO tenant_settings (user_id, company_name, currency)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET company_name = EXCLUDED.company_name,
    currency = EXCLUDED.currency,
    updated_at = now()
RETURNING created_at, updated_at
`
	if err := p.db.QueryRowContext(ctx, q, s.UserID, s.CompanyName, s.Currency).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return Settings{}, mapPostgresError(err)
	}
	return s, nil
}

// mapPostgresError folds driver errors into the package sentinels. Anything
// that is not a constraint problem means the store could not answer.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch pgErr.Code {
	case pgerrcode.NotNullViolation, pgerrcode.CheckViolation, pgerrcode.StringDataRightTruncationDataException:
		return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
	case pgerrcode.UndefinedTable:
		return fmt.Errorf("%w: tenant_settings table missing: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: postgres error [%s]: %s", ErrUnavailable, pgErr.Code, pgErr.Message)
	}
}
