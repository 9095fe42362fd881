package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo appends events to the security_events table:
//
//	CREATE TABLE security_events (
//	  id uuid PRIMARY KEY,
//	  type text NOT NULL,
//	  request_id text, user_id text, ip_address text,
//	  method text, path text, reason text,
//	  created_at timestamptz NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO security_events (
  id, type, request_id, user_id, ip_address, method, path, reason, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.RequestID,
		e.UserID,
		e.IPAddress,
		e.Method,
		e.Path,
		e.Reason,
		e.CreatedAt,
	)
	return mapPostgresError(err)
}

func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("audit: duplicate event id: %w", err)
	case pgerrcode.UndefinedTable:
		return fmt.Errorf("audit: security_events table missing: %w", err)
	default:
		return err
	}
}
