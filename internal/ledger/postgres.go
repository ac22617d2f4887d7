package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Schema creates the table Postgres consumes tokens into.
const Schema = `
CREATE TABLE IF NOT EXISTS consumed_tokens (
	id          BIGSERIAL PRIMARY KEY,
	backend     TEXT        NOT NULL,
	token       TEXT        NOT NULL,
	consumed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (backend, token)
);`

const pgUniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects through lib/pq and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}
	return db, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

func (p *Postgres) Consume(ctx context.Context, backend, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}

	const q = `
	INSERT INTO consumed_tokens (backend, token)
	VALUES ($1, $2)
	ON CONFLICT (backend, token)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := p.db.QueryRowContext(ctx, q, backend, token).Scan(&id)
	if err != nil {
		// Conflict means the token was already consumed.
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		var pe *pq.Error
		if errors.As(err, &pe) && pe.Code == pgUniqueViolation {
			return true, nil
		}
		return false, fmt.Errorf("ledger: consume token: %w", err)
	}
	return false, nil
}
