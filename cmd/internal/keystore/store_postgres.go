package keystore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSchema = "pointy"

// PostgresStore is a Store backed by PostgreSQL. Keys are sealed before they are written.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	sealer *Sealer
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "pointy").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("keystore: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("keystore: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, sealer *Sealer, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		sealer: sealer,
		schema: defaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("keystore: nil pool")
	}
	if st.sealer == nil {
		return nil, errors.New("keystore: nil sealer")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate creates the schema and table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return fmt.Errorf("keystore: create schema: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+s.table()+` (
  session_id  TEXT PRIMARY KEY,
  sealed_key  BYTEA NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("keystore: create table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	e, err := normalize(e)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal([]byte(e.FacilitatorKey))
	if err != nil {
		return fmt.Errorf("keystore: seal: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (session_id, sealed_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (session_id) DO UPDATE
		   SET sealed_key = EXCLUDED.sealed_key,
		       updated_at = EXCLUDED.updated_at`,
		e.SessionID, sealed, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Entry, error) {
	var (
		e      Entry
		sealed []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, sealed_key, created_at
		   FROM `+s.table()+`
		  WHERE session_id = $1`,
		strings.TrimSpace(sessionID),
	).Scan(&e.SessionID, &sealed, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return s.open(e, sealed)
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, sealed_key, created_at
		   FROM `+s.table()+`
		  ORDER BY created_at DESC, session_id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			sealed []byte
		)
		if err := rows.Scan(&e.SessionID, &sealed, &e.CreatedAt); err != nil {
			return nil, err
		}
		e, err = s.open(e, sealed)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) open(e Entry, sealed []byte) (Entry, error) {
	key, err := s.sealer.Open(sealed)
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: %s: %w", e.SessionID, err)
	}
	e.FacilitatorKey = string(key)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "facilitator_keys")
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
