// Package repository provides PostgreSQL-backed persistence for feature
// flags. Every call is a direct round trip to the database; there is no
// caching layer, so reads are as fresh as the storage's own consistency
// model allows.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

var (
	// ErrDuplicateName is returned by Create when a flag with the same name
	// already exists. The flags.name UNIQUE constraint arbitrates concurrent
	// creates, so exactly one of two racing calls receives this error.
	ErrDuplicateName = errors.New("flag name already exists")

	// ErrNotFound is returned when no flag with the given name exists.
	ErrNotFound = errors.New("flag not found")
)

// Flag is the persisted representation of a feature flag. Name and CreatedAt
// are immutable after creation; only Enabled changes, via SetEnabled.
type Flag struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"is_enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// PostgresRepository implements flag persistence backed by a pgxpool
// connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a [PostgresRepository] on top of pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new flag row and returns the created record. Returns
// [ErrDuplicateName] if a flag with that name already exists.
func (r *PostgresRepository) Create(ctx context.Context, name string, enabled bool) (Flag, error) {
	var created Flag
	err := r.pool.QueryRow(ctx, `
		INSERT INTO flags (name, is_enabled)
		VALUES ($1, $2)
		RETURNING name, is_enabled, created_at
	`, name, enabled).Scan(&created.Name, &created.Enabled, &created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Flag{}, fmt.Errorf("create flag %q: %w", name, ErrDuplicateName)
		}
		return Flag{}, fmt.Errorf("create flag %q: %w", name, err)
	}

	return created, nil
}

// Get retrieves a single flag by name. Returns [ErrNotFound] if no such flag
// exists.
func (r *PostgresRepository) Get(ctx context.Context, name string) (Flag, error) {
	var flag Flag
	err := r.pool.QueryRow(ctx, `
		SELECT name, is_enabled, created_at
		FROM flags
		WHERE name = $1
	`, name).Scan(&flag.Name, &flag.Enabled, &flag.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flag{}, fmt.Errorf("get flag %q: %w", name, ErrNotFound)
		}
		return Flag{}, fmt.Errorf("get flag %q: %w", name, err)
	}

	return flag, nil
}

// List returns all flags ordered by name ascending.
func (r *PostgresRepository) List(ctx context.Context) ([]Flag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, is_enabled, created_at
		FROM flags
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	flags := make([]Flag, 0)
	for rows.Next() {
		var flag Flag
		if err := rows.Scan(&flag.Name, &flag.Enabled, &flag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		flags = append(flags, flag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list flags rows: %w", err)
	}

	return flags, nil
}

// SetEnabled updates a flag's enabled state in a single statement, so
// concurrent updates on the same name serialize at the row and the last
// committed write wins. Returns [ErrNotFound] if the flag does not exist.
func (r *PostgresRepository) SetEnabled(ctx context.Context, name string, enabled bool) (Flag, error) {
	var updated Flag
	err := r.pool.QueryRow(ctx, `
		UPDATE flags
		SET is_enabled = $2
		WHERE name = $1
		RETURNING name, is_enabled, created_at
	`, name, enabled).Scan(&updated.Name, &updated.Enabled, &updated.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flag{}, fmt.Errorf("update flag %q: %w", name, ErrNotFound)
		}
		return Flag{}, fmt.Errorf("update flag %q: %w", name, err)
	}

	return updated, nil
}

// Ping verifies database connectivity. Used by the API health surface.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
