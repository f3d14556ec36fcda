package user

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implementa Store sobre Postgres.
//
// Pool y ReplicaPool pueden ser el mismo pool; si hay réplica configurada,
// GetByName lee de la réplica y GetByNameLatest del primario.
type PGStore struct {
	Pool        *pgxpool.Pool
	ReplicaPool *pgxpool.Pool
}

// NewPGStore crea un store de usuarios sobre pgx.
func NewPGStore(pool *pgxpool.Pool, replica *pgxpool.Pool) *PGStore {
	if replica == nil {
		replica = pool
	}
	return &PGStore{Pool: pool, ReplicaPool: replica}
}

const userColumns = `id, name, canonical_name, language, COALESCE(variant,''), token, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.CanonicalName, &u.Language, &u.Variant, &u.Token, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) GetByName(ctx context.Context, canonical string) (*User, error) {
	row := s.ReplicaPool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE canonical_name = $1`, canonical)
	return scanUser(row)
}

func (s *PGStore) GetByNameLatest(ctx context.Context, canonical string) (*User, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE canonical_name = $1`, canonical)
	return scanUser(row)
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.ReplicaPool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	err := s.Pool.QueryRow(ctx, `
        INSERT INTO app_user (name, canonical_name, language, variant, token)
        VALUES ($1, $2, $3, NULLIF($4,''), $5)
        RETURNING id, created_at`,
		u.Name, u.CanonicalName, u.Language, u.Variant, u.Token,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" { // unique_violation
			return ErrExists
		}
		return fmt.Errorf("user: insert %q: %w", u.CanonicalName, err)
	}
	return nil
}

func (s *PGStore) SaveOptions(ctx context.Context, u *User) error {
	tag, err := s.Pool.Exec(ctx, `
        UPDATE app_user
           SET language = $1, variant = NULLIF($2,''), token = $3
         WHERE id = $4`,
		u.Language, u.Variant, u.Token, u.ID,
	)
	if err != nil {
		return fmt.Errorf("user: save options %q: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetCredential(ctx context.Context, canonical, provider string) (string, error) {
	var secret string
	err := s.Pool.QueryRow(ctx, `
        SELECT secret FROM app_credential
         WHERE canonical_name = $1 AND provider = $2`,
		canonical, provider,
	).Scan(&secret)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("user: get credential %s/%s: %w", canonical, provider, err)
	}
	return secret, nil
}

func (s *PGStore) SetCredential(ctx context.Context, canonical, provider, secret string) error {
	_, err := s.Pool.Exec(ctx, `
        INSERT INTO app_credential (canonical_name, provider, secret)
        VALUES ($1, $2, $3)
        ON CONFLICT (canonical_name, provider)
        DO UPDATE SET secret = EXCLUDED.secret, updated_at = now()`,
		canonical, provider, secret,
	)
	if err != nil {
		return fmt.Errorf("user: set credential %s/%s: %w", canonical, provider, err)
	}
	return nil
}

func (s *PGStore) DeleteCredential(ctx context.Context, canonical, provider string) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM app_credential WHERE canonical_name = $1 AND provider = $2`,
		canonical, provider,
	)
	if err != nil {
		return fmt.Errorf("user: delete credential %s/%s: %w", canonical, provider, err)
	}
	return nil
}
