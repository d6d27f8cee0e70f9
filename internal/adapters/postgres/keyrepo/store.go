package keyrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/convention-registry/member-api/internal/adapters/postgres"
	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/keyrepo"
)

// Store is a Postgres implementation of keyrepo.Store. Calls made with a context
// carrying a member transaction run inside that transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (keyrepo.Key, error) {
	if s.pool == nil {
		return keyrepo.Key{}, errors.New("nil postgres pool")
	}
	var k keyrepo.Key
	err := postgres.GetExecutor(ctx, s.pool).QueryRow(ctx, `
		SELECT email, key FROM keys WHERE email = $1
	`, domain.NormalizeEmail(email)).Scan(&k.Email, &k.Key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return keyrepo.Key{}, keyrepo.ErrNotFound
		}
		return keyrepo.Key{}, err
	}
	return k, nil
}

func (s *Store) Issue(ctx context.Context, email string) (keyrepo.Key, error) {
	if s.pool == nil {
		return keyrepo.Key{}, errors.New("nil postgres pool")
	}
	v, err := domain.NewAccessKey()
	if err != nil {
		return keyrepo.Key{}, err
	}
	k := keyrepo.Key{Email: domain.NormalizeEmail(email), Key: v}
	_, err = postgres.GetExecutor(ctx, s.pool).Exec(ctx, `
		INSERT INTO keys (email, key) VALUES ($1, $2)
	`, k.Email, k.Key)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			return keyrepo.Key{}, keyrepo.ErrKeyExists
		}
		return keyrepo.Key{}, err
	}
	return k, nil
}
