package keyrepo

import (
	"context"
	"sync"

	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/keyrepo"
)

// Store is an in-memory implementation of keyrepo.Store.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	byEmail map[string]keyrepo.Key

	newKey func() (string, error)
}

func NewStore() *Store {
	return &Store{
		byEmail: make(map[string]keyrepo.Key),
		newKey:  domain.NewAccessKey,
	}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (keyrepo.Key, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return keyrepo.Key{}, keyrepo.ErrNotFound
	}
	return k, nil
}

func (s *Store) Issue(ctx context.Context, email string) (keyrepo.Key, error) {
	_ = ctx
	norm := domain.NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[norm]; ok {
		return keyrepo.Key{}, keyrepo.ErrKeyExists
	}
	v, err := s.newKey()
	if err != nil {
		return keyrepo.Key{}, err
	}
	k := keyrepo.Key{Email: norm, Key: v}
	s.byEmail[norm] = k
	return k, nil
}
