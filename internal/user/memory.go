package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore implementa Store en memoria. Útil para desarrollo y testing.
type MemStore struct {
	mu     sync.Mutex
	byName map[string]*User
	byID   map[string]*User
	creds  map[string]map[string]string
}

// NewMemStore crea un store de usuarios en memoria.
func NewMemStore() *MemStore {
	return &MemStore{
		byName: map[string]*User{},
		byID:   map[string]*User{},
		creds:  map[string]map[string]string{},
	}
}

func (s *MemStore) GetByName(ctx context.Context, canonical string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byName[canonical]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) GetByNameLatest(ctx context.Context, canonical string) (*User, error) {
	// En memoria no hay réplicas: misma lectura.
	return s.GetByName(ctx, canonical)
}

func (s *MemStore) GetByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[u.CanonicalName]; ok {
		return ErrExists
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	cp := *u
	s.byName[u.CanonicalName] = &cp
	s.byID[u.ID] = &cp
	return nil
}

func (s *MemStore) SaveOptions(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Language = u.Language
	stored.Variant = u.Variant
	stored.Token = u.Token
	return nil
}

func (s *MemStore) GetCredential(ctx context.Context, canonical, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.creds[canonical][provider]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *MemStore) SetCredential(ctx context.Context, canonical, provider, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds[canonical] == nil {
		s.creds[canonical] = map[string]string{}
	}
	s.creds[canonical][provider] = secret
	return nil
}

func (s *MemStore) DeleteCredential(ctx context.Context, canonical, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds[canonical], provider)
	return nil
}
