package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryStore implementa Store in-process. Útil para desarrollo y testing.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]*record
}

// NewMemory crea un Store de sesiones en memoria.
func NewMemory() Store {
	return &memoryStore{data: map[string]*record{}}
}

func (s *memoryStore) New(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	rec := newRecord()
	s.data[id] = rec
	return &memSession{store: s, id: id, rec: rec}, nil
}

func (s *memoryStore) Load(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &memSession{store: s, id: id, rec: rec}, nil
}

// memSession es el handle mutable sobre un record en memoria.
type memSession struct {
	store *memoryStore
	id    string
	rec   *record
}

func (m *memSession) ID() string       { return m.id }
func (m *memSession) CanSetUser() bool { return true }
func (m *memSession) User() Principal  { return m.rec.User }
func (m *memSession) Remembered() bool { return m.rec.Remember }

func (m *memSession) SetUser(ctx context.Context, p Principal) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.User = p
	return nil
}

func (m *memSession) SetRemember(ctx context.Context, remember bool) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.Remember = remember
	return nil
}

func (m *memSession) Get(ctx context.Context, key string) (string, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.rec.get(key, false)
}

func (m *memSession) Set(ctx context.Context, key, value string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.set(key, value, false)
	return nil
}

func (m *memSession) GetSecret(ctx context.Context, key string) (string, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.rec.get(key, true)
}

func (m *memSession) SetSecret(ctx context.Context, key, value string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.set(key, value, true)
	return nil
}

func (m *memSession) Remove(ctx context.Context, key string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.remove(key)
	return nil
}

func (m *memSession) Persist(ctx context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.Persisted = true
	return nil
}

func (m *memSession) ResetID(ctx context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	newID := uuid.NewString()
	delete(m.store.data, m.id)
	m.store.data[newID] = m.rec
	m.id = newID
	return nil
}

func (m *memSession) ResetAllTokens(ctx context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.rec.Token = uuid.NewString()
	return nil
}

// Static retorna una sesión inmutable para el principal dado: representa
// sesiones autenticadas por credencial externa en cada request (API keys,
// mTLS), que no admiten fijar otro usuario ni re-autenticarse.
func Static(p Principal) Session {
	return &staticSession{id: uuid.NewString(), user: p}
}

type staticSession struct {
	id   string
	user Principal
}

func (s *staticSession) ID() string       { return s.id }
func (s *staticSession) CanSetUser() bool { return false }
func (s *staticSession) User() Principal  { return s.user }
func (s *staticSession) Remembered() bool { return false }

func (s *staticSession) SetUser(ctx context.Context, p Principal) error { return ErrCannotSetUser }
func (s *staticSession) SetRemember(ctx context.Context, r bool) error  { return nil }

func (s *staticSession) Get(ctx context.Context, key string) (string, error) {
	return "", ErrNoValue
}
func (s *staticSession) Set(ctx context.Context, key, value string) error { return nil }
func (s *staticSession) GetSecret(ctx context.Context, key string) (string, error) {
	return "", ErrNoValue
}
func (s *staticSession) SetSecret(ctx context.Context, key, value string) error { return nil }
func (s *staticSession) Remove(ctx context.Context, key string) error           { return nil }
func (s *staticSession) Persist(ctx context.Context) error                      { return nil }
func (s *staticSession) ResetID(ctx context.Context) error                      { return nil }
func (s *staticSession) ResetAllTokens(ctx context.Context) error               { return nil }
