package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisStore implementa Store sobre Redis. Cada sesión es un documento JSON
// bajo <prefix>:sess:<id> con TTL fijo. Escrituras concurrentes sobre la
// misma sesión resuelven last-writer-wins; ver la política de consistencia
// débil del orquestador.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis crea un Store de sesiones sobre Redis.
func NewRedis(cfg Config) (Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis ping failed: %w", err)
	}

	ttl := 24 * time.Hour
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("session: invalid ttl %q: %w", cfg.TTL, err)
		}
		ttl = d
	}
	return &redisStore{client: rdb, prefix: cfg.Prefix, ttl: ttl}, nil
}

// NewRedisFromClient envuelve un *redis.Client existente (tests, wiring compartido).
func NewRedisFromClient(rdb *redis.Client, prefix string, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisStore{client: rdb, prefix: prefix, ttl: ttl}
}

func (s *redisStore) key(id string) string {
	if s.prefix == "" {
		return "sess:" + id
	}
	return s.prefix + ":sess:" + id
}

func (s *redisStore) save(ctx context.Context, id string, rec *record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	return s.client.Set(ctx, s.key(id), b, s.ttl).Err()
}

func (s *redisStore) New(ctx context.Context) (Session, error) {
	id := uuid.NewString()
	rec := newRecord()
	if err := s.save(ctx, id, rec); err != nil {
		return nil, err
	}
	return &redisSession{store: s, id: id, rec: rec}, nil
}

func (s *redisStore) Load(ctx context.Context, id string) (Session, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := newRecord()
	if err := json.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("session: unmarshal %q: %w", id, err)
	}
	return &redisSession{store: s, id: id, rec: rec}, nil
}

// redisSession es un handle sobre un documento de sesión. Cada mutación
// reescribe el documento completo.
type redisSession struct {
	store *redisStore
	id    string
	rec   *record
}

func (r *redisSession) ID() string       { return r.id }
func (r *redisSession) CanSetUser() bool { return true }
func (r *redisSession) User() Principal  { return r.rec.User }
func (r *redisSession) Remembered() bool { return r.rec.Remember }

func (r *redisSession) flush(ctx context.Context) error {
	return r.store.save(ctx, r.id, r.rec)
}

func (r *redisSession) SetUser(ctx context.Context, p Principal) error {
	r.rec.User = p
	return r.flush(ctx)
}

func (r *redisSession) SetRemember(ctx context.Context, remember bool) error {
	r.rec.Remember = remember
	return r.flush(ctx)
}

func (r *redisSession) Get(ctx context.Context, key string) (string, error) {
	return r.rec.get(key, false)
}

func (r *redisSession) Set(ctx context.Context, key, value string) error {
	r.rec.set(key, value, false)
	return r.flush(ctx)
}

func (r *redisSession) GetSecret(ctx context.Context, key string) (string, error) {
	return r.rec.get(key, true)
}

func (r *redisSession) SetSecret(ctx context.Context, key, value string) error {
	r.rec.set(key, value, true)
	return r.flush(ctx)
}

func (r *redisSession) Remove(ctx context.Context, key string) error {
	r.rec.remove(key)
	return r.flush(ctx)
}

func (r *redisSession) Persist(ctx context.Context) error {
	r.rec.Persisted = true
	return r.flush(ctx)
}

func (r *redisSession) ResetID(ctx context.Context) error {
	oldKey := r.store.key(r.id)
	r.id = uuid.NewString()
	if err := r.flush(ctx); err != nil {
		return err
	}
	return r.store.client.Del(ctx, oldKey).Err()
}

func (r *redisSession) ResetAllTokens(ctx context.Context) error {
	r.rec.Token = uuid.NewString()
	return r.flush(ctx)
}

// New crea un Store según la configuración.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(), nil
	default:
		return NewMemory(), nil
	}
}
