package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript borra la key solo si el token coincide, para no liberar
// un lock que ya expiró y fue tomado por otro proceso.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisLocker implementa Locker con SET NX PX.
type redisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedis crea un Locker sobre Redis.
func NewRedis(cfg Config) (Locker, error) {
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
		return nil, fmt.Errorf("lock: redis ping failed: %w", err)
	}
	return &redisLocker{client: rdb, prefix: cfg.Prefix}, nil
}

// NewRedisFromClient envuelve un *redis.Client existente (tests, wiring compartido).
func NewRedisFromClient(rdb *redis.Client, prefix string) Locker {
	return &redisLocker{client: rdb, prefix: prefix}
}

func (l *redisLocker) key(k string) string {
	if l.prefix == "" {
		return "lock:" + k
	}
	return l.prefix + ":lock:" + k
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := uuid.NewString()
	k := l.key(key)

	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %q: %w", key, err)
	}
	if !ok {
		return nil, ErrContended
	}

	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		return releaseScript.Run(ctx, l.client, []string{k}, token).Err()
	}, nil
}
