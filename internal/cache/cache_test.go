package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// clients arma los dos backends contra el mismo juego de casos.
func clients(t *testing.T) map[string]Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Client{
		"memory": NewMemory("test"),
		"redis":  NewRedisFromClient(rdb, "test"),
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
				t.Fatalf("Get inexistente: err = %v", err)
			}
			if err := c.Set(ctx, "k", "v", 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := c.Get(ctx, "k")
			if err != nil || got != "v" {
				t.Fatalf("Get = (%q, %v)", got, err)
			}
			ok, err := c.Exists(ctx, "k")
			if err != nil || !ok {
				t.Fatalf("Exists = (%v, %v)", ok, err)
			}
			if err := c.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if ok, _ := c.Exists(ctx, "k"); ok {
				t.Fatal("la key debería haberse borrado")
			}
		})
	}
}

func TestIncrCountsAndResets(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				n, err := c.Incr(ctx, "hits", time.Minute)
				if err != nil {
					t.Fatalf("Incr: %v", err)
				}
				if n != want {
					t.Fatalf("Incr = %d, se esperaba %d", n, want)
				}
			}
			if err := c.Delete(ctx, "hits"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			n, err := c.Incr(ctx, "hits", time.Minute)
			if err != nil || n != 1 {
				t.Fatalf("Incr tras Delete = (%d, %v)", n, err)
			}
		})
	}
}

func TestGetReadsIncrCounter(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if _, err := c.Incr(ctx, "hits", time.Minute); err != nil {
					t.Fatalf("Incr: %v", err)
				}
			}
			// El contador se lee como string decimal en ambos backends.
			got, err := c.Get(ctx, "hits")
			if err != nil || got != "3" {
				t.Fatalf("Get contador = (%q, %v), se esperaba \"3\"", got, err)
			}
		})
	}
}

func TestErrNotFoundIdentity(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Fatal("IsNotFound(ErrNotFound) debería dar true")
	}
	if IsNotFound(errors.New("otro")) {
		t.Fatal("IsNotFound no debería aceptar errores ajenos")
	}
}

func TestRedisKeysExpire(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedisFromClient(rdb, "test")

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := c.Incr(ctx, "hits", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("la key debería haber expirado: %v", err)
	}
	// La ventana del contador también venció: vuelve a arrancar en 1.
	n, err := c.Incr(ctx, "hits", time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("Incr tras expirar = (%d, %v)", n, err)
	}
}

func TestPrefixIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := NewRedisFromClient(rdb, "tenant-a")
	b := NewRedisFromClient(rdb, "tenant-b")

	if err := a.Set(ctx, "k", "de-a", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("el prefijo no aisló las keys: %v", err)
	}
}
