// Package lock provee exclusión mutua distribuida por clave.
//
// El orquestador de autenticación lo usa únicamente durante la sección
// crítica "¿existe la cuenta? / crearla" para evitar creaciones duplicadas
// por doble submit o auto-creaciones concurrentes.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrContended indica que otro proceso tiene el lock.
// El caller debe tratarlo como transitorio/reintentable.
var ErrContended = errors.New("lock: already held")

// Release libera un lock adquirido. Idempotente.
type Release func(ctx context.Context) error

// Locker adquiere locks efímeros por clave.
type Locker interface {
	// Acquire intenta tomar el lock. Retorna ErrContended si está ocupado.
	// El lock expira solo tras ttl aunque nunca se llame a Release.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Config configuración para crear un Locker.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New crea un Locker según la configuración.
func New(cfg Config) (Locker, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(), nil
	default:
		return NewMemory(), nil
	}
}
