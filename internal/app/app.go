// Package app arma el contenedor de dependencias del servicio: storage,
// cache, locks, sesiones, hashing de passwords, issuer de tokens y la
// fábrica de managers por request.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authflow/internal/auth"
	_ "github.com/dropDatabas3/authflow/internal/auth/providers" // registra los kinds incluidos
	"github.com/dropDatabas3/authflow/internal/cache"
	"github.com/dropDatabas3/authflow/internal/config"
	httpx "github.com/dropDatabas3/authflow/internal/http"
	authctrl "github.com/dropDatabas3/authflow/internal/http/controllers/auth"
	mw "github.com/dropDatabas3/authflow/internal/http/middlewares"
	svc "github.com/dropDatabas3/authflow/internal/http/services/auth"
	"github.com/dropDatabas3/authflow/internal/jwt"
	"github.com/dropDatabas3/authflow/internal/lock"
	"github.com/dropDatabas3/authflow/internal/metrics"
	"github.com/dropDatabas3/authflow/internal/security/password"
	"github.com/dropDatabas3/authflow/internal/session"
	"github.com/dropDatabas3/authflow/internal/user"
)

// Container agrupa las dependencias ya construidas del servicio.
type Container struct {
	Cfg     *config.Config
	AuthCfg auth.Config

	Users     user.Store
	Cache     cache.Client
	Locks     lock.Locker
	Sessions  session.Store
	Passwords *password.Factory
	Issuer    *jwt.Issuer

	pool    *pgxpool.Pool
	replica *pgxpool.Pool
}

// New construye el contenedor a partir de la configuración cargada.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	authCfg, err := cfg.AuthConfig()
	if err != nil {
		return nil, err
	}

	c := &Container{
		Cfg:       cfg,
		AuthCfg:   authCfg,
		Passwords: password.NewFactory(password.Default),
	}

	// Paso 1: storage de cuentas.
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := newPool(ctx, cfg.Storage.DSN, cfg)
		if err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		c.pool = pool
		replica := pool
		if dsn := cfg.Storage.Postgres.ReplicaDSN; dsn != "" {
			r, err := newPool(ctx, dsn, cfg)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("app: postgres replica: %w", err)
			}
			c.replica = r
			replica = r
		}
		c.Users = user.NewPGStore(pool, replica)
	case "memory", "":
		c.Users = user.NewMemStore()
	default:
		return nil, fmt.Errorf("app: storage driver desconocido: %q", cfg.Storage.Driver)
	}

	// Paso 2: cache, locks y sesiones.
	c.Cache, err = cache.New(cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Locks, err = lock.New(lock.Config{
		Driver:   cfg.Lock.Driver,
		Addr:     cfg.Lock.Redis.Addr,
		Password: cfg.Lock.Redis.Password,
		DB:       cfg.Lock.Redis.DB,
		Prefix:   cfg.Lock.Redis.Prefix,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Sessions, err = session.New(session.Config{
		Driver:   cfg.Session.Driver,
		Addr:     cfg.Session.Redis.Addr,
		Password: cfg.Session.Redis.Password,
		DB:       cfg.Session.Redis.DB,
		Prefix:   cfg.Session.Redis.Prefix,
		TTL:      cfg.Session.TTL,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	// Paso 3: issuer de access tokens.
	accessTTL, err := time.ParseDuration(cfg.JWT.AccessTTL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("app: jwt.access_ttl: %w", err)
	}
	c.Issuer, err = jwt.NewIssuer(cfg.JWT.Issuer, cfg.JWT.SigningKey, accessTTL)
	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func newPool(ctx context.Context, dsn string, cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if n := cfg.Storage.Postgres.MaxConns; n > 0 {
		pc.MaxConns = int32(n)
	}
	if raw := cfg.Storage.Postgres.ConnMaxLifetime; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("conn_max_lifetime: %w", err)
		}
		pc.MaxConnLifetime = d
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// ManagerFor construye el orquestador de auth ligado a una sesión. Se
// llama una vez por request.
func (c *Container) ManagerFor(sess session.Session) (*auth.Manager, error) {
	return auth.New(c.AuthCfg, sess, auth.Deps{
		Users:     c.Users,
		Locks:     c.Locks,
		Cache:     c.Cache,
		Passwords: c.Passwords,
	})
}

// Router arma el handler HTTP completo del servicio.
func (c *Container) Router() (http.Handler, error) {
	if err := metrics.RegisterAuth(nil); err != nil {
		return nil, err
	}
	rememberTTL, err := time.ParseDuration(c.Cfg.Session.RememberTTL)
	if err != nil {
		return nil, fmt.Errorf("app: session.remember_ttl: %w", err)
	}
	controllers := authctrl.New(authctrl.Deps{
		Managers: c.ManagerFor,
		Tokens:   svc.NewTokenService(c.Issuer),
	})
	return httpx.NewRouter(httpx.RouterDeps{
		Controllers: controllers,
		Sessions:    c.Sessions,
		SessionCfg: mw.SessionConfig{
			CookieName:  c.Cfg.Session.CookieName,
			Domain:      c.Cfg.Session.Domain,
			SameSite:    c.Cfg.Session.SameSite,
			Secure:      c.Cfg.Session.Secure,
			RememberTTL: rememberTTL,
		},
		CORSOrigins: c.Cfg.Server.CORSAllowedOrigins,
	}), nil
}

// Pool expone el pool de escritura (nil con storage en memoria).
func (c *Container) Pool() *pgxpool.Pool { return c.pool }

// Close libera las conexiones del contenedor.
func (c *Container) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.replica != nil {
		c.replica.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
