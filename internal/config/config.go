package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/authflow/internal/auth"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			ReplicaDSN      string `yaml:"replica_dsn"`
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Session struct {
		Driver      string `yaml:"driver"` // memory | redis
		CookieName  string `yaml:"cookie_name"`
		Domain      string `yaml:"domain"`
		SameSite    string `yaml:"samesite"`
		Secure      bool   `yaml:"secure"`
		TTL         string `yaml:"ttl"`
		RememberTTL string `yaml:"remember_ttl"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Lock struct {
		Driver string `yaml:"driver"` // memory | redis
		TTL    string `yaml:"ttl"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"lock"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		AccessTTL  string `yaml:"access_ttl"`
		SigningKey string `yaml:"signing_key"` // base64(seed ed25519)
	} `yaml:"jwt"`

	Auth struct {
		// always | never | choose
		RememberPolicy    string `yaml:"remember_policy"`
		EnableCreation    *bool  `yaml:"enable_creation"`
		ReadOnly          bool   `yaml:"read_only"`
		AutocreateBackoff string `yaml:"autocreate_backoff"`

		// Umbrales de re-autenticación por operación sensible. La clave
		// "default" es obligatoria; -1 deshabilita la operación.
		ReauthThresholds map[string]string `yaml:"reauth_thresholds"`
		// Qué operaciones siguen permitidas cuando el usuario no puede
		// re-autenticarse. También exige la clave "default".
		AllowWithoutReauth map[string]bool `yaml:"allow_without_reauth"`

		PreProviders       []auth.Spec `yaml:"pre_providers"`
		PrimaryProviders   []auth.Spec `yaml:"primary_providers"`
		SecondaryProviders []auth.Spec `yaml:"secondary_providers"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "12h"
	}
	if c.Session.RememberTTL == "" {
		c.Session.RememberTTL = "720h" // 30d
	}
	if c.Lock.Driver == "" {
		c.Lock.Driver = c.Cache.Kind
	}
	if c.Lock.TTL == "" {
		c.Lock.TTL = "15s"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.Auth.RememberPolicy == "" {
		c.Auth.RememberPolicy = auth.RememberChoose
	}
	if c.Auth.EnableCreation == nil {
		t := true
		c.Auth.EnableCreation = &t
	}
	if c.Auth.AutocreateBackoff == "" {
		c.Auth.AutocreateBackoff = "10m"
	}
	if c.Auth.ReauthThresholds == nil {
		c.Auth.ReauthThresholds = map[string]string{"default": "5m"}
	}
	if c.Auth.AllowWithoutReauth == nil {
		c.Auth.AllowWithoutReauth = map[string]bool{"default": false}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Overrides por env
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("STORAGE_REPLICA_DSN"); ok {
		c.Storage.Postgres.ReplicaDSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
		if c.Session.Redis.Addr == "" {
			c.Session.Redis.Addr = v
		}
		if c.Lock.Redis.Addr == "" {
			c.Lock.Redis.Addr = v
		}
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_DRIVER"); ok {
		c.Session.Driver = v
	}
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	}

	// LOCK
	if v, ok := getEnvStr("LOCK_DRIVER"); ok {
		c.Lock.Driver = v
	}
	if v, ok := getEnvStr("LOCK_TTL"); ok {
		c.Lock.TTL = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_SIGNING_KEY"); ok {
		c.JWT.SigningKey = v
	}

	// AUTH
	if v, ok := getEnvStr("AUTH_REMEMBER_POLICY"); ok {
		c.Auth.RememberPolicy = v
	}
	if v, ok := getEnvBool("AUTH_ENABLE_CREATION"); ok {
		c.Auth.EnableCreation = &v
	}
	if v, ok := getEnvBool("AUTH_READ_ONLY"); ok {
		c.Auth.ReadOnly = v
	}
	if v, ok := getEnvStr("AUTH_AUTOCREATE_BACKOFF"); ok {
		c.Auth.AutocreateBackoff = v
	}

	// FLAGS
	if v, ok := getEnvBool("MIGRATE"); ok {
		c.Flags.Migrate = v
	}
}

// Validate chequea lo que rompería en runtime si quedara mal.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: storage.driver inválido %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("config: storage.driver postgres requiere storage.dsn")
	}
	switch c.Auth.RememberPolicy {
	case auth.RememberAlways, auth.RememberNever, auth.RememberChoose:
	default:
		return fmt.Errorf("config: auth.remember_policy inválida %q", c.Auth.RememberPolicy)
	}
	if _, ok := c.Auth.ReauthThresholds["default"]; !ok {
		return fmt.Errorf("config: auth.reauth_thresholds requiere la clave default")
	}
	if _, ok := c.Auth.AllowWithoutReauth["default"]; !ok {
		return fmt.Errorf("config: auth.allow_without_reauth requiere la clave default")
	}
	for op, raw := range c.Auth.ReauthThresholds {
		if raw == "-1" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: auth.reauth_thresholds[%s]: %w", op, err)
		}
	}
	for name, raw := range map[string]string{
		"session.ttl":              c.Session.TTL,
		"session.remember_ttl":     c.Session.RememberTTL,
		"lock.ttl":                 c.Lock.TTL,
		"jwt.access_ttl":           c.JWT.AccessTTL,
		"auth.autocreate_backoff":  c.Auth.AutocreateBackoff,
		"cache.memory.default_ttl": c.Cache.Memory.DefaultTTL,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// AuthConfig materializa el bloque auth en la config tipada del manager.
func (c *Config) AuthConfig() (auth.Config, error) {
	thresholds := make(map[string]time.Duration, len(c.Auth.ReauthThresholds))
	for op, raw := range c.Auth.ReauthThresholds {
		if raw == "-1" {
			thresholds[op] = -1
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return auth.Config{}, fmt.Errorf("config: auth.reauth_thresholds[%s]: %w", op, err)
		}
		thresholds[op] = d
	}
	lockTTL, err := time.ParseDuration(c.Lock.TTL)
	if err != nil {
		return auth.Config{}, fmt.Errorf("config: lock.ttl: %w", err)
	}
	backoff, err := time.ParseDuration(c.Auth.AutocreateBackoff)
	if err != nil {
		return auth.Config{}, fmt.Errorf("config: auth.autocreate_backoff: %w", err)
	}
	return auth.Config{
		PreProviders:       c.Auth.PreProviders,
		PrimaryProviders:   c.Auth.PrimaryProviders,
		SecondaryProviders: c.Auth.SecondaryProviders,
		RememberPolicy:     c.Auth.RememberPolicy,
		ReauthThresholds:   thresholds,
		AllowWithoutReauth: c.Auth.AllowWithoutReauth,
		EnableCreation:     *c.Auth.EnableCreation,
		ReadOnly:           c.Auth.ReadOnly,
		LockTTL:            lockTTL,
		AutocreateBackoff:  backoff,
	}, nil
}
