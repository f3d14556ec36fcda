package providers

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/security/password"
	"github.com/dropDatabas3/authflow/internal/session"
	"github.com/dropDatabas3/authflow/internal/user"
)

// fastParams baja el costo de argon2 para que los tests no paguen el
// hashing de producción.
var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type managerEnv struct {
	m     *auth.Manager
	sess  session.Session
	users *user.MemStore
	pwd   *password.Factory
}

// newManagerEnv arma un Manager real sobre backends en memoria, con los
// providers instanciados vía la registry a partir de sus specs.
func newManagerEnv(t *testing.T, cfg auth.Config) *managerEnv {
	t.Helper()

	store := session.NewMemory()
	sess, err := store.New(context.Background())
	if err != nil {
		t.Fatalf("sesión de test: %v", err)
	}

	users := user.NewMemStore()
	pwd := password.NewFactory(fastParams)
	m, err := auth.New(cfg, sess, auth.Deps{
		Logger:    zap.NewNop(),
		Users:     users,
		Passwords: pwd,
		Audit:     func(context.Context, string, map[string]any) {},
	})
	if err != nil {
		t.Fatalf("manager de test: %v", err)
	}
	return &managerEnv{m: m, sess: sess, users: users, pwd: pwd}
}

// seedPasswordUser crea una cuenta con credencial de password lista.
func (e *managerEnv) seedPasswordUser(t *testing.T, name, plain string) *user.User {
	t.Helper()
	ctx := context.Background()
	u := &user.User{Name: name, CanonicalName: name}
	if err := e.users.Create(ctx, u); err != nil {
		t.Fatalf("crear usuario %q: %v", name, err)
	}
	phc, err := e.pwd.Hash(plain)
	if err != nil {
		t.Fatalf("hashear password: %v", err)
	}
	if err := e.users.SetCredential(ctx, name, "local-password", phc); err != nil {
		t.Fatalf("guardar credencial: %v", err)
	}
	return u
}

func wantStatus(t *testing.T, res *auth.Response, want auth.Status) {
	t.Helper()
	if res == nil {
		t.Fatalf("respuesta nil, se esperaba %q", want)
	}
	if res.Status != want {
		t.Fatalf("status = %q, se esperaba %q (mensaje: %s)", res.Status, want, res.Message)
	}
}

func wantMessageKey(t *testing.T, res *auth.Response, key string) {
	t.Helper()
	if res.Message == nil || res.Message.Key != key {
		t.Fatalf("mensaje = %v, se esperaba clave %q", res.Message, key)
	}
}

func passwordOnlyConfig() auth.Config {
	return auth.Config{
		PrimaryProviders: []auth.Spec{{Kind: "password"}},
		EnableCreation:   true,
	}
}
