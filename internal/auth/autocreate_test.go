package auth

import (
	"context"
	"testing"

	"github.com/dropDatabas3/authflow/internal/user"
)

func TestAutoCreateUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	u, st, err := env.m.AutoCreateUser(ctx, "Nomad Wanderer", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if !st.Good {
		t.Fatalf("status = %+v", st)
	}
	if u.CanonicalName != "nomad wanderer" {
		t.Fatalf("canonical = %q", u.CanonicalName)
	}
	if !u.Registered() {
		t.Fatal("la cuenta debería tener id asignado")
	}
	if env.sess.User().IsAnonymous() != true {
		t.Fatal("login=false no debería tocar la sesión")
	}
}

func TestAutoCreateUserExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)
	env.mustCreateUser(t, "alice")

	u, st, err := env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if !st.Good {
		t.Fatalf("status = %+v", st)
	}
	if len(st.Warnings) != 1 || st.Warnings[0].Key != msgUserExists {
		t.Fatalf("se esperaba el warning %q, hay %+v", msgUserExists, st.Warnings)
	}
	if u.Name != "alice" {
		t.Fatalf("user = %q", u.Name)
	}
}

func TestAutoCreateUserUnknownSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	if _, _, err := env.m.AutoCreateUser(ctx, "alice", "source:invented", false); err == nil {
		t.Fatal("un origen desconocido debería ser error fatal")
	}
}

func TestAutoCreateUserPrimarySource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "ext-idp"}}, nil)

	// El id de un primary configurado es un origen válido.
	_, st, err := env.m.AutoCreateUser(ctx, "alice", "ext-idp", false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if !st.Good {
		t.Fatalf("status = %+v", st)
	}
}

func TestAutoCreateUserReadOnly(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTestConfig()
	cfg.ReadOnly = true
	env := newTestEnv(t, cfg, nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	_, st, err := env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if st.Good {
		t.Fatal("read-only debería denegar")
	}
	if st.Message == nil || st.Message.Key != msgReadOnly {
		t.Fatalf("mensaje = %v", st.Message)
	}
}

func TestAutoCreateUserDisabledAndDenylisted(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTestConfig()
	cfg.EnableCreation = false
	env := newTestEnv(t, cfg, nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	_, st, err := env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if st.Good {
		t.Fatal("sin creación habilitada debería denegar")
	}
	if st.Message == nil || st.Message.Key != msgAutocreateNoPerm {
		t.Fatalf("mensaje = %v", st.Message)
	}

	// La denegación queda en la sesión: el siguiente intento ni evalúa.
	env.m.cfg.EnableCreation = true
	_, st, err = env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser (2do intento): %v", err)
	}
	if st.Good {
		t.Fatal("la denylist de sesión debería seguir denegando")
	}
	if st.Message == nil || st.Message.Key != msgAutocreateNoPerm {
		t.Fatalf("mensaje = %v", st.Message)
	}
}

func TestAutoCreateUserMaintenanceBypassesPermission(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTestConfig()
	cfg.EnableCreation = false
	env := newTestEnv(t, cfg, nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	_, st, err := env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceMaintenance, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if !st.Good {
		t.Fatalf("mantenimiento debería pasar: %+v", st)
	}
}

func TestAutoCreateUserProviderVeto(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{
			id: "p1",
			testCreate: func(ctx context.Context, u *user.User, source string) StatusValue {
				return StatusFatal("name-reserved")
			},
		}}, nil)

	_, st, err := env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if st.Good {
		t.Fatal("el veto del provider debería denegar")
	}
	if st.Message == nil || st.Message.Key != "name-reserved" {
		t.Fatalf("mensaje = %v", st.Message)
	}
	if _, err := env.users.GetByName(ctx, "alice"); err == nil {
		t.Fatal("el usuario no debería haberse insertado")
	}
}

func TestAutoCreateUserBackoffAfterStorageFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	// Un backoff vigente suprime el intento antes de tocar el storage.
	if err := env.m.cache.Set(ctx, autoCreateBackoffKey("alice"), "1", env.m.cfg.AutocreateBackoff); err != nil {
		t.Fatalf("sembrar backoff: %v", err)
	}

	_, st, err := env.m.AutoCreateUser(ctx, "alice", AutoCreateSourceSession, false)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if st.Good {
		t.Fatal("el backoff debería denegar")
	}
	if st.Message == nil || st.Message.Key != msgAutocreateException {
		t.Fatalf("mensaje = %v", st.Message)
	}
}

func TestAutoCreateUserWithLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	u, st, err := env.m.AutoCreateUser(ctx, "drifter", AutoCreateSourceTemp, true)
	if err != nil {
		t.Fatalf("AutoCreateUser: %v", err)
	}
	if !st.Good {
		t.Fatalf("status = %+v", st)
	}
	if got := env.sess.User().ID; got != u.ID {
		t.Fatalf("principal = %q, se esperaba %q", got, u.ID)
	}
	// Las cuentas temporales quedan con sesión recordada.
	if !env.sess.Remembered() {
		t.Fatal("source:temp debería marcar la sesión como recordada")
	}
}
