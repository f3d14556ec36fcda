package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/authflow/internal/session"
)

// loginAs completa un login con un primary que acepta directo, para dejar
// la sesión con principal y marcas de último login.
func loginAs(t *testing.T, env *testEnv, name string) {
	t.Helper()
	res, err := env.m.BeginAuthentication(context.Background(), []Request{&testCredRequest{}}, "")
	if err != nil {
		t.Fatalf("login de %q: %v", name, err)
	}
	wantStatus(t, res, StatusPass)
}

func passPrimary(name string) *fakePrimary {
	return &fakePrimary{
		id: "p1",
		beginAuth: func(ctx context.Context, reqs []Request) (*Response, error) {
			return NewPass(name), nil
		},
	}
}

func TestSecurityStatusAnonymous(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
	if err != nil {
		t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
	}
	if st != SecurityReauth {
		t.Fatalf("status = %q, se esperaba reauth", st)
	}
}

func TestSecurityStatusAnonymousStaticSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithSession(t, defaultTestConfig(), session.Static(session.Principal{}), nil,
		[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)

	st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
	if err != nil {
		t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
	}
	if st != SecurityFail {
		t.Fatalf("status = %q, se esperaba fail", st)
	}
}

func TestSecurityStatusThreshold(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	newEnv := func(t *testing.T) *testEnv {
		env := newTestEnv(t, defaultTestConfig(), nil,
			[]PrimaryProvider{passPrimary("alice")}, nil)
		env.mustCreateUser(t, "alice")
		env.m.now = func() time.Time { return base }
		loginAs(t, env, "alice")
		return env
	}

	t.Run("login reciente", func(t *testing.T) {
		env := newEnv(t)
		env.m.now = func() time.Time { return base.Add(4 * time.Minute) }
		st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
		if err != nil {
			t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
		}
		if st != SecurityOK {
			t.Fatalf("status = %q, se esperaba ok", st)
		}
	})

	t.Run("justo en el umbral exige reauth", func(t *testing.T) {
		env := newEnv(t)
		env.m.now = func() time.Time { return base.Add(5 * time.Minute) }
		st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
		if err != nil {
			t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
		}
		if st != SecurityReauth {
			t.Fatalf("status = %q, se esperaba reauth", st)
		}
	})

	t.Run("umbral negativo nunca exige reauth", func(t *testing.T) {
		env := newEnv(t)
		env.m.cfg.ReauthThresholds["change-credentials"] = -1
		env.m.now = func() time.Time { return base.Add(1000 * time.Hour) }
		st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
		if err != nil {
			t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
		}
		if st != SecurityOK {
			t.Fatalf("status = %q, se esperaba ok", st)
		}
	})
}

func TestSecurityStatusWithoutLastAuthMarks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{passPrimary("alice")}, nil)
	u := env.mustCreateUser(t, "alice")

	// Principal fijado por fuera del flujo: sin marcas de último login.
	if err := env.sess.SetUser(ctx, session.Principal{ID: u.ID, Name: u.Name}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
	if err != nil {
		t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
	}
	if st != SecurityReauth {
		t.Fatalf("status = %q, se esperaba reauth", st)
	}
}

func TestSecurityStatusStaticSessionUsesAllowTable(t *testing.T) {
	ctx := context.Background()
	principal := session.Principal{ID: "u1", Name: "apiuser"}

	t.Run("operación no permitida", func(t *testing.T) {
		env := newTestEnvWithSession(t, defaultTestConfig(), session.Static(principal), nil,
			[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)
		st, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials")
		if err != nil {
			t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
		}
		if st != SecurityFail {
			t.Fatalf("status = %q, se esperaba fail", st)
		}
	})

	t.Run("operación permitida explícitamente", func(t *testing.T) {
		cfg := defaultTestConfig()
		cfg.AllowWithoutReauth["view-private-data"] = true
		env := newTestEnvWithSession(t, cfg, session.Static(principal), nil,
			[]PrimaryProvider{&fakePrimary{id: "p1"}}, nil)
		st, err := env.m.SecuritySensitiveOperationStatus(ctx, "view-private-data")
		if err != nil {
			t.Fatalf("SecuritySensitiveOperationStatus: %v", err)
		}
		if st != SecurityOK {
			t.Fatalf("status = %q, se esperaba ok", st)
		}
	})
}

func TestSecurityStatusMissingDefaultIsFatal(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTestConfig()
	cfg.ReauthThresholds = map[string]time.Duration{"otra": time.Minute}
	env := newTestEnv(t, cfg, nil,
		[]PrimaryProvider{passPrimary("alice")}, nil)
	env.mustCreateUser(t, "alice")
	loginAs(t, env, "alice")

	if _, err := env.m.SecuritySensitiveOperationStatus(ctx, "change-credentials"); err == nil {
		t.Fatal("sin clave default debería ser error de configuración")
	}
}
