package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authflow/internal/session"
	"github.com/dropDatabas3/authflow/internal/user"
)

// testCredRequest es la credencial sintética de los tests de flujos.
type testCredRequest struct {
	RequestMeta
	Secret string `json:"secret,omitempty"`
}

func (r *testCredRequest) Kind() string     { return "testCred" }
func (r *testCredRequest) UniqueID() string { return "testCred" }

// testLinkRequest simula la credencial externa de un primary de tipo link.
type testLinkRequest struct {
	RequestMeta
	ExternalID string `json:"external_id,omitempty"`
}

func (r *testLinkRequest) Kind() string     { return "testLink" }
func (r *testLinkRequest) UniqueID() string { return "testLink:" + r.ExternalID }

func init() {
	RegisterRequest("testCred", func() Request { return &testCredRequest{} })
	RegisterRequest("testLink", func() Request { return &testLinkRequest{} })
}

// ─── Providers falsos ───

type fakePre struct {
	BasePreProvider
	id       string
	testAuth func(ctx context.Context, reqs []Request) StatusValue
	testLink func(ctx context.Context, u *user.User) StatusValue
}

func (p *fakePre) UniqueID() string { return p.id }

func (p *fakePre) TestForAuthentication(ctx context.Context, reqs []Request) StatusValue {
	if p.testAuth == nil {
		return StatusGood()
	}
	return p.testAuth(ctx, reqs)
}

func (p *fakePre) TestForAccountLink(ctx context.Context, u *user.User) StatusValue {
	if p.testLink == nil {
		return StatusGood()
	}
	return p.testLink(ctx, u)
}

type fakePrimary struct {
	BasePrimaryProvider
	id       string
	creation CreationType

	reqs []Request

	beginAuth   func(ctx context.Context, reqs []Request) (*Response, error)
	contAuth    func(ctx context.Context, reqs []Request) (*Response, error)
	beginCreate func(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
	contCreate  func(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
	beginLink   func(ctx context.Context, u *user.User, reqs []Request) (*Response, error)
	contLink    func(ctx context.Context, u *user.User, reqs []Request) (*Response, error)
	testCreate  func(ctx context.Context, u *user.User, source string) StatusValue

	known map[string]bool
}

func (p *fakePrimary) UniqueID() string { return p.id }

func (p *fakePrimary) AccountCreationType() CreationType { return p.creation }

func (p *fakePrimary) GetAuthenticationRequests(Action, string) []Request { return p.reqs }

func (p *fakePrimary) BeginPrimaryAuthentication(ctx context.Context, reqs []Request) (*Response, error) {
	if p.beginAuth == nil {
		return NewAbstain(), nil
	}
	return p.beginAuth(ctx, reqs)
}

func (p *fakePrimary) ContinuePrimaryAuthentication(ctx context.Context, reqs []Request) (*Response, error) {
	if p.contAuth == nil {
		return p.BasePrimaryProvider.ContinuePrimaryAuthentication(ctx, reqs)
	}
	return p.contAuth(ctx, reqs)
}

func (p *fakePrimary) BeginPrimaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error) {
	if p.beginCreate == nil {
		return NewAbstain(), nil
	}
	return p.beginCreate(ctx, u, creator, reqs)
}

func (p *fakePrimary) ContinuePrimaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error) {
	if p.contCreate == nil {
		return p.BasePrimaryProvider.ContinuePrimaryAccountCreation(ctx, u, creator, reqs)
	}
	return p.contCreate(ctx, u, creator, reqs)
}

func (p *fakePrimary) BeginPrimaryAccountLink(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
	if p.beginLink == nil {
		return NewAbstain(), nil
	}
	return p.beginLink(ctx, u, reqs)
}

func (p *fakePrimary) ContinuePrimaryAccountLink(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
	if p.contLink == nil {
		return p.BasePrimaryProvider.ContinuePrimaryAccountLink(ctx, u, reqs)
	}
	return p.contLink(ctx, u, reqs)
}

func (p *fakePrimary) TestUserForCreation(ctx context.Context, u *user.User, source string, reqs []Request) StatusValue {
	if p.testCreate == nil {
		return StatusGood()
	}
	return p.testCreate(ctx, u, source)
}

func (p *fakePrimary) TestUserExists(ctx context.Context, username string) (bool, error) {
	return p.known[username], nil
}

func (p *fakePrimary) TestUserCanAuthenticate(ctx context.Context, username string) (bool, error) {
	return p.known[username], nil
}

type fakeSecondary struct {
	BaseSecondaryProvider
	id           string
	confirmsLink bool

	beginAuth   func(ctx context.Context, u *user.User, reqs []Request) (*Response, error)
	contAuth    func(ctx context.Context, u *user.User, reqs []Request) (*Response, error)
	beginCreate func(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
	contCreate  func(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
}

func (p *fakeSecondary) UniqueID() string { return p.id }

func (p *fakeSecondary) ConfirmsLinks() bool { return p.confirmsLink }

func (p *fakeSecondary) BeginSecondaryAuthentication(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
	if p.beginAuth == nil {
		return NewAbstain(), nil
	}
	return p.beginAuth(ctx, u, reqs)
}

func (p *fakeSecondary) ContinueSecondaryAuthentication(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
	if p.contAuth == nil {
		return p.BaseSecondaryProvider.ContinueSecondaryAuthentication(ctx, u, reqs)
	}
	return p.contAuth(ctx, u, reqs)
}

func (p *fakeSecondary) BeginSecondaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error) {
	if p.beginCreate == nil {
		return NewAbstain(), nil
	}
	return p.beginCreate(ctx, u, creator, reqs)
}

func (p *fakeSecondary) ContinueSecondaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error) {
	if p.contCreate == nil {
		return p.BaseSecondaryProvider.ContinueSecondaryAccountCreation(ctx, u, creator, reqs)
	}
	return p.contCreate(ctx, u, creator, reqs)
}

// ─── Armado del manager de test ───

type testEnv struct {
	m     *Manager
	sess  session.Session
	users *user.MemStore

	audits []auditEntry
}

type auditEntry struct {
	event  string
	fields map[string]any
}

func defaultTestConfig() Config {
	return Config{
		EnableCreation: true,
		ReauthThresholds: map[string]time.Duration{
			"default": 5 * time.Minute,
		},
		AllowWithoutReauth: map[string]bool{
			"default": false,
		},
	}
}

// newTestEnv arma un Manager sobre backends en memoria con los providers
// dados, ya inicializados y colgados de la registry.
func newTestEnv(t *testing.T, cfg Config, pres []PreProvider, primaries []PrimaryProvider, secondaries []SecondaryProvider) *testEnv {
	t.Helper()

	store := session.NewMemory()
	sess, err := store.New(context.Background())
	if err != nil {
		t.Fatalf("sesión de test: %v", err)
	}
	return newTestEnvWithSession(t, cfg, sess, pres, primaries, secondaries)
}

func newTestEnvWithSession(t *testing.T, cfg Config, sess session.Session, pres []PreProvider, primaries []PrimaryProvider, secondaries []SecondaryProvider) *testEnv {
	t.Helper()

	env := &testEnv{sess: sess, users: user.NewMemStore()}
	m, err := New(cfg, sess, Deps{
		Logger: zap.NewNop(),
		Users:  env.users,
		Audit: func(ctx context.Context, event string, fields map[string]any) {
			env.audits = append(env.audits, auditEntry{event: event, fields: fields})
		},
	})
	if err != nil {
		t.Fatalf("manager de test: %v", err)
	}
	env.m = m

	deps := ProviderDeps{Manager: m, Logger: m.log, Users: env.users, Cache: m.cache}
	m.reg.once.Do(func() {
		m.reg.byID = map[string]Provider{}
		for _, p := range pres {
			mustInit(t, p, deps)
			m.reg.byID[p.UniqueID()] = p
			m.reg.pres = append(m.reg.pres, p)
		}
		for _, p := range primaries {
			mustInit(t, p, deps)
			m.reg.byID[p.UniqueID()] = p
			m.reg.primaries = append(m.reg.primaries, p)
		}
		for _, p := range secondaries {
			mustInit(t, p, deps)
			m.reg.byID[p.UniqueID()] = p
			m.reg.secondaries = append(m.reg.secondaries, p)
		}
	})
	return env
}

func mustInit(t *testing.T, p Provider, deps ProviderDeps) {
	t.Helper()
	if err := p.Init(deps); err != nil {
		t.Fatalf("init provider %q: %v", p.UniqueID(), err)
	}
}

// mustCreateUser inserta un usuario directo en el store.
func (e *testEnv) mustCreateUser(t *testing.T, name string) *user.User {
	t.Helper()
	u := &user.User{Name: name, CanonicalName: name}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("crear usuario %q: %v", name, err)
	}
	return u
}

// hasFlowState indica si hay estado suspendido bajo la clave.
func (e *testEnv) hasFlowState(t *testing.T, key string) bool {
	t.Helper()
	_, err := e.sess.GetSecret(context.Background(), key)
	if errors.Is(err, session.ErrNoValue) {
		return false
	}
	if err != nil {
		t.Fatalf("leer estado %q: %v", key, err)
	}
	return true
}

func wantStatus(t *testing.T, res *Response, want Status) {
	t.Helper()
	if res == nil {
		t.Fatalf("respuesta nil, se esperaba %q", want)
	}
	if res.Status != want {
		t.Fatalf("status = %q, se esperaba %q (mensaje: %s)", res.Status, want, res.Message)
	}
}

func wantMessageKey(t *testing.T, res *Response, key string) {
	t.Helper()
	if res.Message == nil || res.Message.Key != key {
		t.Fatalf("mensaje = %v, se esperaba clave %q", res.Message, key)
	}
}
