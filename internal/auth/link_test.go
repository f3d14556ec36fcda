package auth

import (
	"context"
	"testing"

	"github.com/dropDatabas3/authflow/internal/audit"
	"github.com/dropDatabas3/authflow/internal/user"
)

func linkPrimary(hooks fakePrimary) *fakePrimary {
	p := hooks
	if p.id == "" {
		p.id = "ext"
	}
	p.creation = CreationLink
	return &p
}

func TestBeginAccountLinkUnknownUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{linkPrimary(fakePrimary{})}, nil)

	res, err := env.m.BeginAccountLink(ctx, "ghost", []Request{&testLinkRequest{ExternalID: "e1"}}, "")
	if err != nil {
		t.Fatalf("BeginAccountLink: %v", err)
	}
	wantStatus(t, res, StatusFail)
	wantMessageKey(t, res, msgUserDoesNotExist)
}

func TestBeginAccountLinkPass(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{linkPrimary(fakePrimary{
			beginLink: func(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
				return NewPass(u.Name), nil
			},
		})}, nil)
	env.mustCreateUser(t, "alice")

	res, err := env.m.BeginAccountLink(ctx, "alice", []Request{&testLinkRequest{ExternalID: "e1"}}, "")
	if err != nil {
		t.Fatalf("BeginAccountLink: %v", err)
	}
	wantStatus(t, res, StatusPass)

	var linked bool
	for _, e := range env.audits {
		if e.event == audit.EventAccountLink {
			linked = true
		}
	}
	if !linked {
		t.Fatal("falta el asiento de auditoría de vinculación")
	}
}

func TestAccountLinkUISuspendAndResume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{linkPrimary(fakePrimary{
			beginLink: func(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
				return NewRedirect([]Request{&testLinkRequest{}}, "https://idp.example/authorize", nil), nil
			},
			contLink: func(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
				r, _ := RequestByID(reqs, "testLink:e1")
				if r == nil {
					return NewFail(NewMessage("link-denied")), nil
				}
				return NewPass(u.Name), nil
			},
		})}, nil)
	env.mustCreateUser(t, "alice")

	res, err := env.m.BeginAccountLink(ctx, "alice", []Request{&testLinkRequest{}}, "https://example.test/settings")
	if err != nil {
		t.Fatalf("BeginAccountLink: %v", err)
	}
	wantStatus(t, res, StatusRedirect)
	if res.RedirectTarget != "https://idp.example/authorize" {
		t.Fatalf("redirect = %q", res.RedirectTarget)
	}
	if !env.hasFlowState(t, keyLinkState) {
		t.Fatal("la vinculación suspendida debería persistir estado")
	}

	res, err = env.m.ContinueAccountLink(ctx, []Request{&testLinkRequest{ExternalID: "e1"}})
	if err != nil {
		t.Fatalf("ContinueAccountLink: %v", err)
	}
	wantStatus(t, res, StatusPass)
	if env.hasFlowState(t, keyLinkState) {
		t.Fatal("el estado debería limpiarse al terminar")
	}
}

func TestContinueAccountLinkWithoutFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{linkPrimary(fakePrimary{})}, nil)

	res, err := env.m.ContinueAccountLink(ctx, []Request{&testLinkRequest{}})
	if err != nil {
		t.Fatalf("ContinueAccountLink: %v", err)
	}
	wantStatus(t, res, StatusFail)
	wantMessageKey(t, res, msgLinkNotInProgress)
}

func TestBeginAccountLinkWithoutLinkPrimary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{creationPrimary(fakePrimary{})}, nil)
	env.mustCreateUser(t, "alice")

	// Sin primaries de tipo link, el flujo ni arranca.
	if _, err := env.m.BeginAccountLink(ctx, "alice", []Request{&testLinkRequest{}}, ""); err == nil {
		t.Fatal("sin primaries de link debería fallar con error")
	}
}

func TestBeginAccountLinkPreVeto(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(),
		[]PreProvider{&fakePre{
			id: "pre1",
			testLink: func(ctx context.Context, u *user.User) StatusValue {
				return StatusFatal("link-blocked")
			},
		}},
		[]PrimaryProvider{linkPrimary(fakePrimary{
			beginLink: func(ctx context.Context, u *user.User, reqs []Request) (*Response, error) {
				t.Fatal("el primary no debería llegar a correr")
				return nil, nil
			},
		})}, nil)
	env.mustCreateUser(t, "alice")

	res, err := env.m.BeginAccountLink(ctx, "alice", []Request{&testLinkRequest{}}, "")
	if err != nil {
		t.Fatalf("BeginAccountLink: %v", err)
	}
	wantStatus(t, res, StatusFail)
	wantMessageKey(t, res, "link-blocked")
}

func TestBeginAccountLinkNoPrimaryAccepts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultTestConfig(), nil,
		[]PrimaryProvider{linkPrimary(fakePrimary{})}, nil)
	env.mustCreateUser(t, "alice")

	res, err := env.m.BeginAccountLink(ctx, "alice", []Request{&testLinkRequest{}}, "")
	if err != nil {
		t.Fatalf("BeginAccountLink: %v", err)
	}
	wantStatus(t, res, StatusFail)
	wantMessageKey(t, res, msgLinkNoPrimary)
}
