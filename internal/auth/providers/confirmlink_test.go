package providers

import (
	"context"
	"testing"

	"github.com/dropDatabas3/authflow/internal/auth"
)

// extLinkRequest simula la credencial que devuelve un identity provider
// externo: identifica una cuenta remota, no una local.
const kindExtLink = "extLink"

type extLinkRequest struct {
	auth.RequestMeta
	Account string `json:"account"`
}

func (r *extLinkRequest) Kind() string     { return kindExtLink }
func (r *extLinkRequest) UniqueID() string { return kindExtLink + ":" + r.Account }

// extLinkProvider es un primary de tipo link: autentica cuentas remotas y
// recuerda en memoria cuáles quedaron vinculadas a qué usuario local.
type extLinkProvider struct {
	auth.BasePrimaryProvider

	linked map[string]string
}

func init() {
	auth.RegisterRequest(kindExtLink, func() auth.Request { return &extLinkRequest{} })
	auth.RegisterProviderFactory("extlink", func() auth.Provider { return &extLinkProvider{} })
}

func (p *extLinkProvider) UniqueID() string { return "extlink" }

func (p *extLinkProvider) Init(deps auth.ProviderDeps) error {
	if err := p.BasePrimaryProvider.Init(deps); err != nil {
		return err
	}
	p.linked = map[string]string{}
	return nil
}

func (p *extLinkProvider) AccountCreationType() auth.CreationType { return auth.CreationLink }

func (p *extLinkProvider) BeginPrimaryAuthentication(ctx context.Context, reqs []auth.Request) (*auth.Response, error) {
	var lr *extLinkRequest
	for _, r := range reqs {
		if cand, ok := r.(*extLinkRequest); ok {
			lr = cand
			break
		}
	}
	if lr == nil {
		return auth.NewAbstain(), nil
	}
	if name, ok := p.linked[lr.Account]; ok {
		return auth.NewPass(name), nil
	}
	// Cuenta remota válida pero sin usuario local: el manager decide si
	// reinicia hacia una vinculación.
	res := auth.NewPass("")
	res.LinkRequest = lr
	return res, nil
}

func (p *extLinkProvider) TestUserExists(ctx context.Context, username string) (bool, error) {
	for _, name := range p.linked {
		if name == username {
			return true, nil
		}
	}
	return false, nil
}

func (p *extLinkProvider) TestUserCanAuthenticate(ctx context.Context, username string) (bool, error) {
	return p.TestUserExists(ctx, username)
}

func (p *extLinkProvider) AllowsAuthenticationDataChange(req auth.Request, checkData bool) auth.StatusValue {
	if req.Kind() != kindExtLink {
		return auth.StatusGoodValue(auth.ValueIgnored)
	}
	return auth.StatusGood()
}

func (p *extLinkProvider) ChangeAuthenticationData(ctx context.Context, req auth.Request) error {
	lr, ok := req.(*extLinkRequest)
	if !ok {
		return nil
	}
	if lr.Action == auth.ActionRemove {
		delete(p.linked, lr.Account)
		return nil
	}
	p.linked[lr.Account] = lr.Username
	return nil
}

func linkableConfig() auth.Config {
	return auth.Config{
		PrimaryProviders: []auth.Spec{
			{Kind: "extlink", Sort: 10},
			{Kind: "password", Sort: 20},
		},
		SecondaryProviders: []auth.Spec{{Kind: "confirmlink"}},
		EnableCreation:     true,
	}
}

// TestConfirmLinkJourney recorre el ciclo completo: login externo sin
// usuario local, reinicio hacia vinculación, login local arrastrando el
// candidato, confirmación, y login externo directo ya vinculado.
func TestConfirmLinkJourney(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv(t, linkableConfig())
	env.seedPasswordUser(t, "alice", "hunter2hunter2")

	// Paso 1: la credencial externa no tiene usuario local.
	res, err := env.m.BeginAuthentication(ctx, []auth.Request{
		&extLinkRequest{Account: "e1"},
	}, "")
	if err != nil {
		t.Fatalf("login externo: %v", err)
	}
	wantStatus(t, res, auth.StatusRestart)
	wantMessageKey(t, res, "authmanager-authn-no-local-user-link")
	cfl, ok := res.CreateRequest.(*auth.CreateFromLoginRequest)
	if !ok {
		t.Fatalf("CreateRequest = %T, se esperaba *CreateFromLoginRequest", res.CreateRequest)
	}
	if got, err := auth.RequestByID(cfl.MaybeLink, "extLink:e1"); err != nil || got == nil {
		t.Fatalf("el candidato a vincular no quedó en MaybeLink: %v", err)
	}

	// Paso 2: login local arrastrando el candidato. El secondary debe
	// suspender para preguntar.
	res, err = env.m.BeginAuthentication(ctx, []auth.Request{
		&PasswordRequest{RequestMeta: auth.RequestMeta{Username: "alice"}, Password: "hunter2hunter2"},
		cfl,
	}, "")
	if err != nil {
		t.Fatalf("login local: %v", err)
	}
	wantStatus(t, res, auth.StatusUI)
	confirm, err := auth.RequestByID(res.NeededRequests, KindConfirmLink)
	if err != nil || confirm == nil {
		t.Fatalf("no se ofreció ConfirmLinkRequest: %v", err)
	}
	offered := confirm.(*ConfirmLinkRequest).LinkIDs
	if len(offered) != 1 || offered[0] != "extLink:e1" {
		t.Fatalf("LinkIDs = %v", offered)
	}

	// Paso 3: confirmar el vínculo y cerrar el login.
	res, err = env.m.ContinueAuthentication(ctx, []auth.Request{
		&ConfirmLinkRequest{ConfirmedIDs: []string{"extLink:e1"}},
	})
	if err != nil {
		t.Fatalf("confirmar vínculo: %v", err)
	}
	wantStatus(t, res, auth.StatusPass)
	if got := env.sess.User().Name; got != "alice" {
		t.Fatalf("principal = %q", got)
	}

	// Paso 4: la credencial externa ahora entra directo.
	res, err = env.m.BeginAuthentication(ctx, []auth.Request{
		&extLinkRequest{Account: "e1"},
	}, "")
	if err != nil {
		t.Fatalf("login externo vinculado: %v", err)
	}
	wantStatus(t, res, auth.StatusPass)
	if res.Username != "alice" {
		t.Fatalf("username = %q", res.Username)
	}
}

// TestConfirmLinkDeclined: rechazar la oferta no tumba el login, pero
// tampoco vincula nada.
func TestConfirmLinkDeclined(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv(t, linkableConfig())
	env.seedPasswordUser(t, "alice", "hunter2hunter2")

	res, err := env.m.BeginAuthentication(ctx, []auth.Request{
		&extLinkRequest{Account: "e9"},
	}, "")
	if err != nil {
		t.Fatalf("login externo: %v", err)
	}
	wantStatus(t, res, auth.StatusRestart)
	cfl := res.CreateRequest.(*auth.CreateFromLoginRequest)

	res, err = env.m.BeginAuthentication(ctx, []auth.Request{
		&PasswordRequest{RequestMeta: auth.RequestMeta{Username: "alice"}, Password: "hunter2hunter2"},
		cfl,
	}, "")
	if err != nil {
		t.Fatalf("login local: %v", err)
	}
	wantStatus(t, res, auth.StatusUI)

	res, err = env.m.ContinueAuthentication(ctx, []auth.Request{
		&ConfirmLinkRequest{ConfirmedIDs: nil},
	})
	if err != nil {
		t.Fatalf("rechazar vínculo: %v", err)
	}
	wantStatus(t, res, auth.StatusPass)

	// La credencial externa sigue sin usuario local.
	res, err = env.m.BeginAuthentication(ctx, []auth.Request{
		&extLinkRequest{Account: "e9"},
	}, "")
	if err != nil {
		t.Fatalf("segundo login externo: %v", err)
	}
	wantStatus(t, res, auth.StatusRestart)
}

// TestConfirmLinkAbstainsWithoutCandidates: sin maybeLink acumulado el
// secondary no molesta.
func TestConfirmLinkAbstainsWithoutCandidates(t *testing.T) {
	ctx := context.Background()
	env := newManagerEnv(t, linkableConfig())
	env.seedPasswordUser(t, "alice", "hunter2hunter2")

	res, err := env.m.BeginAuthentication(ctx, []auth.Request{
		&PasswordRequest{RequestMeta: auth.RequestMeta{Username: "alice"}, Password: "hunter2hunter2"},
	}, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	wantStatus(t, res, auth.StatusPass)
}
