// Package providers trae los providers de autenticación incluidos: el
// primary de password local, el pre-provider de throttling y el secondary
// de confirmación de vínculos. Importarlo registra sus fábricas; la config
// decide cuáles se instancian y en qué orden.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/user"
)

func init() {
	auth.RegisterRequest(KindPassword, func() auth.Request { return &PasswordRequest{} })
	auth.RegisterProviderFactory("password", func() auth.Provider { return &PasswordProvider{} })
}

// KindPassword identifica al request de credenciales de password.
const KindPassword = "password"

// PasswordRequest lleva la credencial local: en login solo Password; en
// create/change además Retype para confirmar la tipeada.
type PasswordRequest struct {
	auth.RequestMeta
	// Provider es el id del primary que ofreció este request. Lo estampa
	// GetAuthenticationRequests para que dos providers de password
	// configurados no colisionen al mergear por UniqueID.
	Provider string `json:"provider,omitempty"`
	Password string `json:"password"`
	Retype   string `json:"retype,omitempty"`
}

func (r *PasswordRequest) Kind() string { return KindPassword }

func (r *PasswordRequest) UniqueID() string {
	if r.Provider == "" {
		return KindPassword
	}
	return KindPassword + ":" + r.Provider
}

const (
	msgWrongPassword    = "wrongpassword"
	msgBadRetype        = "badretype"
	msgPasswordTooShort = "passwordtooshort"
)

// PasswordProvider autentica contra el hash local guardado en el store de
// usuarios. Crea cuentas con credencial propia.
type PasswordProvider struct {
	auth.BasePrimaryProvider

	id        string
	minLength int
}

func (p *PasswordProvider) UniqueID() string { return p.id }

func (p *PasswordProvider) Init(deps auth.ProviderDeps) error {
	if err := p.BasePrimaryProvider.Init(deps); err != nil {
		return err
	}
	p.id = settingString(deps.Settings, "id", "local-password")
	p.minLength = settingInt(deps.Settings, "min_length", 8)
	if deps.Users == nil || deps.Passwords == nil {
		return fmt.Errorf("providers: %s necesita store de usuarios y factory de passwords", p.id)
	}
	return nil
}

func (p *PasswordProvider) AccountCreationType() auth.CreationType { return auth.CreationCreate }

func (p *PasswordProvider) GetAuthenticationRequests(action auth.Action, username string) []auth.Request {
	switch action {
	case auth.ActionLogin, auth.ActionCreate, auth.ActionChange:
		return []auth.Request{&PasswordRequest{RequestMeta: auth.RequestMeta{Required: auth.Required}, Provider: p.id}}
	case auth.ActionRemove:
		return []auth.Request{&PasswordRequest{Provider: p.id}}
	default:
		return nil
	}
}

// ─── Login ───

func (p *PasswordProvider) BeginPrimaryAuthentication(ctx context.Context, reqs []auth.Request) (*auth.Response, error) {
	req, ok := passwordRequest(reqs)
	if !ok || req.Username == "" || req.Password == "" {
		return auth.NewAbstain(), nil
	}
	canon, okName := user.Canonicalize(req.Username)
	if !okName {
		return auth.NewFail(auth.NewMessage(msgWrongPassword)), nil
	}

	phc, err := p.Deps.Users.GetCredential(ctx, canon, p.id)
	if errors.Is(err, user.ErrNotFound) {
		// Mismo mensaje que un password incorrecto: no filtrar existencia.
		return auth.NewFail(auth.NewMessage(msgWrongPassword)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("providers: %s: leer credencial: %w", p.id, err)
	}
	if !p.Deps.Passwords.Verify(req.Password, phc) {
		p.Deps.Logger.Debug("password incorrecto", logger.Provider(p.id), logger.UserName(canon))
		return auth.NewFail(auth.NewMessage(msgWrongPassword)), nil
	}

	if p.Deps.Passwords.NeedsRehash(phc) {
		if fresh, err := p.Deps.Passwords.Hash(req.Password); err == nil {
			if err := p.Deps.Users.SetCredential(ctx, canon, p.id, fresh); err != nil {
				p.Deps.Logger.Warn("no se pudo re-hashear el password", logger.Provider(p.id), logger.Err(err))
			}
		}
	}
	return auth.NewPass(req.Username), nil
}

// ─── Creación ───

func (p *PasswordProvider) TestForAccountCreation(ctx context.Context, u, creator *user.User, reqs []auth.Request) auth.StatusValue {
	req, ok := passwordRequest(reqs)
	if !ok {
		return auth.StatusGood()
	}
	return p.checkNewPassword(req)
}

func (p *PasswordProvider) BeginPrimaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []auth.Request) (*auth.Response, error) {
	req, ok := passwordRequest(reqs)
	if !ok || req.Password == "" {
		return auth.NewAbstain(), nil
	}
	if st := p.checkNewPassword(req); !st.Good {
		return auth.NewFail(st.Message), nil
	}
	ret := auth.NewPass(u.Name)
	// El request viaja colgado de la respuesta hasta FinishAccountCreation:
	// el hash recién se guarda cuando la fila del usuario ya existe.
	ret.CreateRequest = req
	return ret, nil
}

// FinishAccountCreation guarda el hash una vez insertada la cuenta.
func (p *PasswordProvider) FinishAccountCreation(ctx context.Context, u, creator *user.User, resp *auth.Response) (string, error) {
	req, ok := resp.CreateRequest.(*PasswordRequest)
	if !ok {
		return "", nil
	}
	phc, err := p.Deps.Passwords.Hash(req.Password)
	if err != nil {
		return "", fmt.Errorf("providers: %s: hashear password: %w", p.id, err)
	}
	if err := p.Deps.Users.SetCredential(ctx, u.CanonicalName, p.id, phc); err != nil {
		return "", fmt.Errorf("providers: %s: guardar credencial: %w", p.id, err)
	}
	return "", nil
}

// ─── Existencia y cambios ───

func (p *PasswordProvider) TestUserExists(ctx context.Context, username string) (bool, error) {
	canon, ok := user.Canonicalize(username)
	if !ok {
		return false, nil
	}
	_, err := p.Deps.Users.GetCredential(ctx, canon, p.id)
	if errors.Is(err, user.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PasswordProvider) TestUserCanAuthenticate(ctx context.Context, username string) (bool, error) {
	return p.TestUserExists(ctx, username)
}

func (p *PasswordProvider) AllowsAuthenticationDataChange(req auth.Request, checkData bool) auth.StatusValue {
	pr, ok := req.(*PasswordRequest)
	if !ok {
		return auth.StatusGoodValue(auth.ValueIgnored)
	}
	if !checkData || pr.Action == auth.ActionRemove {
		return auth.StatusGood()
	}
	return p.checkNewPassword(pr)
}

func (p *PasswordProvider) ChangeAuthenticationData(ctx context.Context, req auth.Request) error {
	pr, ok := req.(*PasswordRequest)
	if !ok {
		return nil
	}
	canon, okName := user.Canonicalize(pr.Username)
	if !okName {
		return fmt.Errorf("providers: %s: username inválido %q", p.id, pr.Username)
	}
	if pr.Action == auth.ActionRemove {
		return p.Deps.Users.DeleteCredential(ctx, canon, p.id)
	}
	phc, err := p.Deps.Passwords.Hash(pr.Password)
	if err != nil {
		return fmt.Errorf("providers: %s: hashear password: %w", p.id, err)
	}
	return p.Deps.Users.SetCredential(ctx, canon, p.id, phc)
}

func (p *PasswordProvider) RevokeAccessForUser(ctx context.Context, username string) error {
	canon, ok := user.Canonicalize(username)
	if !ok {
		return nil
	}
	return p.Deps.Users.DeleteCredential(ctx, canon, p.id)
}

// ─── Helpers ───

func (p *PasswordProvider) checkNewPassword(req *PasswordRequest) auth.StatusValue {
	if req.Retype != "" && req.Retype != req.Password {
		return auth.StatusFatal(msgBadRetype)
	}
	if len(req.Password) < p.minLength {
		return auth.StatusFatal(msgPasswordTooShort, fmt.Sprint(p.minLength))
	}
	return auth.StatusGood()
}

func passwordRequest(reqs []auth.Request) (*PasswordRequest, bool) {
	for _, r := range reqs {
		if pr, ok := r.(*PasswordRequest); ok {
			return pr, true
		}
	}
	return nil, false
}
