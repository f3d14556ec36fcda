package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authflow/internal/cache"
	"github.com/dropDatabas3/authflow/internal/security/password"
	"github.com/dropDatabas3/authflow/internal/user"
)

// Marcas internas en StatusValue.Value que el manager interpreta.
const (
	// ValueIgnored: el provider no reconoce el request del cambio.
	ValueIgnored = "ignored"
	// ValueThrottled: reset de password frenado por rate limit. El
	// manager lo rebaja a fallo no fatal para no filtrar existencia.
	ValueThrottled = "throttled-mailpassword"
)

// ProviderDeps son las dependencias que el manager inyecta a cada
// provider en Init.
type ProviderDeps struct {
	Manager   *Manager
	Logger    *zap.Logger
	Users     user.Store
	Passwords *password.Factory
	Cache     cache.Client
	// Settings crudos de la spec del provider en la config.
	Settings map[string]any
}

// Provider es el contrato mínimo de cualquier provider, del tier que sea.
// BaseProvider da defaults no-op para todo menos UniqueID.
type Provider interface {
	// UniqueID identifica al provider. Debe ser globalmente único entre
	// todos los providers configurados.
	UniqueID() string
	// Init recibe las dependencias antes de cualquier otro uso.
	Init(deps ProviderDeps) error
	// GetAuthenticationRequests enumera los requests que este provider
	// necesita o acepta para la acción dada.
	GetAuthenticationRequests(action Action, username string) []Request
	// TestUserForCreation puede vetar una creación inminente.
	// autocreateSource es "" para creaciones explícitas.
	TestUserForCreation(ctx context.Context, u *user.User, autocreateSource string, reqs []Request) StatusValue
	// TestForAccountCreation es el pre-test del flujo de creación; corre
	// exactamente una vez por flujo en los tres tiers.
	TestForAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) StatusValue
	// AllowsAuthenticationDataChange opina sobre un cambio de credencial.
	// Con checkData=false solo valida el tipo, no el contenido.
	AllowsAuthenticationDataChange(req Request, checkData bool) StatusValue
	// ChangeAuthenticationData aplica un cambio ya aprobado.
	ChangeAuthenticationData(ctx context.Context, req Request) error
	// RevokeAccessForUser invalida toda credencial del usuario.
	RevokeAccessForUser(ctx context.Context, username string) error
	// AllowsPropertyChange opina sobre cambios de propiedades de cuenta
	// ajenas a la autenticación.
	AllowsPropertyChange(property string) bool
	// AutoCreatedAccount notifica una cuenta autocreada.
	AutoCreatedAccount(ctx context.Context, u *user.User, source string) error

	// Hooks de cierre, informativos.
	PostAuthentication(ctx context.Context, u *user.User, resp *Response)
	PostAccountCreation(ctx context.Context, u, creator *user.User, resp *Response)
	PostAccountLink(ctx context.Context, u *user.User, resp *Response)
}

// PreProvider corre antes de que empiece cada flujo y puede abortarlo en
// seco. No aporta credenciales.
type PreProvider interface {
	Provider
	TestForAuthentication(ctx context.Context, reqs []Request) StatusValue
	TestForAccountLink(ctx context.Context, u *user.User) StatusValue
}

// PrimaryProvider establece la identidad. En un flujo gana exactamente uno.
type PrimaryProvider interface {
	Provider
	// AccountCreationType declara cómo participa en creación de cuentas.
	AccountCreationType() CreationType

	BeginPrimaryAuthentication(ctx context.Context, reqs []Request) (*Response, error)
	ContinuePrimaryAuthentication(ctx context.Context, reqs []Request) (*Response, error)

	BeginPrimaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
	ContinuePrimaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
	// FinishAccountCreation corre tras insertar la cuenta que este primary
	// creó. Devuelve el subtipo para el asiento de auditoría ("" = normal).
	FinishAccountCreation(ctx context.Context, u, creator *user.User, resp *Response) (string, error)

	BeginPrimaryAccountLink(ctx context.Context, u *user.User, reqs []Request) (*Response, error)
	ContinuePrimaryAccountLink(ctx context.Context, u *user.User, reqs []Request) (*Response, error)

	// TestUserExists dice si el provider conoce credenciales para username.
	TestUserExists(ctx context.Context, username string) (bool, error)
	// TestUserCanAuthenticate dice si además podría autenticarlo hoy.
	TestUserCanAuthenticate(ctx context.Context, username string) (bool, error)
	// NormalizeUsername mapea un username al canónico del provider, o
	// ("", false) si no le pertenece.
	NormalizeUsername(username string) (string, bool)
}

// SecondaryProvider corre después del primary ganador: segundos factores,
// chequeos de política.
type SecondaryProvider interface {
	Provider
	BeginSecondaryAuthentication(ctx context.Context, u *user.User, reqs []Request) (*Response, error)
	ContinueSecondaryAuthentication(ctx context.Context, u *user.User, reqs []Request) (*Response, error)

	BeginSecondaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
	ContinueSecondaryAccountCreation(ctx context.Context, u, creator *user.User, reqs []Request) (*Response, error)
}

// ─── Bases embebibles ───

// BaseProvider implementa el contrato base con no-ops. Los providers
// concretos lo embeben y sobreescriben lo que les importa.
type BaseProvider struct {
	Deps ProviderDeps
}

func (p *BaseProvider) Init(deps ProviderDeps) error { p.Deps = deps; return nil }

func (p *BaseProvider) GetAuthenticationRequests(Action, string) []Request { return nil }

func (p *BaseProvider) TestUserForCreation(context.Context, *user.User, string, []Request) StatusValue {
	return StatusGood()
}

func (p *BaseProvider) TestForAccountCreation(context.Context, *user.User, *user.User, []Request) StatusValue {
	return StatusGood()
}

func (p *BaseProvider) AllowsAuthenticationDataChange(Request, bool) StatusValue {
	return StatusGoodValue(ValueIgnored)
}

func (p *BaseProvider) ChangeAuthenticationData(context.Context, Request) error { return nil }

func (p *BaseProvider) RevokeAccessForUser(context.Context, string) error { return nil }

func (p *BaseProvider) AllowsPropertyChange(string) bool { return true }

func (p *BaseProvider) AutoCreatedAccount(context.Context, *user.User, string) error { return nil }

func (p *BaseProvider) PostAuthentication(context.Context, *user.User, *Response) {}

func (p *BaseProvider) PostAccountCreation(context.Context, *user.User, *user.User, *Response) {}

func (p *BaseProvider) PostAccountLink(context.Context, *user.User, *Response) {}

// BasePreProvider agrega defaults permisivos a los tests de pre-flujo.
type BasePreProvider struct {
	BaseProvider
}

func (p *BasePreProvider) TestForAuthentication(context.Context, []Request) StatusValue {
	return StatusGood()
}

func (p *BasePreProvider) TestForAccountLink(context.Context, *user.User) StatusValue {
	return StatusGood()
}

// BasePrimaryProvider da defaults para las operaciones que un primary
// típico no soporta: los Continue* no deberían alcanzarse si el Begin*
// nunca suspendió el flujo.
type BasePrimaryProvider struct {
	BaseProvider
}

func (p *BasePrimaryProvider) ContinuePrimaryAuthentication(context.Context, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: ContinuePrimaryAuthentication no soportado")
}

func (p *BasePrimaryProvider) BeginPrimaryAccountCreation(context.Context, *user.User, *user.User, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: BeginPrimaryAccountCreation no soportado")
}

func (p *BasePrimaryProvider) ContinuePrimaryAccountCreation(context.Context, *user.User, *user.User, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: ContinuePrimaryAccountCreation no soportado")
}

func (p *BasePrimaryProvider) FinishAccountCreation(context.Context, *user.User, *user.User, *Response) (string, error) {
	return "", nil
}

func (p *BasePrimaryProvider) BeginPrimaryAccountLink(context.Context, *user.User, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: BeginPrimaryAccountLink no soportado")
}

func (p *BasePrimaryProvider) ContinuePrimaryAccountLink(context.Context, *user.User, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: ContinuePrimaryAccountLink no soportado")
}

// NormalizeUsername por defecto aplica la canonicalización local.
func (p *BasePrimaryProvider) NormalizeUsername(username string) (string, bool) {
	return user.Canonicalize(username)
}

// BaseSecondaryProvider da defaults para secondaries que solo actúan en
// login: en creación se abstienen.
type BaseSecondaryProvider struct {
	BaseProvider
}

func (p *BaseSecondaryProvider) ContinueSecondaryAuthentication(context.Context, *user.User, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: ContinueSecondaryAuthentication no soportado")
}

func (p *BaseSecondaryProvider) BeginSecondaryAccountCreation(context.Context, *user.User, *user.User, []Request) (*Response, error) {
	return NewAbstain(), nil
}

func (p *BaseSecondaryProvider) ContinueSecondaryAccountCreation(context.Context, *user.User, *user.User, []Request) (*Response, error) {
	return nil, fmt.Errorf("auth: ContinueSecondaryAccountCreation no soportado")
}
