package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authflow/internal/audit"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/user"
)

// credentialProviders devuelve primaries + secondaries, los tiers que
// poseen credenciales mutables.
func credentialProviders(reg *registry) []Provider {
	out := make([]Provider, 0, len(reg.primaries)+len(reg.secondaries))
	for _, p := range reg.primaries {
		out = append(out, p)
	}
	for _, p := range reg.secondaries {
		out = append(out, p)
	}
	return out
}

// AllowsAuthenticationDataChange valida un cambio de credencial contra la
// opinión de cada primary y secondary. La primera opinión mala corta,
// salvo el caso del reset de password frenado por rate limit, que se
// rebaja a un éxito "ignored" para no filtrar si la cuenta existe. Si
// ningún provider reconoció el request, éxito "ignored" con warning: no
// hay nada que cambiar.
func (m *Manager) AllowsAuthenticationDataChange(req Request, checkData bool) (StatusValue, error) {
	reg, err := m.providers()
	if err != nil {
		return StatusValue{}, err
	}

	any := false
	for _, p := range credentialProviders(reg) {
		st := p.AllowsAuthenticationDataChange(req, checkData)
		if !st.Good {
			if st.Value == ValueThrottled {
				return StatusGoodValue(ValueThrottled), nil
			}
			return st, nil
		}
		any = any || st.Value != ValueIgnored
	}
	if !any {
		return StatusGoodValue(ValueIgnored).Warn(msgChangeNotSupported), nil
	}
	return StatusGood(), nil
}

// ChangeAuthenticationData aplica un cambio de credencial en todos los
// primaries y secondaries. Solo debe llamarse tras un
// AllowsAuthenticationDataChange exitoso con checkData=true.
//
// Salvo que sea una adición, también se invalidan las credenciales
// derivadas de la cuenta (tokens de aplicación): el secreto principal
// cambió y todo lo que colgaba de él deja de valer.
func (m *Manager) ChangeAuthenticationData(ctx context.Context, req Request, isAddition bool) error {
	username := req.Meta().Username
	m.log.Info("cambiando datos de autenticación",
		logger.UserName(username),
		logger.String("kind", req.Kind()),
	)

	reg, err := m.providers()
	if err != nil {
		return err
	}
	for _, p := range credentialProviders(reg) {
		if err := p.ChangeAuthenticationData(ctx, req); err != nil {
			return fmt.Errorf("auth: %s.ChangeAuthenticationData: %w", p.UniqueID(), err)
		}
	}

	if !isAddition {
		if err := m.invalidateDerivedCredentials(ctx, username); err != nil {
			return err
		}
	}

	m.audit(ctx, audit.EventDataChange, map[string]any{
		"username": username,
		"kind":     req.Kind(),
		"addition": isAddition,
	})
	return nil
}

// invalidateDerivedCredentials rota el token de cuenta del que derivan
// las credenciales secundarias (CSRF, tokens de aplicación).
func (m *Manager) invalidateDerivedCredentials(ctx context.Context, username string) error {
	canon, ok := user.Canonicalize(username)
	if !ok {
		return nil
	}
	u, err := m.lookup.ByName(ctx, canon)
	if errors.Is(err, user.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: cargar usuario %q: %w", canon, err)
	}
	u.Token = uuid.NewString()
	if err := m.users.SaveOptions(ctx, u); err != nil {
		return fmt.Errorf("auth: rotar token de %q: %w", canon, err)
	}
	return nil
}

// RevokeAccessForUser invalida toda credencial del usuario en todos los
// providers con credenciales. Después de esto no debería poder loguear.
func (m *Manager) RevokeAccessForUser(ctx context.Context, username string) error {
	m.log.Info("revocando acceso", logger.UserName(username))

	reg, err := m.providers()
	if err != nil {
		return err
	}
	for _, p := range credentialProviders(reg) {
		if err := p.RevokeAccessForUser(ctx, username); err != nil {
			return fmt.Errorf("auth: %s.RevokeAccessForUser: %w", p.UniqueID(), err)
		}
	}
	if err := m.invalidateDerivedCredentials(ctx, username); err != nil {
		return err
	}
	m.audit(ctx, audit.EventRevokeAccess, map[string]any{"username": username})
	return nil
}

// AllowsPropertyChange consulta si alguna propiedad de cuenta ajena a la
// autenticación (email, nombre visible) puede cambiarse: cualquier
// provider puede vetar.
func (m *Manager) AllowsPropertyChange(property string) (bool, error) {
	reg, err := m.providers()
	if err != nil {
		return false, err
	}
	for _, p := range reg.all() {
		if !p.AllowsPropertyChange(property) {
			return false, nil
		}
	}
	return true, nil
}
