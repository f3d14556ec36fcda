package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dropDatabas3/authflow/internal/session"
)

// Scratch data de providers en la sesión: un mapa secret compartido donde
// los providers dejan datos temporales de su flujo (tokens intermedios,
// nonces). Se barre entero al terminar un login.

func (m *Manager) authData(ctx context.Context) map[string]string {
	raw, err := m.sess.GetSecret(ctx, keyAuthData)
	if err != nil {
		return map[string]string{}
	}
	var data map[string]string
	if json.Unmarshal([]byte(raw), &data) != nil || data == nil {
		return map[string]string{}
	}
	return data
}

// SetAuthenticationSessionData guarda un valor temporal de provider.
func (m *Manager) SetAuthenticationSessionData(ctx context.Context, key, value string) error {
	data := m.authData(ctx)
	data[key] = value
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return m.sess.SetSecret(ctx, keyAuthData, string(b))
}

// GetAuthenticationSessionData lee un valor temporal de provider.
// Retorna ("", false) si no existe.
func (m *Manager) GetAuthenticationSessionData(ctx context.Context, key string) (string, bool) {
	v, ok := m.authData(ctx)[key]
	return v, ok
}

// MaybeLinkableRequests expone las credenciales externas vinculables que el
// login en curso fue acumulando. Lo consume el secondary de confirmación de
// vínculos; fuera de un login suspendido devuelve nil.
func (m *Manager) MaybeLinkableRequests(ctx context.Context) RequestList {
	var state authnState
	found, err := loadState(ctx, m.sess, keyAuthnState, &state)
	if err != nil || !found {
		return nil
	}
	return state.MaybeLink
}

// RemoveAuthenticationSessionData borra una clave, o todas con key vacía.
func (m *Manager) RemoveAuthenticationSessionData(ctx context.Context, key string) {
	if key == "" {
		_ = m.sess.Remove(ctx, keyAuthData)
		return
	}
	raw, err := m.sess.GetSecret(ctx, keyAuthData)
	if errors.Is(err, session.ErrNoValue) {
		return
	}
	var data map[string]string
	if err != nil || json.Unmarshal([]byte(raw), &data) != nil {
		return
	}
	delete(data, key)
	if len(data) == 0 {
		_ = m.sess.Remove(ctx, keyAuthData)
		return
	}
	if b, err := json.Marshal(data); err == nil {
		_ = m.sess.SetSecret(ctx, keyAuthData, string(b))
	}
}
