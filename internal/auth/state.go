package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropDatabas3/authflow/internal/session"
)

// Claves del orquestador dentro de la sesión. Los estados van por
// SetSecret: jamás deben reflejarse hacia el cliente.
const (
	keyAuthnState  = "authflow:authn_state"
	keyCreateState = "authflow:create_state"
	keyLinkState   = "authflow:link_state"
	keyAuthData    = "authflow:auth_data"
	keyLastAuthID  = "authflow:last_auth_id"
	keyLastAuthTS  = "authflow:last_auth_ts"
	keyAutoBlock   = "authflow:autocreate_block"
)

// authnState es el estado suspendido de un login.
type authnState struct {
	// Reqs son los requests del begin; los secondaries que arrancan
	// tarde los reciben en lugar de los del último continue.
	Reqs          RequestList `json:"reqs"`
	ReturnToURL   string      `json:"return_to_url,omitempty"`
	GuessUserName string      `json:"guess_username,omitempty"`
	// Primary es el id del primary elegido; vacío hasta que uno acepta.
	Primary string `json:"primary,omitempty"`
	// PrimaryPass es el username del PASS ya obtenido del primary, para
	// no repetirlo al reanudar en medio de los secondaries.
	PrimaryPass string `json:"primary_pass,omitempty"`
	// Secondary: ausente = no arrancó; false = suspendido; true = terminó.
	Secondary map[string]bool `json:"secondary,omitempty"`
	// MaybeLink acumula credenciales externas vinculables aparecidas en
	// el camino, deduplicadas por UniqueID.
	MaybeLink RequestList `json:"maybe_link,omitempty"`
	// ContinueRequests son los requests válidos para el próximo continue.
	ContinueRequests RequestList `json:"continue_requests,omitempty"`
}

// createState es el estado suspendido de una creación de cuenta.
type createState struct {
	Username    string      `json:"username"`
	UserID      string      `json:"user_id,omitempty"`
	CreatorID   string      `json:"creator_id,omitempty"`
	CreatorName string      `json:"creator_name,omitempty"`
	Reqs        RequestList `json:"reqs"`
	ReturnToURL string      `json:"return_to_url,omitempty"`
	Primary     string      `json:"primary,omitempty"`
	// PrimaryPassed indica que el primary ya aceptó la creación.
	PrimaryPassed    bool            `json:"primary_passed,omitempty"`
	Secondary        map[string]bool `json:"secondary,omitempty"`
	ContinueRequests RequestList     `json:"continue_requests,omitempty"`
	MaybeLink        RequestList     `json:"maybe_link,omitempty"`
	// RanPreTests evita repetir los pre-tests al reanudar.
	RanPreTests bool `json:"ran_pre_tests,omitempty"`
}

// linkState es el estado suspendido de una vinculación.
type linkState struct {
	Username         string      `json:"username"`
	UserID           string      `json:"user_id"`
	ReturnToURL      string      `json:"return_to_url,omitempty"`
	Primary          string      `json:"primary,omitempty"`
	ContinueRequests RequestList `json:"continue_requests,omitempty"`
}

// addMaybeLink agrega un request vinculable si su id no estaba ya.
func addMaybeLink(list RequestList, req Request) RequestList {
	if req == nil {
		return list
	}
	for _, have := range list {
		if have.UniqueID() == req.UniqueID() {
			return list
		}
	}
	return append(list, req)
}

// ─── Persistencia en sesión ───

func saveState(ctx context.Context, s session.Session, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("auth: marshal estado %s: %w", key, err)
	}
	if err := s.SetSecret(ctx, key, string(b)); err != nil {
		return fmt.Errorf("auth: guardar estado %s: %w", key, err)
	}
	return nil
}

// loadState retorna (false, nil) si no hay estado bajo la clave.
func loadState(ctx context.Context, s session.Session, key string, v any) (bool, error) {
	raw, err := s.GetSecret(ctx, key)
	if errors.Is(err, session.ErrNoValue) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: leer estado %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("auth: unmarshal estado %s: %w", key, err)
	}
	return true, nil
}

func clearState(ctx context.Context, s session.Session, key string) {
	_ = s.Remove(ctx, key)
}
