// Package dto define los cuerpos de la API de flujos de autenticación.
// Los requests de providers viajan como sobres {kind, payload}; el codec
// del paquete auth los revive al tipo concreto.
package dto

import (
	"encoding/json"

	"github.com/dropDatabas3/authflow/internal/auth"
)

// FlowBeginRequest arranca un flujo (login, create o link).
type FlowBeginRequest struct {
	Requests    auth.RequestList `json:"requests"`
	ReturnToURL string           `json:"return_to_url,omitempty"`
	// Username de la cuenta a vincular; solo en link.
	Username string `json:"username,omitempty"`
}

// FlowContinueRequest reanuda un flujo suspendido.
type FlowContinueRequest struct {
	Requests auth.RequestList `json:"requests"`
}

// FlowResponse es la respuesta de cualquier paso de un flujo.
type FlowResponse struct {
	Status          string           `json:"status"`
	Username        string           `json:"username,omitempty"`
	Message         *auth.Message    `json:"message,omitempty"`
	NeededRequests  auth.RequestList `json:"needed_requests,omitempty"`
	RedirectTarget  string           `json:"redirect_target,omitempty"`
	RedirectAPIData json.RawMessage  `json:"redirect_api_data,omitempty"`

	// Token de acceso, solo cuando un login termina en PASS.
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// ChangeRequest pide un cambio de credenciales.
type ChangeRequest struct {
	Request    json.RawMessage `json:"request"`
	IsAddition bool            `json:"is_addition,omitempty"`
}

// RequestsResponse enumera los requests necesarios para una acción.
type RequestsResponse struct {
	Action   string           `json:"action"`
	Requests auth.RequestList `json:"requests"`
}

// SecurityStatusResponse es el veredicto del gate de operaciones sensibles.
type SecurityStatusResponse struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
}
