package auth

import "encoding/json"

// Status es el veredicto de un paso de flujo, del provider o del manager.
type Status string

const (
	// StatusPass: éxito. Del manager es terminal; de un primary aporta
	// la identidad, de un secondary aprueba.
	StatusPass Status = "pass"
	// StatusFail: fracaso con mensaje para el usuario. Terminal.
	StatusFail Status = "fail"
	// StatusAbstain: el provider no opina sobre estas credenciales.
	// Nunca lo devuelve el manager.
	StatusAbstain Status = "abstain"
	// StatusUI: hacen falta más datos del usuario; el flujo queda
	// suspendido y se reanuda con la variante *-continue.
	StatusUI Status = "ui"
	// StatusRedirect: hay que redirigir a un tercero; el flujo queda
	// suspendido igual que con UI.
	StatusRedirect Status = "redirect"
	// StatusRestart: la credencial autenticó contra el tercero pero no
	// mapea a una cuenta local. El manager lo traduce a UI ofreciendo
	// crear o vincular.
	StatusRestart Status = "restart"
)

// Response es el resultado de un paso de cualquier flujo.
type Response struct {
	Status Status `json:"status"`
	// Username de la cuenta involucrada, si se conoce.
	Username string `json:"username,omitempty"`
	// Message acompaña a Fail, UI y Restart.
	Message *Message `json:"message,omitempty"`
	// NeededRequests: con UI o Restart, qué requests hacen falta para continuar.
	NeededRequests RequestList `json:"needed_requests,omitempty"`
	// RedirectTarget y RedirectAPIData acompañan a Redirect.
	RedirectTarget  string          `json:"redirect_target,omitempty"`
	RedirectAPIData json.RawMessage `json:"redirect_api_data,omitempty"`

	// CreateRequest: en un Restart de login, la credencial pre-validada
	// que el primary puede reutilizar para crear la cuenta.
	CreateRequest Request `json:"-"`
	// LinkRequest: en un Pass de link o un Restart encadenable, la
	// credencial vinculable.
	LinkRequest Request `json:"-"`
	// LoginRequest: al terminar una creación, credencial para loguear la
	// cuenta recién creada sin repetir el flujo.
	LoginRequest Request `json:"-"`
}

// NewPass construye un éxito para username.
func NewPass(username string) *Response {
	return &Response{Status: StatusPass, Username: username}
}

// NewFail construye un fracaso con mensaje.
func NewFail(msg *Message) *Response {
	return &Response{Status: StatusFail, Message: msg}
}

// NewAbstain construye una abstención.
func NewAbstain() *Response {
	return &Response{Status: StatusAbstain}
}

// NewUI suspende el flujo pidiendo más datos. Exige al menos un request,
// si no el flujo no podría reanudarse jamás.
func NewUI(reqs []Request, msg *Message) *Response {
	if len(reqs) == 0 {
		panic("auth: respuesta UI sin requests")
	}
	return &Response{Status: StatusUI, NeededRequests: reqs, Message: msg}
}

// NewRedirect suspende el flujo redirigiendo a un tercero.
func NewRedirect(reqs []Request, target string, apiData json.RawMessage) *Response {
	if len(reqs) == 0 {
		panic("auth: respuesta redirect sin requests")
	}
	return &Response{Status: StatusRedirect, NeededRequests: reqs, RedirectTarget: target, RedirectAPIData: apiData}
}

// NewRestart indica credencial válida sin cuenta local.
func NewRestart(msg *Message) *Response {
	return &Response{Status: StatusRestart, Message: msg}
}
