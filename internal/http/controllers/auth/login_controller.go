package auth

import (
	"net/http"

	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
	"github.com/dropDatabas3/authflow/internal/http/middlewares"
)

// LoginController maneja el flujo de autenticación.
type LoginController struct {
	deps Deps
}

// Begin maneja POST /v1/auth/login/begin.
func (c *LoginController) Begin(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	var body dto.FlowBeginRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	res, err := m.BeginAuthentication(r.Context(), body.Requests, body.ReturnToURL)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	writeFlowResponse(w, res, c.deps.Tokens, middlewares.GetSession(r.Context()))
}

// Continue maneja POST /v1/auth/login/continue.
func (c *LoginController) Continue(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	var body dto.FlowContinueRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	res, err := m.ContinueAuthentication(r.Context(), body.Requests)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	writeFlowResponse(w, res, c.deps.Tokens, middlewares.GetSession(r.Context()))
}
