package auth

import (
	"net/http"

	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
	"github.com/dropDatabas3/authflow/internal/http/middlewares"
)

// CreateController maneja el flujo de creación de cuentas.
type CreateController struct {
	deps Deps
}

// Begin maneja POST /v1/auth/create/begin. El creador es el principal de
// la sesión actual (anónimo si nadie está logueado).
func (c *CreateController) Begin(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	var body dto.FlowBeginRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	sess := middlewares.GetSession(r.Context())
	res, err := m.BeginAccountCreation(r.Context(), sess.User(), body.Requests, body.ReturnToURL)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	// La creación no loguea por sí sola: sin token acá.
	writeFlowResponse(w, res, nil, sess)
}

// Continue maneja POST /v1/auth/create/continue.
func (c *CreateController) Continue(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	var body dto.FlowContinueRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	res, err := m.ContinueAccountCreation(r.Context(), body.Requests)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	writeFlowResponse(w, res, nil, middlewares.GetSession(r.Context()))
}
