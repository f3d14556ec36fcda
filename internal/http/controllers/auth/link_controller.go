package auth

import (
	"net/http"

	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
	"github.com/dropDatabas3/authflow/internal/http/middlewares"
)

// LinkController maneja la vinculación de cuentas a credenciales externas.
type LinkController struct {
	deps Deps
}

// Begin maneja POST /v1/auth/link/begin.
func (c *LinkController) Begin(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	var body dto.FlowBeginRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	if body.Username == "" {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid_request", "falta username")
		return
	}
	res, err := m.BeginAccountLink(r.Context(), body.Username, body.Requests, body.ReturnToURL)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	writeFlowResponse(w, res, nil, middlewares.GetSession(r.Context()))
}

// Continue maneja POST /v1/auth/link/continue.
func (c *LinkController) Continue(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	var body dto.FlowContinueRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	res, err := m.ContinueAccountLink(r.Context(), body.Requests)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	writeFlowResponse(w, res, nil, middlewares.GetSession(r.Context()))
}
