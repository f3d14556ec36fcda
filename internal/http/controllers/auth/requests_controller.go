package auth

import (
	"net/http"

	flow "github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
	"github.com/dropDatabas3/authflow/internal/http/middlewares"
)

// RequestsController expone qué requests necesita cada acción.
type RequestsController struct {
	deps Deps
}

var knownActions = map[flow.Action]bool{
	flow.ActionLogin:          true,
	flow.ActionLoginContinue:  true,
	flow.ActionCreate:         true,
	flow.ActionCreateContinue: true,
	flow.ActionLink:           true,
	flow.ActionLinkContinue:   true,
	flow.ActionChange:         true,
	flow.ActionRemove:         true,
	flow.ActionUnlink:         true,
}

// Get maneja GET /v1/auth/requests?action=…&username=…
func (c *RequestsController) Get(w http.ResponseWriter, r *http.Request) {
	action := flow.Action(r.URL.Query().Get("action"))
	if !knownActions[action] {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid_request", "acción desconocida")
		return
	}
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		// Por defecto, el usuario de la sesión.
		if sess := middlewares.GetSession(r.Context()); sess != nil {
			username = sess.User().Name
		}
	}
	reqs, err := m.GetAuthenticationRequests(r.Context(), action, username)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, dto.RequestsResponse{
		Action:   string(action),
		Requests: reqs,
	})
}
