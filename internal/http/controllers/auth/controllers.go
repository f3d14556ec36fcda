// Package auth contiene los controllers de los flujos de autenticación:
// login, creación de cuentas, vinculación, cambios de credenciales y el
// gate de operaciones sensibles.
package auth

import (
	"net/http"

	flow "github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
	"github.com/dropDatabas3/authflow/internal/http/middlewares"
	svc "github.com/dropDatabas3/authflow/internal/http/services/auth"
	"github.com/dropDatabas3/authflow/internal/session"
)

// ManagerFactory arma el orquestador ligado a la sesión del request.
type ManagerFactory func(sess session.Session) (*flow.Manager, error)

// Deps comparte las dependencias de todos los controllers de auth.
type Deps struct {
	Managers ManagerFactory
	Tokens   *svc.TokenService
}

// Controllers agrupa los controllers ya armados.
type Controllers struct {
	Login    *LoginController
	Create   *CreateController
	Link     *LinkController
	Change   *ChangeController
	Requests *RequestsController
	Security *SecurityController
}

// New arma todos los controllers de auth.
func New(deps Deps) *Controllers {
	return &Controllers{
		Login:    &LoginController{deps: deps},
		Create:   &CreateController{deps: deps},
		Link:     &LinkController{deps: deps},
		Change:   &ChangeController{deps: deps},
		Requests: &RequestsController{deps: deps},
		Security: &SecurityController{deps: deps},
	}
}

// ─── Helpers ───

// manager saca la sesión del contexto y arma el orquestador del request.
func (d Deps) manager(w http.ResponseWriter, r *http.Request) (*flow.Manager, bool) {
	sess := middlewares.GetSession(r.Context())
	if sess == nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "no_session", "session middleware ausente")
		return nil, false
	}
	m, err := d.Managers(sess)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return nil, false
	}
	return m, true
}

// writeFlowResponse traduce la respuesta del orquestador al DTO. mint
// emite un access token cuando un login termina en PASS.
func writeFlowResponse(w http.ResponseWriter, res *flow.Response, tokens *svc.TokenService, sess session.Session) {
	out := dto.FlowResponse{
		Status:          string(res.Status),
		Username:        res.Username,
		Message:         res.Message,
		NeededRequests:  res.NeededRequests,
		RedirectTarget:  res.RedirectTarget,
		RedirectAPIData: res.RedirectAPIData,
	}
	if res.Status == flow.StatusPass && tokens != nil {
		token, expiresIn, err := tokens.MintForSession(sess)
		if err != nil {
			httperrors.WriteError(w, http.StatusInternalServerError, "token_error", err.Error())
			return
		}
		out.AccessToken = token
		out.TokenType = "Bearer"
		out.ExpiresIn = expiresIn
	}
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, http.StatusOK, out)
}
