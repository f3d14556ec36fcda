package auth

import (
	"net/http"

	flow "github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
)

// changeOperation es el nombre del gate para cambios de credenciales.
const changeOperation = "change-credentials"

// ChangeController maneja cambios y bajas de credenciales de una cuenta
// existente, detrás del gate de operaciones sensibles.
type ChangeController struct {
	deps Deps
}

// Change maneja POST /v1/auth/change.
func (c *ChangeController) Change(w http.ResponseWriter, r *http.Request) {
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}

	// Paso 1: el gate. Sin login reciente no hay cambio de credenciales.
	st, err := m.SecuritySensitiveOperationStatus(r.Context(), changeOperation)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	switch st {
	case flow.SecurityReauth:
		httperrors.WriteError(w, http.StatusUnauthorized, "reauth_required", "reautenticarse antes de cambiar credenciales")
		return
	case flow.SecurityFail:
		httperrors.WriteError(w, http.StatusForbidden, "forbidden", "la operación no está disponible en esta sesión")
		return
	}

	var body dto.ChangeRequest
	if !httperrors.ReadJSON(w, r, &body) {
		return
	}
	if len(body.Request) == 0 {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid_request", "falta request")
		return
	}

	// Paso 2: revivir el request al tipo concreto y validarlo.
	req, err := flow.UnmarshalRequest(body.Request)
	if err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	allowed, err := m.AllowsAuthenticationDataChange(req, true)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	if !allowed.Good {
		out := dto.FlowResponse{Status: string(flow.StatusFail), Message: allowed.Message}
		httperrors.WriteJSON(w, http.StatusOK, out)
		return
	}

	// Paso 3: aplicar el cambio.
	if err := m.ChangeAuthenticationData(r.Context(), req, body.IsAddition); err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, dto.FlowResponse{
		Status:   string(flow.StatusPass),
		Username: req.Meta().Username,
	})
}
