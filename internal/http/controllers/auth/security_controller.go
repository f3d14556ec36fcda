package auth

import (
	"net/http"

	"github.com/dropDatabas3/authflow/internal/http/dto"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
)

// SecurityController expone el gate de operaciones sensibles.
type SecurityController struct {
	deps Deps
}

// Status maneja GET /v1/auth/security-status?operation=…
func (c *SecurityController) Status(w http.ResponseWriter, r *http.Request) {
	operation := r.URL.Query().Get("operation")
	if operation == "" {
		httperrors.WriteError(w, http.StatusBadRequest, "invalid_request", "falta operation")
		return
	}
	m, ok := c.deps.manager(w, r)
	if !ok {
		return
	}
	st, err := m.SecuritySensitiveOperationStatus(r.Context(), operation)
	if err != nil {
		httperrors.WriteError(w, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, dto.SecurityStatusResponse{
		Operation: operation,
		Status:    string(st),
	})
}
