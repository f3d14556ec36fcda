// Package audit emite el side-channel de decisiones terminales del
// orquestador: logins, creaciones, vinculaciones y cambios de credencial.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authflow/internal/observability/logger"
)

// Log registra un evento de auditoría como entrada estructurada. Es el
// sink por defecto; un deployment puede inyectar otro vía auth.Deps.
func Log(_ context.Context, event string, fields map[string]any) {
	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("event", event))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	logger.L().Info("audit", zf...)
}

// Eventos de auditoría emitidos por el orquestador de autenticación.
const (
	EventLoginSuccess  = "auth.login.success"
	EventLoginFail     = "auth.login.fail"
	EventAccountCreate = "auth.account.create"
	EventAutoCreate    = "auth.account.autocreate"
	EventAccountLink   = "auth.account.link"
	EventDataChange    = "auth.data.change"
	EventRevokeAccess  = "auth.revoke"
)
