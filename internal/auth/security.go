package auth

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/session"
)

// SecuritySensitiveOperationStatus decide si una operación sensible
// (cambiar password, cambiar email) puede proceder en esta sesión.
//
// Sin principal autenticado: REAUTH si la sesión al menos puede
// autenticar, FAIL si no. Con principal y sesión re-autenticable: se
// compara el tiempo desde el último login completo contra el umbral de la
// operación (un elapsed >= umbral exige REAUTH). Con una sesión que jamás
// puede re-autenticar (credencial externa por request) se consulta la
// tabla de permitidos en su lugar. La falta de la clave "default" en
// cualquiera de las dos tablas es un error fatal de configuración.
func (m *Manager) SecuritySensitiveOperationStatus(ctx context.Context, operation string) (SecurityStatus, error) {
	log := m.log.With(logger.Op("SecuritySensitiveOperationStatus"))
	log.Debug("chequeando operación sensible", logger.String("operation", operation))

	principal := m.sess.User()
	if principal.IsAnonymous() {
		st := SecurityFail
		if m.CanAuthenticateNow() {
			st = SecurityReauth
		}
		log.Info("operación sensible sin login", logger.String("operation", operation), logger.String("status", string(st)))
		return st, nil
	}

	status := SecurityOK
	if m.sess.CanSetUser() {
		elapsed := m.timeSinceLastAuth(ctx, principal)

		threshold, err := lookupWithDefault(m.cfg.ReauthThresholds, operation)
		if err != nil {
			return SecurityFail, fmt.Errorf("auth: reauth_thresholds sin clave default")
		}
		if threshold >= 0 && elapsed >= threshold {
			status = SecurityReauth
		}
	} else {
		allowed, err := lookupWithDefault(m.cfg.AllowWithoutReauth, operation)
		if err != nil {
			return SecurityFail, fmt.Errorf("auth: allow_without_reauth sin clave default")
		}
		if allowed {
			status = SecurityOK
		} else {
			status = SecurityFail
		}
	}

	// REAUTH no tiene sentido si re-autenticar es imposible.
	if status == SecurityReauth && !m.CanAuthenticateNow() {
		status = SecurityFail
	}

	log.Info("operación sensible evaluada",
		logger.String("operation", operation),
		logger.String("status", string(status)),
		logger.UserName(principal.Name),
	)
	return status, nil
}

// timeSinceLastAuth calcula el tiempo desde el último login completo de
// ESTE principal en esta sesión. Marcas ausentes o de otro principal
// cuentan como "hace una eternidad".
func (m *Manager) timeSinceLastAuth(ctx context.Context, principal session.Principal) time.Duration {
	const foreverAgo = time.Duration(math.MaxInt64)

	id, errID := m.sess.Get(ctx, keyLastAuthID)
	tsRaw, errTS := m.sess.Get(ctx, keyLastAuthTS)
	if errID != nil || errTS != nil || id != principal.ID {
		return foreverAgo
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return foreverAgo
	}
	elapsed := m.now().Sub(time.Unix(ts, 0))
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// lookupWithDefault busca la operación y cae a "default"; sin default es
// error de configuración.
func lookupWithDefault[V any](table map[string]V, operation string) (V, error) {
	if v, ok := table[operation]; ok {
		return v, nil
	}
	if v, ok := table["default"]; ok {
		return v, nil
	}
	var zero V
	return zero, fmt.Errorf("auth: falta default")
}
