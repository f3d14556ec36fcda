// Package auth contiene los services HTTP de autenticación.
package auth

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/authflow/internal/jwt"
	"github.com/dropDatabas3/authflow/internal/session"
)

// TokenService emite el access token de una sesión recién autenticada.
type TokenService struct {
	Issuer *jwt.Issuer
}

// NewTokenService crea el service de tokens.
func NewTokenService(issuer *jwt.Issuer) *TokenService {
	return &TokenService{Issuer: issuer}
}

// MintForSession emite un access token para el principal de la sesión.
func (s *TokenService) MintForSession(sess session.Session) (string, int64, error) {
	p := sess.User()
	if p.IsAnonymous() {
		return "", 0, fmt.Errorf("auth: la sesión no tiene usuario")
	}
	token, exp, err := s.Issuer.IssueAccess(p.ID, p.Name)
	if err != nil {
		return "", 0, err
	}
	return token, int64(time.Until(exp).Seconds()), nil
}
