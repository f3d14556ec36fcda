package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/session"
)

const sessKey ctxKey = 100

// SessionConfig es la política de la cookie de sesión.
type SessionConfig struct {
	CookieName  string
	Domain      string
	SameSite    string
	Secure      bool
	RememberTTL time.Duration
}

func (c SessionConfig) sameSite() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// WithSession carga (o crea) la sesión del cliente y la deja en el
// contexto. Si el id cambió durante el request (login regenera el id), la
// cookie sale actualizada en la respuesta.
func WithSession(store session.Store, cfg SessionConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess session.Session
			var prevID string
			if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
				prevID = cookie.Value
				loaded, err := store.Load(ctx, cookie.Value)
				if err == nil {
					sess = loaded
				} else if !errors.Is(err, session.ErrNotFound) {
					logger.From(ctx).Error("cargar sesión", logger.Err(err))
					http.Error(w, "session backend unavailable", http.StatusServiceUnavailable)
					return
				}
			}
			if sess == nil {
				fresh, err := store.New(ctx)
				if err != nil {
					logger.From(ctx).Error("crear sesión", logger.Err(err))
					http.Error(w, "session backend unavailable", http.StatusServiceUnavailable)
					return
				}
				sess = fresh
			}

			ctx = context.WithValue(ctx, sessKey, sess)

			// La cookie tiene que salir antes del primer byte del body:
			// se decide recién al escribir, cuando el id final se conoce.
			sw := &sessionWriter{ResponseWriter: w, beforeWrite: func(h http.ResponseWriter) {
				if sess.ID() == prevID {
					return
				}
				maxAge := 0
				if sess.Remembered() {
					maxAge = int(cfg.RememberTTL.Seconds())
				}
				http.SetCookie(h, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    sess.ID(),
					Path:     "/",
					Domain:   cfg.Domain,
					MaxAge:   maxAge,
					Secure:   cfg.Secure,
					HttpOnly: true,
					SameSite: cfg.sameSite(),
				})
			}}
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.flushCookie()
		})
	}
}

type sessionWriter struct {
	http.ResponseWriter
	beforeWrite func(http.ResponseWriter)
	done        bool
}

func (s *sessionWriter) flushCookie() {
	if !s.done {
		s.done = true
		s.beforeWrite(s.ResponseWriter)
	}
}

func (s *sessionWriter) WriteHeader(code int) {
	s.flushCookie()
	s.ResponseWriter.WriteHeader(code)
}

func (s *sessionWriter) Write(b []byte) (int, error) {
	s.flushCookie()
	return s.ResponseWriter.Write(b)
}

// GetSession saca la sesión del contexto (nil si el middleware no corrió).
func GetSession(ctx context.Context) session.Session {
	s, _ := ctx.Value(sessKey).(session.Session)
	return s
}
