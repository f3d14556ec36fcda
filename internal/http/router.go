package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/dropDatabas3/authflow/internal/http/controllers/auth"
	httperrors "github.com/dropDatabas3/authflow/internal/http/errors"
	mw "github.com/dropDatabas3/authflow/internal/http/middlewares"
	"github.com/dropDatabas3/authflow/internal/session"
)

// RouterDeps contiene todo lo que el router necesita para armar las rutas.
type RouterDeps struct {
	Controllers *authctrl.Controllers
	Sessions    session.Store
	SessionCfg  mw.SessionConfig
	CORSOrigins []string
}

// NewRouter arma el router HTTP del servicio.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID())
	r.Use(mw.WithLogging())
	if len(deps.CORSOrigins) > 0 {
		r.Use(mw.WithCORS(deps.CORSOrigins))
	}

	// Sondas y métricas quedan fuera del middleware de sesión.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	c := deps.Controllers
	r.Group(func(r chi.Router) {
		r.Use(mw.WithSession(deps.Sessions, deps.SessionCfg))

		r.Route("/v1/auth", func(r chi.Router) {
			r.Post("/login/begin", c.Login.Begin)
			r.Post("/login/continue", c.Login.Continue)
			r.Post("/create/begin", c.Create.Begin)
			r.Post("/create/continue", c.Create.Continue)
			r.Post("/link/begin", c.Link.Begin)
			r.Post("/link/continue", c.Link.Continue)
			r.Post("/change", c.Change.Change)
			r.Get("/requests", c.Requests.Get)
			r.Get("/security-status", c.Security.Status)
		})
	})

	return r
}
