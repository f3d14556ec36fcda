package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/authflow/internal/audit"
	"github.com/dropDatabas3/authflow/internal/lock"
	"github.com/dropDatabas3/authflow/internal/metrics"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/user"
)

// Orígenes fijos de auto-creación; el resto del espacio de valores son
// ids de primary providers.
const (
	// AutoCreateSourceSession: la capa de sesiones trajo una identidad
	// sin cuenta local.
	AutoCreateSourceSession = "source:session"
	// AutoCreateSourceMaintenance: tooling de mantenimiento; saltea el
	// chequeo de permisos.
	AutoCreateSourceMaintenance = "source:maintenance"
	// AutoCreateSourceTemp: cuentas temporales; el login resultante se
	// marca como recordado.
	AutoCreateSourceTemp = "source:temp"
)

func autoCreateBackoffKey(canonical string) string {
	return "autocreate-failed:" + accountLockKey(canonical)
}

// AutoCreateUser crea una cuenta sin flujo interactivo: la piden los
// primaries que aseveran identidades sin cuenta local, o el tooling.
//
// Retorna el usuario (creado o preexistente) y un StatusValue: Good si se
// creó, Good con warning si ya existía, malo si la creación fue denegada.
// El error solo se usa para fallas fatales (source desconocido, registry
// rota, storage caído al insertar).
func (m *Manager) AutoCreateUser(ctx context.Context, username, source string, login bool) (*user.User, StatusValue, error) {
	log := m.log.With(logger.Op("AutoCreateUser"), logger.UserName(username), logger.Source(source))

	if err := m.validAutoCreateSource(source); err != nil {
		return nil, StatusValue{}, err
	}

	canon, okName := user.Canonicalize(username)

	// ¿Ya existe? Lectura barata primero y fuerte después, para no crear
	// un duplicado por lag de réplica.
	if okName {
		u, err := m.lookup.ByNameAuthoritative(ctx, canon)
		if err == nil {
			log.Debug("ya existe localmente")
			if login {
				if err := m.autoCreateLogin(ctx, u, source); err != nil {
					return nil, StatusValue{}, err
				}
			}
			return u, StatusGood().Warn(msgUserExists), nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return nil, StatusValue{}, fmt.Errorf("auth: verificar existencia de %q: %w", canon, err)
		}
	}

	if m.cfg.ReadOnly {
		log.Debug("denegado por modo read-only")
		metrics.AutoCreateDenials.WithLabelValues("readonly").Inc()
		return nil, StatusFatal(msgReadOnly), nil
	}

	// Si esta sesión ya tuvo una denegación, no hay por qué reintentar.
	if reason, err := m.sess.Get(ctx, keyAutoBlock); err == nil {
		log.Debug("denegado por denylist de sesión", logger.SessionID(m.sess.ID()), logger.Reason(reason))
		metrics.AutoCreateDenials.WithLabelValues("blacklist").Inc()
		return nil, StatusFatal(reason), nil
	}

	if !okName {
		log.Debug("username inválido")
		_ = m.sess.Set(ctx, keyAutoBlock, msgNoName)
		metrics.AutoCreateDenials.WithLabelValues("noname").Inc()
		return nil, StatusFatal(msgNoName), nil
	}

	// ¿La creación está habilitada? El tooling de mantenimiento pasa igual.
	if source != AutoCreateSourceMaintenance && !m.cfg.EnableCreation {
		log.Debug("autocreación sin permiso")
		_ = m.sess.Set(ctx, keyAutoBlock, msgAutocreateNoPerm)
		_ = m.sess.Persist(ctx)
		metrics.AutoCreateDenials.WithLabelValues("noperm").Inc()
		return nil, StatusFatal(msgAutocreateNoPerm), nil
	}

	// Evitar carreras de creación en doble submit.
	release, err := m.locks.Acquire(ctx, accountLockKey(canon), m.cfg.LockTTL)
	if errors.Is(err, lock.ErrContended) {
		log.Debug("lock de creación ocupado")
		metrics.LockContention.Inc()
		return nil, StatusFatal(msgUserInProgress), nil
	}
	if err != nil {
		return nil, StatusValue{}, fmt.Errorf("auth: adquirir lock de creación: %w", err)
	}
	defer func() { _ = release(ctx) }()

	// ¿Algún provider lo veta?
	reg, err := m.providers()
	if err != nil {
		return nil, StatusValue{}, err
	}
	u := &user.User{Name: canon, CanonicalName: canon}
	for _, p := range reg.all() {
		if st := p.TestUserForCreation(ctx, u, source, nil); !st.Good {
			reason := ""
			if st.Message != nil {
				reason = st.Message.Key
			}
			log.Debug("autocreación vetada por provider", logger.Provider(p.UniqueID()), logger.Reason(reason))
			_ = m.sess.Set(ctx, keyAutoBlock, reason)
			metrics.AutoCreateDenials.WithLabelValues("provider_veto").Inc()
			return nil, st, nil
		}
	}

	// Backoff tras fallas excepcionales recientes para este username, o
	// una tormenta de autocreates castiga al storage sin piedad.
	backoffKey := autoCreateBackoffKey(canon)
	if _, err := m.cache.Get(ctx, backoffKey); err == nil {
		log.Debug("denegado por fallas previas de creación")
		metrics.AutoCreateDenials.WithLabelValues("backoff").Inc()
		return nil, StatusFatal(msgAutocreateException), nil
	}

	log.Info("creando usuario por autocreación")
	if err := m.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrExists) {
			// Carrera: alguien lo insertó entre la lectura y acá.
			existing, lerr := m.users.GetByNameLatest(ctx, canon)
			if lerr == nil {
				log.Info("ya existe localmente (carrera)")
				if login {
					if err := m.autoCreateLogin(ctx, existing, source); err != nil {
						return nil, StatusValue{}, err
					}
				}
				return existing, StatusGood().Warn(msgUserExists), nil
			}
			err = lerr
		}
		// No seguir tirando errores por un rato.
		if m.cfg.AutocreateBackoff > 0 {
			_ = m.cache.Set(ctx, backoffKey, "1", m.cfg.AutocreateBackoff)
		}
		return nil, StatusValue{}, fmt.Errorf("auth: insertar usuario %q: %w", canon, err)
	}

	if err := m.setDefaultUserOptions(ctx, u); err != nil {
		return nil, StatusValue{}, err
	}

	// Avisar a primaries y secondaries.
	for _, p := range credentialProviders(reg) {
		if err := p.AutoCreatedAccount(ctx, u, source); err != nil {
			return nil, StatusValue{}, fmt.Errorf("auth: %s.AutoCreatedAccount: %w", p.UniqueID(), err)
		}
	}

	m.audit(ctx, audit.EventAutoCreate, map[string]any{
		"username": u.Name,
		"user_id":  u.ID,
		"source":   source,
	})
	metrics.AccountCreations.WithLabelValues("autocreate").Inc()

	if login {
		if err := m.autoCreateLogin(ctx, u, source); err != nil {
			return nil, StatusValue{}, err
		}
	}
	return u, StatusGood(), nil
}

// autoCreateLogin loguea la cuenta autocreada; solo el origen de cuentas
// temporales deja la sesión marcada como recordada.
func (m *Manager) autoCreateLogin(ctx context.Context, u *user.User, source string) error {
	remember := source == AutoCreateSourceTemp
	return m.setSessionDataForUser(ctx, u, &remember)
}

// validAutoCreateSource acepta los orígenes fijos o el id de un primary.
func (m *Manager) validAutoCreateSource(source string) error {
	switch source {
	case AutoCreateSourceSession, AutoCreateSourceMaintenance, AutoCreateSourceTemp:
		return nil
	}
	reg, err := m.providers()
	if err != nil {
		return err
	}
	if reg.primaryByID(source) == nil {
		return fmt.Errorf("auth: origen de autocreación desconocido: %q", source)
	}
	return nil
}
