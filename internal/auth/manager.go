// Package auth implementa el orquestador de autenticación multi-etapa:
// login, creación de cuentas, vinculación y cambio de credenciales, todo
// negociado a través de tres tiers de providers (pre, primary, secondary)
// con el progreso parcial persistido en la sesión entre round-trips.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authflow/internal/audit"
	"github.com/dropDatabas3/authflow/internal/cache"
	"github.com/dropDatabas3/authflow/internal/lock"
	"github.com/dropDatabas3/authflow/internal/metrics"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/security/password"
	"github.com/dropDatabas3/authflow/internal/session"
	"github.com/dropDatabas3/authflow/internal/user"
)

// Políticas de "recordarme" al commitear un login.
const (
	RememberAlways = "always"
	RememberNever  = "never"
	RememberChoose = "choose"
)

// Config del orquestador.
type Config struct {
	PreProviders       []Spec
	PrimaryProviders   []Spec
	SecondaryProviders []Spec

	// RememberPolicy: always | never | choose.
	RememberPolicy string

	// ReauthThresholds por operación sensible; la clave "default" es
	// obligatoria. Valor negativo = nunca exigir re-autenticación.
	ReauthThresholds map[string]time.Duration

	// AllowWithoutReauth decide operaciones sensibles en sesiones que no
	// pueden re-autenticar; la clave "default" es obligatoria.
	AllowWithoutReauth map[string]bool

	// EnableCreation habilita la creación explícita de cuentas.
	EnableCreation bool
	// ReadOnly bloquea toda escritura de cuentas.
	ReadOnly bool

	// LockTTL del lock distribuido de creación por username.
	LockTTL time.Duration
	// AutocreateBackoff suprime reintentos de autocreación tras un fallo
	// excepcional para el mismo username.
	AutocreateBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.RememberPolicy == "" {
		c.RememberPolicy = RememberChoose
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 15 * time.Second
	}
	if c.AutocreateBackoff <= 0 {
		c.AutocreateBackoff = 10 * time.Minute
	}
}

// AuditFn recibe cada decisión terminal, para el side-channel de auditoría.
type AuditFn func(ctx context.Context, event string, fields map[string]any)

// Deps son los colaboradores externos del Manager.
type Deps struct {
	Logger    *zap.Logger
	Users     user.Store
	Locks     lock.Locker
	Cache     cache.Client
	Passwords *password.Factory
	Audit     AuditFn
	// Now permite congelar el reloj en tests.
	Now func() time.Time
}

// Manager orquesta los flujos de autenticación de UNA sesión. Se crea uno
// por request; los providers se arman perezosamente en el primer uso.
type Manager struct {
	cfg    Config
	sess   session.Session
	log    *zap.Logger
	users  user.Store
	lookup *user.Lookup
	locks  lock.Locker
	cache  cache.Client
	pwd    *password.Factory
	audit  AuditFn
	now    func() time.Time

	reg *registry

	// createdAccountReqs guarda las instancias acuñadas por ESTE manager:
	// un CreatedAccountRequest ajeno o deserializado no sirve para loguear.
	createdAccountReqs []*CreatedAccountRequest
}

// New construye un Manager ligado a la sesión dada.
func New(cfg Config, sess session.Session, deps Deps) (*Manager, error) {
	if sess == nil {
		return nil, fmt.Errorf("auth: sesión requerida")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("auth: user store requerido")
	}
	cfg.applyDefaults()

	log := deps.Logger
	if log == nil {
		log = logger.Named("auth")
	}
	auditFn := deps.Audit
	if auditFn == nil {
		auditFn = audit.Log
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	locks := deps.Locks
	if locks == nil {
		l, err := lock.New(lock.Config{Driver: "memory"})
		if err != nil {
			return nil, err
		}
		locks = l
	}
	cch := deps.Cache
	if cch == nil {
		c, err := cache.New(cache.Config{Driver: "memory"})
		if err != nil {
			return nil, err
		}
		cch = c
	}

	return &Manager{
		cfg:    cfg,
		sess:   sess,
		log:    log,
		users:  deps.Users,
		lookup: user.NewLookup(deps.Users),
		locks:  locks,
		cache:  cch,
		pwd:    deps.Passwords,
		audit:  auditFn,
		now:    now,
		reg:    newRegistry(cfg.PreProviders, cfg.PrimaryProviders, cfg.SecondaryProviders),
	}, nil
}

// Session expone la sesión ligada al manager.
func (m *Manager) Session() session.Session { return m.sess }

func (m *Manager) providers() (*registry, error) {
	err := m.reg.build(ProviderDeps{
		Manager:   m,
		Logger:    m.log,
		Users:     m.users,
		Passwords: m.pwd,
		Cache:     m.cache,
	})
	if err != nil {
		return nil, err
	}
	return m.reg, nil
}

// AuthenticationProvider busca un provider por id entre los tres tiers.
func (m *Manager) AuthenticationProvider(id string) (Provider, error) {
	reg, err := m.providers()
	if err != nil {
		return nil, err
	}
	return reg.provider(id), nil
}

// ForcePrimaryAuthenticationProviders reemplaza los primaries configurados
// por instancias ya inicializadas (tests, mantenimiento). Si había un login
// en curso, su estado queda inválido y se descarta.
func (m *Manager) ForcePrimaryAuthenticationProviders(ctx context.Context, providers []PrimaryProvider, why string) {
	m.log.Warn("reemplazando primaries", logger.Reason(why))
	if m.reg.byID != nil {
		m.log.Warn("los providers ya habían sido armados")
		clearState(ctx, m.sess, keyAuthnState)
	}
	m.reg.forcePrimaries(providers)
}

// ─── Capacidades ───

// CanAuthenticateNow indica si esta sesión admite autenticar un usuario.
func (m *Manager) CanAuthenticateNow() bool {
	return m.sess.CanSetUser()
}

// CanCreateAccounts indica si hay algún primary capaz de crear cuentas.
func (m *Manager) CanCreateAccounts() (bool, error) {
	reg, err := m.providers()
	if err != nil {
		return false, err
	}
	for _, p := range reg.primaries {
		switch p.AccountCreationType() {
		case CreationCreate, CreationLink:
			return true, nil
		}
	}
	return false, nil
}

// CanLinkAccounts indica si hay algún primary de tipo link.
func (m *Manager) CanLinkAccounts() (bool, error) {
	reg, err := m.providers()
	if err != nil {
		return false, err
	}
	for _, p := range reg.primaries {
		if p.AccountCreationType() == CreationLink {
			return true, nil
		}
	}
	return false, nil
}

// UserExists indica si algún primary conoce credenciales para el username.
func (m *Manager) UserExists(ctx context.Context, username string) (bool, error) {
	reg, err := m.providers()
	if err != nil {
		return false, err
	}
	for _, p := range reg.primaries {
		ok, err := p.TestUserExists(ctx, username)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// UserCanAuthenticate indica si algún primary podría autenticar al username
// hoy. Solo mira datos de autenticación, no bloqueos externos.
func (m *Manager) UserCanAuthenticate(ctx context.Context, username string) (bool, error) {
	reg, err := m.providers()
	if err != nil {
		return false, err
	}
	for _, p := range reg.primaries {
		ok, err := p.TestUserCanAuthenticate(ctx, username)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// NormalizeUsername junta las normalizaciones de todos los primaries. Las
// variantes no deben mostrarse al usuario: pueden filtrar información
// privada (un email normalizado a username, por ejemplo).
func (m *Manager) NormalizeUsername(username string) ([]string, error) {
	reg, err := m.providers()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range reg.primaries {
		if n, ok := p.NormalizeUsername(username); ok && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// ─── Login ───

// BeginAuthentication arranca un login. El caller debió verificar
// CanAuthenticateNow antes; si no, esto es un error de lógica fatal.
func (m *Manager) BeginAuthentication(ctx context.Context, reqs []Request, returnToURL string) (*Response, error) {
	log := m.log.With(logger.Op("BeginAuthentication"))

	if !m.sess.CanSetUser() {
		clearState(ctx, m.sess, keyAuthnState)
		return nil, fmt.Errorf("auth: la autenticación no es posible ahora")
	}

	for _, r := range reqs {
		r.Meta().ReturnToURL = returnToURL
	}
	guess, _ := guessUsername(reqs)

	// Caso especial: login de una cuenta recién creada por ESTE manager.
	for _, r := range reqs {
		car, ok := r.(*CreatedAccountRequest)
		if !ok {
			continue
		}
		if !m.ownsCreatedAccountReq(car) {
			return nil, fmt.Errorf("auth: CreatedAccountRequest solo vale en el manager que creó la cuenta")
		}
		return m.loginCreatedAccount(ctx, car)
	}

	m.RemoveAuthenticationSessionData(ctx, "")

	reg, err := m.providers()
	if err != nil {
		clearState(ctx, m.sess, keyAuthnState)
		return nil, err
	}
	for _, pre := range reg.pres {
		if st := pre.TestForAuthentication(ctx, reqs); !st.Good {
			log.Debug("login rechazado en pre-autenticación", logger.Provider(pre.UniqueID()))
			ret := NewFail(st.Message)
			m.postAuthentication(ctx, &user.User{Name: guess}, ret)
			m.auditLogin(ctx, ret, nil, guess)
			metrics.LoginOutcomes.WithLabelValues(string(StatusFail)).Inc()
			return ret, nil
		}
	}

	state := authnState{
		Reqs:          reqs,
		ReturnToURL:   returnToURL,
		GuessUserName: guess,
	}
	// Preservar candidatos a vincular de un login fallido previo.
	for _, r := range reqs {
		if cfl, ok := r.(*CreateFromLoginRequest); ok {
			state.MaybeLink = cfl.MaybeLink
			break
		}
	}
	if err := saveState(ctx, m.sess, keyAuthnState, &state); err != nil {
		return nil, err
	}
	if err := m.sess.Persist(ctx); err != nil {
		return nil, fmt.Errorf("auth: persistir sesión: %w", err)
	}

	return m.ContinueAuthentication(ctx, reqs)
}

// loginCreatedAccount corta camino: la cuenta acaba de crearse así que la
// identidad ya está probada.
func (m *Manager) loginCreatedAccount(ctx context.Context, req *CreatedAccountRequest) (*Response, error) {
	canon, ok := user.Canonicalize(req.Meta().Username)
	if !ok {
		return nil, fmt.Errorf("auth: CreatedAccountRequest con username inválido %q", req.Meta().Username)
	}
	u, err := m.lookup.ByNameAuthoritative(ctx, canon)
	if err != nil {
		return nil, fmt.Errorf("auth: cargar cuenta recién creada %q: %w", canon, err)
	}
	if u.ID != req.UserID {
		return nil, fmt.Errorf("auth: id de %q es %q, se esperaba %q", canon, u.ID, req.UserID)
	}

	m.log.Info("login tras creación de cuenta", logger.UserName(u.Name))
	ret := NewPass(u.Name)
	if err := m.setSessionDataForUser(ctx, u, nil); err != nil {
		return nil, err
	}
	m.postAuthentication(ctx, u, ret)
	clearState(ctx, m.sess, keyAuthnState)
	m.auditLogin(ctx, ret, u, u.Name)
	metrics.LoginOutcomes.WithLabelValues(string(StatusPass)).Inc()
	return ret, nil
}

// ContinueAuthentication reanuda un login suspendido. Un error fatal en
// cualquier paso limpia el estado persistido antes de propagarse: una
// sesión trabada es peor que un flujo perdido.
func (m *Manager) ContinueAuthentication(ctx context.Context, reqs []Request) (*Response, error) {
	ret, err := m.continueAuthentication(ctx, reqs)
	if err != nil {
		clearState(ctx, m.sess, keyAuthnState)
	}
	return ret, err
}

func (m *Manager) continueAuthentication(ctx context.Context, reqs []Request) (*Response, error) {
	log := m.log.With(logger.Op("ContinueAuthentication"))

	if !m.sess.CanSetUser() {
		return nil, fmt.Errorf("auth: la autenticación no es posible ahora")
	}

	var state authnState
	found, err := loadState(ctx, m.sess, keyAuthnState, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewFail(NewMessage(msgNotInProgress)), nil
	}
	state.ContinueRequests = nil

	guess := state.GuessUserName
	for _, r := range reqs {
		r.Meta().ReturnToURL = state.ReturnToURL
	}

	reg, err := m.providers()
	if err != nil {
		return nil, err
	}

	var primaryRes *Response

	// Paso 1: elegir primary, llamándolos en orden hasta que uno acepte.
	if state.Primary == "" {
		guess, _ = guessUsername(reqs)
		state.GuessUserName = guess
		state.Reqs = reqs

		for _, p := range reg.primaries {
			id := p.UniqueID()
			res, err := p.BeginPrimaryAuthentication(ctx, reqs)
			if err != nil {
				return nil, fmt.Errorf("auth: %s.BeginPrimaryAuthentication: %w", id, err)
			}
			switch res.Status {
			case StatusPass:
				log.Debug("primary aceptó", logger.Provider(id))
				state.Primary = id
				primaryRes = res
			case StatusFail:
				log.Debug("login rechazado por primary", logger.Provider(id))
				if res.CreateRequest != nil || len(state.MaybeLink) > 0 {
					res.CreateRequest = &CreateFromLoginRequest{
						CreateRequest: res.CreateRequest,
						MaybeLink:     state.MaybeLink,
					}
				}
				m.postAuthentication(ctx, &user.User{Name: guess}, res)
				clearState(ctx, m.sess, keyAuthnState)
				m.auditLogin(ctx, res, nil, guess)
				metrics.LoginOutcomes.WithLabelValues(string(StatusFail)).Inc()
				return res, nil
			case StatusAbstain:
				continue
			case StatusRedirect, StatusUI:
				log.Debug("primary suspendió el flujo", logger.Provider(id), logger.String("status", string(res.Status)))
				fillRequests(res.NeededRequests, ActionLogin, guess, false)
				state.Primary = id
				state.ContinueRequests = res.NeededRequests
				if err := saveState(ctx, m.sess, keyAuthnState, &state); err != nil {
					return nil, err
				}
				metrics.FlowsSuspended.WithLabelValues(string(ActionLogin)).Inc()
				return res, nil
			default:
				return nil, fmt.Errorf("auth: %s.BeginPrimaryAuthentication devolvió %q", id, res.Status)
			}
			if primaryRes != nil {
				break
			}
		}
		if state.Primary == "" {
			log.Debug("ningún primary aceptó el login")
			ret := NewFail(NewMessage(msgNoPrimary))
			m.postAuthentication(ctx, &user.User{Name: guess}, ret)
			clearState(ctx, m.sess, keyAuthnState)
			m.auditLogin(ctx, ret, nil, guess)
			metrics.LoginOutcomes.WithLabelValues(string(StatusFail)).Inc()
			return ret, nil
		}
	} else if state.PrimaryPass == "" {
		// Paso 1b: reanudar el primary ya elegido.
		p := reg.primaryByID(state.Primary)
		if p == nil {
			// ¿Cambió la configuración? Que empiecen de nuevo.
			ret := NewFail(NewMessage(msgNotInProgress))
			m.postAuthentication(ctx, &user.User{Name: guess}, ret)
			clearState(ctx, m.sess, keyAuthnState)
			return ret, nil
		}
		id := p.UniqueID()
		res, err := p.ContinuePrimaryAuthentication(ctx, reqs)
		if err != nil {
			return nil, fmt.Errorf("auth: %s.ContinuePrimaryAuthentication: %w", id, err)
		}
		switch res.Status {
		case StatusPass:
			log.Debug("primary aceptó", logger.Provider(id))
			primaryRes = res
		case StatusFail:
			log.Debug("login rechazado por primary", logger.Provider(id))
			if res.CreateRequest != nil || len(state.MaybeLink) > 0 {
				res.CreateRequest = &CreateFromLoginRequest{
					CreateRequest: res.CreateRequest,
					MaybeLink:     state.MaybeLink,
				}
			}
			m.postAuthentication(ctx, &user.User{Name: guess}, res)
			clearState(ctx, m.sess, keyAuthnState)
			m.auditLogin(ctx, res, nil, guess)
			metrics.LoginOutcomes.WithLabelValues(string(StatusFail)).Inc()
			return res, nil
		case StatusRedirect, StatusUI:
			log.Debug("primary volvió a suspender", logger.Provider(id))
			fillRequests(res.NeededRequests, ActionLogin, guess, false)
			state.ContinueRequests = res.NeededRequests
			if err := saveState(ctx, m.sess, keyAuthnState, &state); err != nil {
				return nil, err
			}
			metrics.FlowsSuspended.WithLabelValues(string(ActionLogin)).Inc()
			return res, nil
		default:
			return nil, fmt.Errorf("auth: %s.ContinuePrimaryAuthentication devolvió %q", id, res.Status)
		}
	} else {
		// Reanudando en medio de los secondaries: el PASS ya está hecho.
		primaryRes = NewPass(state.PrimaryPass)
	}

	// Paso 1c: PASS sin username — credencial válida sin cuenta local.
	if primaryRes.Username == "" {
		return m.restartIntoLink(ctx, reg, &state, primaryRes)
	}

	// Paso 2: materializar el usuario, autocreándolo si hace falta.
	canon, okName := user.Canonicalize(primaryRes.Username)
	if !okName {
		return nil, fmt.Errorf("auth: el primary %q devolvió un username inválido: %q", state.Primary, primaryRes.Username)
	}
	u, err := m.lookup.ByNameAuthoritative(ctx, canon)
	if errors.Is(err, user.ErrNotFound) {
		log.Info("autocreando usuario en login", logger.UserName(canon), logger.Provider(state.Primary))
		created, st, aerr := m.AutoCreateUser(ctx, canon, state.Primary, false)
		if aerr != nil {
			return nil, aerr
		}
		if !st.Good {
			ret := NewFail(st.Message)
			m.postAuthentication(ctx, &user.User{Name: canon}, ret)
			clearState(ctx, m.sess, keyAuthnState)
			m.auditLogin(ctx, ret, nil, canon)
			metrics.LoginOutcomes.WithLabelValues(string(StatusFail)).Inc()
			return ret, nil
		}
		u = created
	} else if err != nil {
		return nil, fmt.Errorf("auth: cargar usuario %q: %w", canon, err)
	}
	state.PrimaryPass = u.Name

	// Paso 3: cadena de secondaries. Los que arrancan reciben los reqs
	// del begin, no los del último continue.
	if state.Secondary == nil {
		state.Secondary = map[string]bool{}
	}
	beginReqs := state.Reqs
	for _, sp := range reg.secondaries {
		id := sp.UniqueID()
		done, started := state.Secondary[id]

		var res *Response
		var op string
		switch {
		case !started:
			op = "BeginSecondaryAuthentication"
			res, err = sp.BeginSecondaryAuthentication(ctx, u, beginReqs)
		case !done:
			op = "ContinueSecondaryAuthentication"
			res, err = sp.ContinueSecondaryAuthentication(ctx, u, reqs)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("auth: %s.%s: %w", id, op, err)
		}
		switch res.Status {
		case StatusPass, StatusAbstain:
			state.Secondary[id] = true
		case StatusFail:
			log.Debug("login rechazado por secondary", logger.Provider(id))
			m.postAuthentication(ctx, u, res)
			clearState(ctx, m.sess, keyAuthnState)
			m.auditLogin(ctx, res, u, u.Name)
			metrics.LoginOutcomes.WithLabelValues(string(StatusFail)).Inc()
			return res, nil
		case StatusRedirect, StatusUI:
			log.Debug("secondary suspendió el flujo", logger.Provider(id))
			fillRequests(res.NeededRequests, ActionLogin, u.Name, false)
			state.Secondary[id] = false
			state.ContinueRequests = res.NeededRequests
			if err := saveState(ctx, m.sess, keyAuthnState, &state); err != nil {
				return nil, err
			}
			metrics.FlowsSuspended.WithLabelValues(string(ActionLogin)).Inc()
			return res, nil
		default:
			return nil, fmt.Errorf("auth: %s.%s devolvió %q", id, op, res.Status)
		}
	}

	// Paso 4: autenticación completa. Commitear la sesión y limpiar.
	remember := false
	switch m.cfg.RememberPolicy {
	case RememberAlways:
		remember = true
	case RememberNever:
		remember = false
	default:
		for _, r := range beginReqs {
			if rm, ok := r.(*RememberMeRequest); ok {
				remember = rm.RememberMe
				break
			}
		}
	}
	if err := m.setSessionDataForUser(ctx, u, &remember); err != nil {
		return nil, err
	}
	ret := NewPass(u.Name)
	m.postAuthentication(ctx, u, ret)
	clearState(ctx, m.sess, keyAuthnState)
	m.RemoveAuthenticationSessionData(ctx, "")
	m.auditLogin(ctx, ret, u, u.Name)
	metrics.LoginOutcomes.WithLabelValues(string(StatusPass)).Inc()
	log.Info("login exitoso", logger.UserName(u.Name))
	return ret, nil
}

// restartIntoLink traduce un PASS-sin-usuario a RESTART: la credencial es
// válida contra el tercero pero no mapea a ninguna cuenta local, así que
// se le ofrece al caller crear o vincular. El estado del flujo se limpia;
// el CreateFromLoginRequest devuelto arrastra lo acumulado.
func (m *Manager) restartIntoLink(ctx context.Context, reg *registry, state *authnState, res *Response) (*Response, error) {
	p := reg.primaryByID(state.Primary)
	if p == nil {
		ret := NewFail(NewMessage(msgNotInProgress))
		clearState(ctx, m.sess, keyAuthnState)
		return ret, nil
	}

	msg := msgNoLocalGeneration
	if p.AccountCreationType() == CreationLink && res.LinkRequest != nil && hasLinkConfirmer(reg) {
		state.MaybeLink = addMaybeLink(state.MaybeLink, res.LinkRequest)
		msg = msgNoLocalLink
	}
	m.log.Debug("primary aceptó sin usuario local", logger.Provider(state.Primary))

	ret := NewRestart(NewMessage(msg))
	ret.NeededRequests = m.requestsFromProviders(primariesAndSecondaries(reg), ActionLogin, "")
	if res.CreateRequest != nil || len(state.MaybeLink) > 0 {
		cfl := &CreateFromLoginRequest{CreateRequest: res.CreateRequest, MaybeLink: state.MaybeLink}
		ret.CreateRequest = cfl
		ret.NeededRequests = append(ret.NeededRequests, cfl)
	}
	fillRequests(ret.NeededRequests, ActionLogin, "", true)

	clearState(ctx, m.sess, keyAuthnState)
	metrics.LoginOutcomes.WithLabelValues(string(StatusRestart)).Inc()
	return ret, nil
}

// hasLinkConfirmer indica si algún secondary sabe ofrecer vinculación de
// credenciales acumuladas. Sin uno, hablar de "vincular" confunde.
func hasLinkConfirmer(reg *registry) bool {
	for _, s := range reg.secondaries {
		if lc, ok := s.(LinkConfirmer); ok && lc.ConfirmsLinks() {
			return true
		}
	}
	return false
}

// LinkConfirmer lo implementa un secondary capaz de completar la
// vinculación de credenciales externas acumuladas durante un login.
type LinkConfirmer interface {
	ConfirmsLinks() bool
}

// ─── Internos compartidos ───

func (m *Manager) ownsCreatedAccountReq(req *CreatedAccountRequest) bool {
	for _, have := range m.createdAccountReqs {
		if have == req {
			return true
		}
	}
	return false
}

// setSessionDataForUser commitea el principal en la sesión: regenera el id
// contra fixation, invalida tokens derivados y deja las marcas de último
// login para el gate de operaciones sensibles.
func (m *Manager) setSessionDataForUser(ctx context.Context, u *user.User, remember *bool) error {
	s := m.sess
	if err := s.ResetID(ctx); err != nil {
		return fmt.Errorf("auth: regenerar id de sesión: %w", err)
	}
	if err := s.ResetAllTokens(ctx); err != nil {
		return fmt.Errorf("auth: invalidar tokens de sesión: %w", err)
	}
	if s.CanSetUser() {
		if err := s.SetUser(ctx, session.Principal{ID: u.ID, Name: u.Name}); err != nil {
			return fmt.Errorf("auth: fijar principal: %w", err)
		}
		if remember != nil {
			if err := s.SetRemember(ctx, *remember); err != nil {
				return fmt.Errorf("auth: marcar remember: %w", err)
			}
		}
	}
	if err := s.Set(ctx, keyLastAuthID, u.ID); err != nil {
		return fmt.Errorf("auth: guardar last auth id: %w", err)
	}
	if err := s.Set(ctx, keyLastAuthTS, strconv.FormatInt(m.now().Unix(), 10)); err != nil {
		return fmt.Errorf("auth: guardar last auth ts: %w", err)
	}
	if err := s.Persist(ctx); err != nil {
		return fmt.Errorf("auth: persistir sesión: %w", err)
	}
	return nil
}

// postAuthentication notifica la decisión terminal a todos los providers.
func (m *Manager) postAuthentication(ctx context.Context, u *user.User, res *Response) {
	for _, p := range m.reg.all() {
		p.PostAuthentication(ctx, u, res)
	}
}

// auditLogin emite el evento de auditoría de una decisión terminal.
func (m *Manager) auditLogin(ctx context.Context, res *Response, u *user.User, username string) {
	fields := map[string]any{
		"status":   string(res.Status),
		"username": username,
	}
	if u != nil {
		fields["user_id"] = u.ID
	}
	if res.Message != nil {
		fields["message"] = res.Message.Key
	}
	event := audit.EventLoginFail
	if res.Status == StatusPass {
		event = audit.EventLoginSuccess
	}
	m.audit(ctx, event, fields)
}
