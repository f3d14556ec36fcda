package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authflow/internal/audit"
	"github.com/dropDatabas3/authflow/internal/lock"
	"github.com/dropDatabas3/authflow/internal/metrics"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/session"
	"github.com/dropDatabas3/authflow/internal/user"
)

// accountLockKey deriva la clave del lock de creación del username ya
// canonicalizado, para que dos formas del mismo nombre compartan lock.
func accountLockKey(canonical string) string {
	sum := md5.Sum([]byte(canonical))
	return "account:" + hex.EncodeToString(sum[:])
}

// authorizeCreateAccount es el chequeo de autorización de creación. Se
// corre barato en el begin (para la UX del formulario) y de nuevo bajo
// lock en el continue, donde es la palabra final.
func (m *Manager) authorizeCreateAccount(creator session.Principal) StatusValue {
	if m.cfg.ReadOnly {
		return StatusFatal(msgReadOnly)
	}
	if !m.cfg.EnableCreation {
		return StatusFatal(msgCreateDisabled)
	}
	_ = creator
	return StatusGood()
}

// CanCreateAccount evalúa si ese username en particular podría crearse:
// capacidad de los primaries, unicidad, validez del nombre y el veto de
// testUserForCreation en los tres tiers.
func (m *Manager) CanCreateAccount(ctx context.Context, username string) (StatusValue, error) {
	can, err := m.CanCreateAccounts()
	if err != nil {
		return StatusValue{}, err
	}
	if !can {
		return StatusFatal(msgCreateDisabled), nil
	}

	canon, ok := user.Canonicalize(username)
	if !ok {
		return StatusFatal(msgNoName), nil
	}

	exists, err := m.UserExists(ctx, canon)
	if err != nil {
		return StatusValue{}, err
	}
	if exists {
		return StatusFatal(msgUserExists), nil
	}
	if _, err := m.users.GetByNameLatest(ctx, canon); err == nil {
		return StatusFatal(msgUserExists), nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return StatusValue{}, fmt.Errorf("auth: verificar existencia de %q: %w", canon, err)
	}

	reg, err := m.providers()
	if err != nil {
		return StatusValue{}, err
	}
	candidate := &user.User{Name: canon, CanonicalName: canon}
	for _, p := range reg.all() {
		if st := p.TestUserForCreation(ctx, candidate, "", nil); !st.Good {
			return st, nil
		}
	}
	return StatusGood(), nil
}

// BeginAccountCreation arranca la creación de una cuenta. creator es el
// principal que la pide (el cero es un visitante creándose a sí mismo).
// El caller debió verificar CanCreateAccounts antes.
func (m *Manager) BeginAccountCreation(ctx context.Context, creator session.Principal, reqs []Request, returnToURL string) (*Response, error) {
	log := m.log.With(logger.Op("BeginAccountCreation"))

	can, err := m.CanCreateAccounts()
	if err != nil {
		clearState(ctx, m.sess, keyCreateState)
		return nil, err
	}
	if !can {
		clearState(ctx, m.sess, keyCreateState)
		return nil, fmt.Errorf("auth: la creación de cuentas no es posible")
	}

	username, _ := guessUsername(reqs)
	canon, okName := user.Canonicalize(username)
	if username == "" || !okName {
		log.Debug("creación sin username")
		return NewFail(NewMessage(msgNoName)), nil
	}

	if st := m.authorizeCreateAccount(creator); !st.Good {
		log.Debug("creator sin autorización", logger.Creator(creator.Name), logger.UserName(canon))
		return NewFail(st.Message), nil
	}

	st, err := m.CanCreateAccount(ctx, canon)
	if err != nil {
		return nil, err
	}
	if !st.Good {
		log.Debug("la cuenta no puede crearse", logger.UserName(canon), logger.Creator(creator.Name))
		return NewFail(st.Message), nil
	}

	for _, r := range reqs {
		r.Meta().Username = canon
		r.Meta().ReturnToURL = returnToURL
	}

	m.RemoveAuthenticationSessionData(ctx, "")

	state := createState{
		Username:    canon,
		CreatorID:   creator.ID,
		CreatorName: creator.Name,
		Reqs:        reqs,
		ReturnToURL: returnToURL,
	}

	// Caso especial: convertir un login fallido en creación.
	for _, r := range reqs {
		cfl, ok := r.(*CreateFromLoginRequest)
		if !ok {
			continue
		}
		state.MaybeLink = cfl.MaybeLink
		if cfl.CreateRequest != nil {
			reqs = append(reqs, cfl.CreateRequest)
			state.Reqs = append(state.Reqs, cfl.CreateRequest)
		}
		break
	}

	if err := saveState(ctx, m.sess, keyCreateState, &state); err != nil {
		return nil, err
	}
	if err := m.sess.Persist(ctx); err != nil {
		return nil, fmt.Errorf("auth: persistir sesión: %w", err)
	}

	return m.ContinueAccountCreation(ctx, reqs)
}

// ContinueAccountCreation reanuda una creación suspendida. Los errores
// fatales limpian el estado antes de propagarse; la derrota en el lock
// NO lo limpia, porque el estado le pertenece al proceso que ganó.
func (m *Manager) ContinueAccountCreation(ctx context.Context, reqs []Request) (*Response, error) {
	ret, err := m.continueAccountCreation(ctx, reqs)
	if err != nil {
		clearState(ctx, m.sess, keyCreateState)
	}
	return ret, err
}

func (m *Manager) continueAccountCreation(ctx context.Context, reqs []Request) (*Response, error) {
	log := m.log.With(logger.Op("ContinueAccountCreation"))

	can, err := m.CanCreateAccounts()
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("auth: la creación de cuentas no es posible")
	}

	var state createState
	found, err := loadState(ctx, m.sess, keyCreateState, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewFail(NewMessage(msgCreateNotInProg)), nil
	}
	state.ContinueRequests = nil

	// Paso 0: preparar y validar la entrada.
	canon, okName := user.Canonicalize(state.Username)
	if !okName {
		log.Debug("username inválido en estado", logger.UserName(state.Username))
		clearState(ctx, m.sess, keyCreateState)
		return NewFail(NewMessage(msgNoName)), nil
	}

	creator, err := m.resolveCreator(ctx, &state)
	if err != nil {
		return nil, err
	}

	// Evitar carreras de creación en doble submit.
	release, err := m.locks.Acquire(ctx, accountLockKey(canon), m.cfg.LockTTL)
	if errors.Is(err, lock.ErrContended) {
		// No limpiar el estado: es del proceso que ganó la carrera.
		log.Debug("lock de creación ocupado", logger.UserName(canon), logger.Creator(creator.Name))
		metrics.LockContention.Inc()
		return NewFail(NewMessage(msgUserInProgress)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: adquirir lock de creación: %w", err)
	}
	defer func() { _ = release(ctx) }()

	if st := m.authorizeCreateAccount(session.Principal{ID: state.CreatorID, Name: state.CreatorName}); !st.Good {
		log.Debug("creator sin autorización", logger.Creator(creator.Name), logger.UserName(canon))
		ret := NewFail(st.Message)
		m.postAccountCreation(ctx, &user.User{Name: canon}, creator, ret)
		clearState(ctx, m.sess, keyCreateState)
		return ret, nil
	}

	// Chequeo de existencia con lectura fuerte, ya bajo lock.
	u, err := m.users.GetByNameLatest(ctx, canon)
	switch {
	case err == nil:
		if state.UserID == "" {
			log.Debug("el usuario ya existe", logger.UserName(canon), logger.Creator(creator.Name))
			ret := NewFail(NewMessage(msgUserExists))
			m.postAccountCreation(ctx, u, creator, ret)
			clearState(ctx, m.sess, keyCreateState)
			return ret, nil
		}
		if u.ID != state.UserID {
			return nil, fmt.Errorf("auth: %q existe con id %q, se esperaba %q", canon, u.ID, state.UserID)
		}
	case errors.Is(err, user.ErrNotFound):
		if state.UserID != "" {
			return nil, fmt.Errorf("auth: %q debería existir con id %q y no está", canon, state.UserID)
		}
		u = &user.User{Name: canon, CanonicalName: canon}
	default:
		return nil, fmt.Errorf("auth: verificar existencia de %q: %w", canon, err)
	}
	applyUserData(u, state.Reqs)

	for _, r := range reqs {
		r.Meta().Username = canon
		r.Meta().ReturnToURL = state.ReturnToURL
	}

	reg, err := m.providers()
	if err != nil {
		return nil, err
	}

	// Pre-tests de creación, una sola vez por flujo, en los tres tiers.
	if !state.RanPreTests {
		for _, p := range reg.all() {
			if st := p.TestForAccountCreation(ctx, u, creator, reqs); !st.Good {
				log.Debug("creación vetada en pre-tests", logger.Provider(p.UniqueID()), logger.UserName(canon))
				ret := NewFail(st.Message)
				m.postAccountCreation(ctx, u, creator, ret)
				clearState(ctx, m.sess, keyCreateState)
				return ret, nil
			}
		}
		state.RanPreTests = true
	}

	var primaryRes *Response

	// Paso 1: elegir primary. Los de tipo none se saltean enteros.
	if state.Primary == "" {
		for _, p := range reg.primaries {
			if p.AccountCreationType() == CreationNone {
				continue
			}
			id := p.UniqueID()
			res, err := p.BeginPrimaryAccountCreation(ctx, u, creator, reqs)
			if err != nil {
				return nil, fmt.Errorf("auth: %s.BeginPrimaryAccountCreation: %w", id, err)
			}
			switch res.Status {
			case StatusPass:
				log.Debug("primary aceptó la creación", logger.Provider(id), logger.UserName(canon))
				state.Primary = id
				primaryRes = res
			case StatusFail:
				log.Debug("primary rechazó la creación", logger.Provider(id), logger.UserName(canon))
				m.postAccountCreation(ctx, u, creator, res)
				clearState(ctx, m.sess, keyCreateState)
				return res, nil
			case StatusAbstain:
				continue
			case StatusRedirect, StatusUI:
				log.Debug("primary suspendió la creación", logger.Provider(id), logger.UserName(canon))
				fillRequests(res.NeededRequests, ActionCreate, "", false)
				state.Primary = id
				state.ContinueRequests = res.NeededRequests
				if err := saveState(ctx, m.sess, keyCreateState, &state); err != nil {
					return nil, err
				}
				metrics.FlowsSuspended.WithLabelValues(string(ActionCreate)).Inc()
				return res, nil
			default:
				return nil, fmt.Errorf("auth: %s.BeginPrimaryAccountCreation devolvió %q", id, res.Status)
			}
			if primaryRes != nil {
				break
			}
		}
		if state.Primary == "" {
			log.Debug("ningún primary aceptó la creación", logger.UserName(canon))
			ret := NewFail(NewMessage(msgCreateNoPrimary))
			m.postAccountCreation(ctx, u, creator, ret)
			clearState(ctx, m.sess, keyCreateState)
			return ret, nil
		}
	} else if !state.PrimaryPassed {
		p := reg.primaryByID(state.Primary)
		if p == nil {
			// ¿Cambió la configuración? Que empiecen de nuevo.
			ret := NewFail(NewMessage(msgCreateNotInProg))
			m.postAccountCreation(ctx, u, creator, ret)
			clearState(ctx, m.sess, keyCreateState)
			return ret, nil
		}
		id := p.UniqueID()
		res, err := p.ContinuePrimaryAccountCreation(ctx, u, creator, reqs)
		if err != nil {
			return nil, fmt.Errorf("auth: %s.ContinuePrimaryAccountCreation: %w", id, err)
		}
		switch res.Status {
		case StatusPass:
			log.Debug("primary aceptó la creación", logger.Provider(id), logger.UserName(canon))
			primaryRes = res
		case StatusFail:
			log.Debug("primary rechazó la creación", logger.Provider(id), logger.UserName(canon))
			m.postAccountCreation(ctx, u, creator, res)
			clearState(ctx, m.sess, keyCreateState)
			return res, nil
		case StatusRedirect, StatusUI:
			log.Debug("primary volvió a suspender la creación", logger.Provider(id))
			fillRequests(res.NeededRequests, ActionCreate, "", false)
			state.ContinueRequests = res.NeededRequests
			if err := saveState(ctx, m.sess, keyCreateState, &state); err != nil {
				return nil, err
			}
			metrics.FlowsSuspended.WithLabelValues(string(ActionCreate)).Inc()
			return res, nil
		default:
			return nil, fmt.Errorf("auth: %s.ContinuePrimaryAccountCreation devolvió %q", id, res.Status)
		}
	}
	state.PrimaryPassed = true

	// Paso 2: insertar la cuenta, si este flujo todavía no lo hizo.
	if state.UserID == "" {
		log.Info("creando usuario", logger.UserName(canon), logger.Creator(creator.Name))
		if err := m.users.Create(ctx, u); err != nil {
			if errors.Is(err, user.ErrExists) {
				ret := NewFail(NewMessage(msgUserExists))
				m.postAccountCreation(ctx, u, creator, ret)
				clearState(ctx, m.sess, keyCreateState)
				return ret, nil
			}
			return nil, fmt.Errorf("auth: insertar usuario %q: %w", canon, err)
		}
		if err := m.setDefaultUserOptions(ctx, u); err != nil {
			return nil, err
		}
		state.UserID = u.ID

		// Avisar al provider ganador; puede personalizar el subtipo del
		// asiento de auditoría.
		logSubtype := ""
		if p := reg.primaryByID(state.Primary); p != nil {
			logSubtype, err = p.FinishAccountCreation(ctx, u, creator, primaryRes)
			if err != nil {
				return nil, fmt.Errorf("auth: %s.FinishAccountCreation: %w", state.Primary, err)
			}
		}
		m.auditAccountCreation(ctx, u, creator, logSubtype, state.Reqs)
		metrics.AccountCreations.WithLabelValues("manual").Inc()
	}

	// Paso 3: cadena de secondaries. Acá un FAIL es un provider roto:
	// los secondaries vetan en testForAccountCreation, no a mitad del
	// flujo con la cuenta ya insertada.
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
			op = "BeginSecondaryAccountCreation"
			res, err = sp.BeginSecondaryAccountCreation(ctx, u, creator, beginReqs)
		case !done:
			op = "ContinueSecondaryAccountCreation"
			res, err = sp.ContinueSecondaryAccountCreation(ctx, u, creator, reqs)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("auth: %s.%s: %w", id, op, err)
		}
		switch res.Status {
		case StatusPass, StatusAbstain:
			state.Secondary[id] = true
		case StatusRedirect, StatusUI:
			log.Debug("secondary suspendió la creación", logger.Provider(id))
			fillRequests(res.NeededRequests, ActionCreate, "", false)
			state.Secondary[id] = false
			state.ContinueRequests = res.NeededRequests
			if err := saveState(ctx, m.sess, keyCreateState, &state); err != nil {
				return nil, err
			}
			metrics.FlowsSuspended.WithLabelValues(string(ActionCreate)).Inc()
			return res, nil
		case StatusFail:
			return nil, fmt.Errorf(
				"auth: %s.%s devolvió FAIL; los secondaries no pueden rechazar una creación, eso va en TestForAccountCreation", id, op)
		default:
			return nil, fmt.Errorf("auth: %s.%s devolvió %q", id, op, res.Status)
		}
	}

	// Listo: acuñar la credencial de un solo uso para el primer login.
	loginReq := &CreatedAccountRequest{
		RequestMeta: RequestMeta{Action: ActionLogin, Username: u.Name},
		UserID:      u.ID,
	}
	m.createdAccountReqs = append(m.createdAccountReqs, loginReq)

	ret := NewPass(u.Name)
	ret.LoginRequest = loginReq

	log.Info("creación de cuenta exitosa", logger.UserName(u.Name), logger.Creator(creator.Name))
	m.postAccountCreation(ctx, u, creator, ret)
	clearState(ctx, m.sess, keyCreateState)
	m.RemoveAuthenticationSessionData(ctx, "")
	return ret, nil
}

// resolveCreator materializa al creator guardado en el estado.
func (m *Manager) resolveCreator(ctx context.Context, state *createState) (*user.User, error) {
	if state.CreatorID == "" {
		return &user.User{Name: state.CreatorName}, nil
	}
	u, err := m.users.GetByID(ctx, state.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("auth: cargar creator %q: %w", state.CreatorID, err)
	}
	return u, nil
}

// applyUserData vuelca los datos iniciales de cuenta de un UserDataRequest
// sobre el usuario por crear.
func applyUserData(u *user.User, reqs []Request) {
	for _, r := range reqs {
		ud, ok := r.(*UserDataRequest)
		if !ok {
			continue
		}
		if ud.Language != "" {
			u.Language = ud.Language
		}
		if ud.Variant != "" {
			u.Variant = ud.Variant
		}
		return
	}
}

// setDefaultUserOptions deja las opciones por defecto y el token del que
// derivan las credenciales secundarias.
func (m *Manager) setDefaultUserOptions(ctx context.Context, u *user.User) error {
	if u.Token == "" {
		u.Token = uuid.NewString()
	}
	if err := m.users.SaveOptions(ctx, u); err != nil {
		return fmt.Errorf("auth: guardar opciones de %q: %w", u.Name, err)
	}
	return nil
}

// postAccountCreation notifica la decisión terminal de una creación.
func (m *Manager) postAccountCreation(ctx context.Context, u, creator *user.User, res *Response) {
	for _, p := range m.reg.all() {
		p.PostAccountCreation(ctx, u, creator, res)
	}
}

// auditAccountCreation emite el asiento de creación con actor, target,
// motivo y subtipo.
func (m *Manager) auditAccountCreation(ctx context.Context, u, creator *user.User, subtype string, reqs []Request) {
	if subtype == "" {
		if creator == nil || creator.ID == "" {
			subtype = "create"
		} else {
			subtype = "create2"
		}
	}
	reason := ""
	for _, r := range reqs {
		if cr, ok := r.(*CreationReasonRequest); ok {
			reason = cr.Reason
			break
		}
	}
	fields := map[string]any{
		"username": u.Name,
		"user_id":  u.ID,
		"subtype":  subtype,
	}
	if creator != nil && creator.Name != "" {
		fields["creator"] = creator.Name
	}
	if reason != "" {
		fields["reason"] = reason
	}
	m.audit(ctx, audit.EventAccountCreate, fields)
}
