package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/authflow/internal/audit"
	"github.com/dropDatabas3/authflow/internal/metrics"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/user"
)

// BeginAccountLink arranca la vinculación de una cuenta existente a una
// credencial externa. Solo participan los primaries de tipo link. El
// caller debió verificar CanLinkAccounts antes.
func (m *Manager) BeginAccountLink(ctx context.Context, username string, reqs []Request, returnToURL string) (*Response, error) {
	log := m.log.With(logger.Op("BeginAccountLink"))
	clearState(ctx, m.sess, keyLinkState)

	can, err := m.CanLinkAccounts()
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("auth: la vinculación de cuentas no es posible")
	}

	canon, okName := user.Canonicalize(username)
	if !okName {
		return NewFail(NewMessage(msgNoName)), nil
	}
	u, err := m.lookup.ByNameAuthoritative(ctx, canon)
	if errors.Is(err, user.ErrNotFound) {
		return NewFail(NewMessage(msgUserDoesNotExist, canon)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: cargar usuario %q: %w", canon, err)
	}

	for _, r := range reqs {
		r.Meta().Username = u.Name
		r.Meta().ReturnToURL = returnToURL
	}

	m.RemoveAuthenticationSessionData(ctx, "")

	reg, err := m.providers()
	if err != nil {
		return nil, err
	}
	for _, pre := range reg.pres {
		if st := pre.TestForAccountLink(ctx, u); !st.Good {
			log.Debug("vinculación vetada por pre-provider", logger.Provider(pre.UniqueID()), logger.UserName(u.Name))
			ret := NewFail(st.Message)
			m.postAccountLink(ctx, u, ret)
			return ret, nil
		}
	}

	state := linkState{
		Username:    u.Name,
		UserID:      u.ID,
		ReturnToURL: returnToURL,
	}

	for _, p := range reg.primaries {
		if p.AccountCreationType() != CreationLink {
			continue
		}
		id := p.UniqueID()
		res, err := p.BeginPrimaryAccountLink(ctx, u, reqs)
		if err != nil {
			return nil, fmt.Errorf("auth: %s.BeginPrimaryAccountLink: %w", id, err)
		}
		switch res.Status {
		case StatusPass:
			log.Info("cuenta vinculada", logger.UserName(u.Name), logger.Provider(id))
			m.postAccountLink(ctx, u, res)
			m.audit(ctx, audit.EventAccountLink, map[string]any{
				"username": u.Name,
				"user_id":  u.ID,
				"provider": id,
			})
			return res, nil
		case StatusFail:
			log.Debug("vinculación rechazada", logger.UserName(u.Name), logger.Provider(id))
			m.postAccountLink(ctx, u, res)
			return res, nil
		case StatusAbstain:
			continue
		case StatusRedirect, StatusUI:
			log.Debug("primary suspendió la vinculación", logger.Provider(id))
			fillRequests(res.NeededRequests, ActionLink, u.Name, false)
			state.Primary = id
			state.ContinueRequests = res.NeededRequests
			if err := saveState(ctx, m.sess, keyLinkState, &state); err != nil {
				return nil, err
			}
			if err := m.sess.Persist(ctx); err != nil {
				return nil, fmt.Errorf("auth: persistir sesión: %w", err)
			}
			metrics.FlowsSuspended.WithLabelValues(string(ActionLink)).Inc()
			return res, nil
		default:
			return nil, fmt.Errorf("auth: %s.BeginPrimaryAccountLink devolvió %q", id, res.Status)
		}
	}

	log.Debug("ningún primary aceptó la vinculación", logger.UserName(u.Name))
	ret := NewFail(NewMessage(msgLinkNoPrimary))
	m.postAccountLink(ctx, u, ret)
	return ret, nil
}

// ContinueAccountLink reanuda una vinculación suspendida: el primary
// elegido quedó fijado en el estado y es el único que se re-invoca.
func (m *Manager) ContinueAccountLink(ctx context.Context, reqs []Request) (*Response, error) {
	ret, err := m.continueAccountLink(ctx, reqs)
	if err != nil {
		clearState(ctx, m.sess, keyLinkState)
	}
	return ret, err
}

func (m *Manager) continueAccountLink(ctx context.Context, reqs []Request) (*Response, error) {
	log := m.log.With(logger.Op("ContinueAccountLink"))

	can, err := m.CanLinkAccounts()
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, fmt.Errorf("auth: la vinculación de cuentas no es posible")
	}

	var state linkState
	found, err := loadState(ctx, m.sess, keyLinkState, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewFail(NewMessage(msgLinkNotInProgress)), nil
	}
	state.ContinueRequests = nil

	canon, okName := user.Canonicalize(state.Username)
	if !okName {
		clearState(ctx, m.sess, keyLinkState)
		return NewFail(NewMessage(msgNoName)), nil
	}
	u, err := m.lookup.ByNameAuthoritative(ctx, canon)
	if err != nil {
		return nil, fmt.Errorf("auth: cargar usuario %q: %w", canon, err)
	}
	if u.ID != state.UserID {
		return nil, fmt.Errorf("auth: %q es válido pero id %q != %q", canon, u.ID, state.UserID)
	}

	for _, r := range reqs {
		r.Meta().Username = state.Username
		r.Meta().ReturnToURL = state.ReturnToURL
	}

	reg, err := m.providers()
	if err != nil {
		return nil, err
	}
	p := reg.primaryByID(state.Primary)
	if p == nil {
		// ¿Cambió la configuración? Que empiecen de nuevo.
		ret := NewFail(NewMessage(msgLinkNotInProgress))
		m.postAccountLink(ctx, u, ret)
		clearState(ctx, m.sess, keyLinkState)
		return ret, nil
	}
	id := p.UniqueID()
	res, err := p.ContinuePrimaryAccountLink(ctx, u, reqs)
	if err != nil {
		return nil, fmt.Errorf("auth: %s.ContinuePrimaryAccountLink: %w", id, err)
	}
	switch res.Status {
	case StatusPass:
		log.Info("cuenta vinculada", logger.UserName(u.Name), logger.Provider(id))
		m.postAccountLink(ctx, u, res)
		clearState(ctx, m.sess, keyLinkState)
		m.audit(ctx, audit.EventAccountLink, map[string]any{
			"username": u.Name,
			"user_id":  u.ID,
			"provider": id,
		})
		return res, nil
	case StatusFail:
		log.Debug("vinculación rechazada", logger.UserName(u.Name), logger.Provider(id))
		m.postAccountLink(ctx, u, res)
		clearState(ctx, m.sess, keyLinkState)
		return res, nil
	case StatusRedirect, StatusUI:
		log.Debug("primary volvió a suspender la vinculación", logger.Provider(id))
		fillRequests(res.NeededRequests, ActionLink, u.Name, false)
		state.ContinueRequests = res.NeededRequests
		if err := saveState(ctx, m.sess, keyLinkState, &state); err != nil {
			return nil, err
		}
		metrics.FlowsSuspended.WithLabelValues(string(ActionLink)).Inc()
		return res, nil
	default:
		return nil, fmt.Errorf("auth: %s.ContinuePrimaryAccountLink devolvió %q", id, res.Status)
	}
}

// postAccountLink notifica la decisión terminal a pres y primaries, los
// tiers que participan de la vinculación.
func (m *Manager) postAccountLink(ctx context.Context, u *user.User, res *Response) {
	for _, p := range m.reg.pres {
		p.PostAccountLink(ctx, u, res)
	}
	for _, p := range m.reg.primaries {
		p.PostAccountLink(ctx, u, res)
	}
}
