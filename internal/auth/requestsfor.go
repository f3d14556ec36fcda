package auth

import (
	"context"
	"fmt"
)

// requestSource es un provider junto con su tier, porque el merge trata
// distinto a los requests que vienen de un primary.
type requestSource struct {
	provider Provider
	primary  bool
}

func allTiers(r *registry) []requestSource {
	var out []requestSource
	for _, p := range r.pres {
		out = append(out, requestSource{p, false})
	}
	return append(out, primariesAndSecondaries(r)...)
}

func primariesAndSecondaries(r *registry) []requestSource {
	var out []requestSource
	for _, p := range r.primaries {
		out = append(out, requestSource{p, true})
	}
	for _, p := range r.secondaries {
		out = append(out, requestSource{p, false})
	}
	return out
}

func linkPrimaries(r *registry) []requestSource {
	var out []requestSource
	for _, p := range r.primaries {
		if p.AccountCreationType() == CreationLink {
			out = append(out, requestSource{p, true})
		}
	}
	return out
}

// requestsFromProviders consulta a cada provider y combina la salida con
// mergeRequests.
func (m *Manager) requestsFromProviders(srcs []requestSource, action Action, username string) RequestList {
	var reqs RequestList
	for _, s := range srcs {
		reqs = mergeRequests(reqs, s.provider.GetAuthenticationRequests(action, username), s.primary)
	}
	return reqs
}

// GetAuthenticationRequests enumera los requests que la acción necesita.
// Para las acciones *-continue la respuesta sale del estado suspendido en
// sesión: solo valen los requests que el flujo pidió la última vez.
func (m *Manager) GetAuthenticationRequests(ctx context.Context, action Action, username string) (RequestList, error) {
	providerAction := action

	var srcs []requestSource
	switch action {
	case ActionLogin, ActionCreate:
		reg, err := m.providers()
		if err != nil {
			return nil, err
		}
		srcs = allTiers(reg)

	case ActionLoginContinue:
		return m.continueRequestsFromState(ctx, keyAuthnState)

	case ActionCreateContinue:
		return m.continueRequestsFromState(ctx, keyCreateState)

	case ActionLinkContinue:
		return m.continueRequestsFromState(ctx, keyLinkState)

	case ActionLink, ActionUnlink:
		reg, err := m.providers()
		if err != nil {
			return nil, err
		}
		srcs = linkPrimaries(reg)
		if action == ActionUnlink {
			// Para los providers desvincular y quitar son lo mismo.
			providerAction = ActionRemove
		}

	case ActionChange, ActionRemove:
		reg, err := m.providers()
		if err != nil {
			return nil, err
		}
		srcs = primariesAndSecondaries(reg)

	default:
		return nil, fmt.Errorf("auth: acción inválida %q", action)
	}

	reqs := m.requestsFromProviders(srcs, providerAction, username)

	// El orquestador aporta sus propios requests en login y create.
	switch providerAction {
	case ActionLogin:
		if m.cfg.RememberPolicy == RememberChoose {
			reqs = append(reqs, &RememberMeRequest{})
		}
	case ActionCreate:
		reqs = append(reqs, &UsernameRequest{}, &UserDataRequest{})
		if username != "" {
			// Con un creador conocido se pide el motivo de la creación,
			// y el username del creador no se precarga en los demás.
			reqs = append(reqs, &CreationReasonRequest{})
			username = ""
		}
	}

	fillRequests(reqs, providerAction, username, true)

	// Change y remove solo ofrecen lo que ningún provider vete.
	if providerAction == ActionChange || providerAction == ActionRemove {
		filtered := reqs[:0]
		for _, r := range reqs {
			st, err := m.AllowsAuthenticationDataChange(r, false)
			if err != nil {
				return nil, err
			}
			if st.Good {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}

	sortRequestsByID(reqs)
	return reqs, nil
}

func (m *Manager) continueRequestsFromState(ctx context.Context, key string) (RequestList, error) {
	switch key {
	case keyAuthnState:
		var state authnState
		found, err := loadState(ctx, m.sess, key, &state)
		if err != nil || !found {
			return nil, err
		}
		return state.ContinueRequests, nil
	case keyCreateState:
		var state createState
		found, err := loadState(ctx, m.sess, key, &state)
		if err != nil || !found {
			return nil, err
		}
		return state.ContinueRequests, nil
	default:
		var state linkState
		found, err := loadState(ctx, m.sess, key, &state)
		if err != nil || !found {
			return nil, err
		}
		return state.ContinueRequests, nil
	}
}
