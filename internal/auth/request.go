package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Request es una credencial o dato de entrada para un flujo de
// autenticación. Cada tipo concreto registra su kind en el codec para
// poder persistirse dentro del estado de flujo en sesión.
type Request interface {
	// Kind es el identificador estable del tipo para el codec.
	Kind() string
	// UniqueID distingue instancias a mergear en getAuthenticationRequests.
	// Por convención es el kind, más un sufijo cuando un mismo tipo puede
	// aparecer varias veces (por ejemplo por provider).
	UniqueID() string
	// Meta expone los campos comunes a todo request.
	Meta() *RequestMeta
}

// RequestMeta son los campos comunes embebidos en cada request concreto.
type RequestMeta struct {
	// Action es la acción para la que este request fue pedido o enviado.
	Action Action `json:"action,omitempty"`
	// Username asociado, si aplica.
	Username string `json:"username,omitempty"`
	// ReturnToURL para flujos con redirect a un tercero.
	ReturnToURL string `json:"return_to_url,omitempty"`
	// Required indica qué tan necesario es este request para la acción.
	Required Requirement `json:"required,omitempty"`
}

// Meta implementa Request a medias para que los tipos concretos solo
// declaren Kind y, si hace falta, UniqueID.
func (m *RequestMeta) Meta() *RequestMeta { return m }

// ─── Codec ───

type requestFactory func() Request

var (
	codecMu  sync.RWMutex
	codecReg = map[string]requestFactory{}
)

// RegisterRequest registra un tipo de request en el codec. Los providers
// con tipos propios lo llaman desde init(). Un kind duplicado es un bug
// de programación y entra en pánico.
func RegisterRequest(kind string, factory func() Request) {
	codecMu.Lock()
	defer codecMu.Unlock()
	if _, ok := codecReg[kind]; ok {
		panic(fmt.Sprintf("auth: request kind %q registrado dos veces", kind))
	}
	codecReg[kind] = factory
}

type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalRequest serializa un request con su kind para poder revivirlo.
func MarshalRequest(r Request) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("auth: marshal request %q: %w", r.Kind(), err)
	}
	return json.Marshal(envelope{Kind: r.Kind(), Payload: payload})
}

// UnmarshalRequest revive un request serializado por MarshalRequest.
func UnmarshalRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("auth: unmarshal request envelope: %w", err)
	}
	codecMu.RLock()
	factory, ok := codecReg[env.Kind]
	codecMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("auth: request kind %q no registrado", env.Kind)
	}
	r := factory()
	if err := json.Unmarshal(env.Payload, r); err != nil {
		return nil, fmt.Errorf("auth: unmarshal request %q: %w", env.Kind, err)
	}
	return r, nil
}

// RequestList serializa una lista heterogénea de requests.
type RequestList []Request

func (l RequestList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, r := range l {
		b, err := MarshalRequest(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

func (l *RequestList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(RequestList, 0, len(raws))
	for _, raw := range raws {
		r, err := UnmarshalRequest(raw)
		if err != nil {
			return err
		}
		out = append(out, r)
	}
	*l = out
	return nil
}

// ─── Helpers ───

// RequestByID busca el request con ese UniqueID, exigiendo como máximo uno.
func RequestByID(reqs []Request, id string) (Request, error) {
	var found Request
	for _, r := range reqs {
		if r.UniqueID() != id {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("auth: más de un request con id %q", id)
		}
		found = r
	}
	return found, nil
}

// guessUsername extrae el username de los requests enviados: si todos los
// que traen uno coinciden, ese es; si discrepan, no hay adivinanza.
func guessUsername(reqs []Request) (string, bool) {
	guess := ""
	for _, r := range reqs {
		u := r.Meta().Username
		if u == "" {
			continue
		}
		if guess == "" {
			guess = u
		} else if guess != u {
			return "", false
		}
	}
	return guess, guess != ""
}

// fillRequests completa action y username en los requests devueltos por
// los providers. forceAction pisa la acción aunque ya esté seteada.
func fillRequests(reqs []Request, action Action, username string, forceAction bool) {
	for _, r := range reqs {
		m := r.Meta()
		if forceAction || m.Action == "" {
			m.Action = action
		}
		if m.Username == "" {
			m.Username = username
		}
	}
}

// mergeRequests deduplica por UniqueID al combinar la salida de varios
// providers. Un Required de un primary se rebaja a PrimaryRequired: lo
// exige ese primary, no la acción entera. Ante un id repetido, el nuevo
// pisa al viejo solo si el nuevo es Required o el viejo era Optional.
func mergeRequests(dst []Request, src []Request, fromPrimary bool) []Request {
	for _, r := range src {
		m := r.Meta()
		if fromPrimary && m.Required == Required {
			m.Required = PrimaryRequired
		}
		idx := -1
		for i, have := range dst {
			if have.UniqueID() == r.UniqueID() {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			dst = append(dst, r)
		case m.Required == Required || dst[idx].Meta().Required == Optional:
			dst[idx] = r
		}
	}
	return dst
}

// sortRequestsByID ordena por UniqueID para salidas determinísticas.
func sortRequestsByID(reqs []Request) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].UniqueID() < reqs[j].UniqueID()
	})
}
