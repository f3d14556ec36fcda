package session

import (
	"github.com/google/uuid"
)

// record es el estado serializable de una sesión.
// Values puede reflejarse al cliente según backend; Secrets jamás.
type record struct {
	User      Principal         `json:"user"`
	Remember  bool              `json:"remember"`
	Token     string            `json:"token"`
	Values    map[string]string `json:"values,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
	Persisted bool              `json:"persisted"`
}

func newRecord() *record {
	return &record{
		Token:   uuid.NewString(),
		Values:  map[string]string{},
		Secrets: map[string]string{},
	}
}

func (r *record) get(key string, secret bool) (string, error) {
	m := r.Values
	if secret {
		m = r.Secrets
	}
	v, ok := m[key]
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

func (r *record) set(key, value string, secret bool) {
	if secret {
		if r.Secrets == nil {
			r.Secrets = map[string]string{}
		}
		r.Secrets[key] = value
		return
	}
	if r.Values == nil {
		r.Values = map[string]string{}
	}
	r.Values[key] = value
}

func (r *record) remove(key string) {
	delete(r.Values, key)
	delete(r.Secrets, key)
}
