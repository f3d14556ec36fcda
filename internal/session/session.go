// Package session provee el contrato de sesión por cliente que consume el
// orquestador de autenticación, con backends memory y Redis.
//
// Los valores guardados bajo claves del orquestador deben sobrevivir el
// round-trip de serialización sin pérdida (incluyendo requests/responses
// anidados); por eso la API trabaja con strings ya serializados y la
// codificación queda en manos del caller.
//
// Los valores "secret" nunca se exponen al cliente: viven solo del lado
// servidor del backend. La distinción existe para que un backend que
// refleje parte de la sesión hacia el cliente (p.ej. cookies firmadas)
// sepa qué slots no puede reflejar jamás.
package session

import (
	"context"
	"errors"
)

// Errores de sesión.
var (
	// ErrNoValue indica que la clave no tiene valor en la sesión.
	ErrNoValue = errors.New("session: no value")

	// ErrNotFound indica que la sesión no existe en el backend.
	ErrNotFound = errors.New("session: not found")

	// ErrCannotSetUser indica que este tipo de sesión no admite cambiar
	// el principal (p.ej. sesiones autenticadas por credencial externa
	// en cada request).
	ErrCannotSetUser = errors.New("session: cannot set user")
)

// Principal identifica al usuario autenticado de una sesión.
// El valor cero es la sesión anónima.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsAnonymous indica si no hay usuario autenticado.
func (p Principal) IsAnonymous() bool { return p.ID == "" }

// Session es una sesión de cliente. Una instancia está ligada a un único
// session id; el backend decide durabilidad y TTL.
type Session interface {
	// ID retorna el identificador actual de la sesión.
	ID() string

	// CanSetUser indica si la sesión admite fijar un principal distinto.
	CanSetUser() bool

	// User retorna el principal autenticado (cero si anónima).
	User() Principal

	// SetUser fija el principal. ErrCannotSetUser si la sesión no lo admite.
	SetUser(ctx context.Context, p Principal) error

	// SetRemember marca la sesión como "recordada" (cookie de larga vida).
	SetRemember(ctx context.Context, remember bool) error

	// Remembered indica si la sesión fue marcada como recordada.
	Remembered() bool

	// Get/Set/GetSecret/SetSecret leen y escriben slots de la sesión.
	// Get* retornan ErrNoValue si la clave no existe.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetSecret(ctx context.Context, key string) (string, error)
	SetSecret(ctx context.Context, key, value string) error

	// Remove elimina una clave (secret o no). Idempotente.
	Remove(ctx context.Context, key string) error

	// Persist fuerza que el id quede durable antes de responder al cliente.
	Persist(ctx context.Context) error

	// ResetID regenera el id conservando los datos (defensa contra
	// session fixation).
	ResetID(ctx context.Context) error

	// ResetAllTokens invalida los tokens derivados de la sesión (CSRF etc).
	ResetAllTokens(ctx context.Context) error
}

// Store es el backend de sesiones.
type Store interface {
	// New crea una sesión vacía con id fresco.
	New(ctx context.Context) (Session, error)

	// Load carga una sesión existente. ErrNotFound si no existe.
	Load(ctx context.Context, id string) (Session, error)
}

// Config configuración para crear un Store.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      string // duración, p.ej. "24h"
}
