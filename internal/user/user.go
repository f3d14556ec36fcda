// Package user define la abstracción de registro de usuario que consume el
// orquestador de autenticación: identidad y contrato de unicidad, nada más.
// El almacenamiento físico queda detrás de Store (Postgres o memoria).
package user

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Errores del store de usuarios.
var (
	ErrNotFound = errors.New("user: not found")
	ErrExists   = errors.New("user: already exists")
)

// User es el registro local de una cuenta.
// Un User con ID vacío representa un nombre sin cuenta local ("no registrado").
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CanonicalName string    `json:"canonical_name"`
	Language      string    `json:"language"`
	Variant       string    `json:"variant,omitempty"`
	Token         string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// Registered indica si la cuenta existe localmente.
func (u *User) Registered() bool { return u != nil && u.ID != "" }

// Canonicalize normaliza un nombre de usuario para los checks de unicidad y
// para la clave del account lock. Retorna false si el nombre no es usable.
func Canonicalize(name string) (string, bool) {
	// Colapsar corridas de espacios (incluye tabs) antes de validar: solo
	// los controles que no son whitespace invalidan el nombre.
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || len(name) > 255 {
		return "", false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
		if strings.ContainsRune("#<>[]|{}/@", r) {
			return "", false
		}
	}
	// Case-fold para unicidad.
	return strings.ToLower(name), true
}
