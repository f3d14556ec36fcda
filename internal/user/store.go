package user

import (
	"context"
)

// Store es el contrato de persistencia de usuarios.
//
// GetByName lee por el path más barato disponible (réplica); GetByNameLatest
// fuerza una lectura fuerte contra el primario, para descartar lag de
// replicación antes de decidir una creación.
type Store interface {
	GetByName(ctx context.Context, canonical string) (*User, error)
	GetByNameLatest(ctx context.Context, canonical string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)

	// Create inserta el usuario y asigna su ID.
	// Retorna ErrExists si el nombre canónico ya está tomado.
	Create(ctx context.Context, u *User) error

	// SaveOptions persiste las opciones por defecto (idioma/variante, token).
	SaveOptions(ctx context.Context, u *User) error

	// Credenciales por (canonical, provider): el hash de password del
	// provider local, los ids externos de los providers de vinculación.
	GetCredential(ctx context.Context, canonical, provider string) (string, error)
	SetCredential(ctx context.Context, canonical, provider, secret string) error
	DeleteCredential(ctx context.Context, canonical, provider string) error
}
