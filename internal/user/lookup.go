package user

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Lookup envuelve un Store con el patrón de doble lectura que usa la
// auto-creación: primero la lectura barata, y si no aparece el usuario,
// una lectura fuerte contra el primario para descartar lag de réplica.
// Las lecturas fuertes concurrentes para el mismo nombre se colapsan
// con singleflight para no castigar al primario en una estampida.
type Lookup struct {
	store Store
	sf    singleflight.Group
}

// NewLookup crea un Lookup sobre el store dado.
func NewLookup(store Store) *Lookup {
	return &Lookup{store: store}
}

// ByName lee por réplica. Retorna ErrNotFound si no existe.
func (l *Lookup) ByName(ctx context.Context, canonical string) (*User, error) {
	return l.store.GetByName(ctx, canonical)
}

// ByNameAuthoritative lee primero barato y, ante un miss, repite contra el
// path más autoritativo disponible.
func (l *Lookup) ByNameAuthoritative(ctx context.Context, canonical string) (*User, error) {
	u, err := l.store.GetByName(ctx, canonical)
	if err == nil {
		return u, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	v, err, _ := l.sf.Do(canonical, func() (any, error) {
		return l.store.GetByNameLatest(ctx, canonical)
	})
	if err != nil {
		return nil, err
	}
	return v.(*User), nil
}
