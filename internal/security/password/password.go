// Package password implementa el contrato de selección/versionado de hashes
// de contraseña. El algoritmo concreto (argon2id) queda encapsulado: los
// callers solo ven PHC strings y el contrato Hash/Verify/NeedsRehash.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params son los parámetros de costo del hash.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// Default son los parámetros actuales. Subir costos acá hace que
// NeedsRehash marque los hashes viejos para re-hashear en el próximo login.
var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// Factory selecciona parámetros y versiona hashes.
type Factory struct {
	Params Params
}

// NewFactory crea una Factory con los parámetros dados (cero = Default).
func NewFactory(p Params) *Factory {
	if p.KeyLen == 0 {
		p = Default
	}
	return &Factory{Params: p}
}

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func (f *Factory) Hash(plain string) (string, error) {
	p := f.Params
	if plain == "" {
		return "", fmt.Errorf("password: empty password")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify chequea plain contra un PHC string de cualquier versión soportada.
func (f *Factory) Verify(plain, phc string) bool {
	m, t, p, salt, dkStored, ok := parse(phc)
	if !ok {
		return false
	}
	key := argon2.IDKey([]byte(plain), salt, t, m, p, uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}

// NeedsRehash indica si el hash fue generado con parámetros distintos a los
// actuales y conviene re-hashear en el próximo login exitoso.
func (f *Factory) NeedsRehash(phc string) bool {
	m, t, p, _, dk, ok := parse(phc)
	if !ok {
		return true
	}
	cur := f.Params
	return m != cur.Memory || t != cur.Time || p != cur.Parallelism || uint32(len(dk)) != cur.KeyLen
}

func parse(phc string) (m, t uint32, p uint8, salt, dk []byte, ok bool) {
	// $argon2id$v=19$m=...,t=...,p=...$saltB64$dkB64
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return 0, 0, 0, nil, nil, false
	}
	var mi, ti, pi int
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mi, &ti, &pi); err != nil || n != 3 {
		return 0, 0, 0, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}
	dk, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}
	return uint32(mi), uint32(ti), uint8(pi), salt, dk, true
}
