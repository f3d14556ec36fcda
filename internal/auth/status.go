package auth

// StatusValue es el resultado de los hooks de veto de los providers
// (pre-tests, cambios de credenciales). Good indica si la operación puede
// proceder; Message explica el rechazo; Value es una marca interna que el
// manager inspecciona ("ignored", "throttled-mailpassword") y Warnings
// acumula avisos no fatales.
type StatusValue struct {
	Good     bool
	Message  *Message
	Value    string
	Warnings []*Message
}

// StatusGood construye un StatusValue de éxito.
func StatusGood() StatusValue {
	return StatusValue{Good: true}
}

// StatusGoodValue construye un éxito con marca interna.
func StatusGoodValue(value string) StatusValue {
	return StatusValue{Good: true, Value: value}
}

// StatusFatal construye un rechazo con mensaje.
func StatusFatal(key string, params ...string) StatusValue {
	return StatusValue{Good: false, Message: NewMessage(key, params...)}
}

// Warn agrega un aviso no fatal y devuelve el status.
func (s StatusValue) Warn(key string, params ...string) StatusValue {
	s.Warnings = append(s.Warnings, NewMessage(key, params...))
	return s
}

// Merge combina otro status dentro de este: un rechazo gana, pero los
// avisos siempre se acumulan.
func (s StatusValue) Merge(other StatusValue) StatusValue {
	if !other.Good {
		s.Good = false
		if s.Message == nil {
			s.Message = other.Message
		}
	}
	if other.Value != "" && s.Value == "" {
		s.Value = other.Value
	}
	s.Warnings = append(s.Warnings, other.Warnings...)
	return s
}
