package auth

import "fmt"

// Message es un mensaje localizable para el usuario final: una clave de
// traducción más parámetros posicionales. El renderizado queda del lado
// del cliente.
type Message struct {
	Key    string   `json:"key"`
	Params []string `json:"params,omitempty"`
}

// NewMessage construye un Message con parámetros opcionales.
func NewMessage(key string, params ...string) *Message {
	return &Message{Key: key, Params: params}
}

func (m *Message) String() string {
	if m == nil {
		return ""
	}
	if len(m.Params) == 0 {
		return m.Key
	}
	return fmt.Sprintf("%s %v", m.Key, m.Params)
}

// Claves de mensaje usadas por el propio manager.
const (
	msgNoPrimary           = "authmanager-authn-no-primary"
	msgNotInProgress       = "authmanager-authn-not-in-progress"
	msgNoLocalGeneration   = "authmanager-authn-no-local-user"
	msgNoLocalLink         = "authmanager-authn-no-local-user-link"
	msgCreateDisabled      = "authmanager-create-disabled"
	msgCreateNoPrimary     = "authmanager-create-no-primary"
	msgCreateNotInProg     = "authmanager-create-not-in-progress"
	msgLinkNoPrimary       = "authmanager-link-no-primary"
	msgLinkNotInProgress   = "authmanager-link-not-in-progress"
	msgAutocreateNoPerm    = "authmanager-autocreate-noperm"
	msgAutocreateException = "authmanager-autocreate-exception"
	msgUserExists          = "userexists"
	msgUserInProgress      = "usernameinprogress"
	msgNoName              = "noname"
	msgUserDoesNotExist    = "authmanager-userdoesnotexist"
	msgChangeNotSupported  = "authmanager-change-not-supported"
	msgReadOnly            = "readonlytext"
)
