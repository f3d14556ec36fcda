package auth

import "encoding/json"

// Requests que el propio manager agrega o consume, independientes de
// cualquier provider.

func init() {
	RegisterRequest(KindRememberMe, func() Request { return &RememberMeRequest{} })
	RegisterRequest(KindUsername, func() Request { return &UsernameRequest{} })
	RegisterRequest(KindUserData, func() Request { return &UserDataRequest{} })
	RegisterRequest(KindCreationReason, func() Request { return &CreationReasonRequest{} })
	RegisterRequest(KindCreatedAccount, func() Request { return &CreatedAccountRequest{} })
	RegisterRequest(KindCreateFromLogin, func() Request { return &CreateFromLoginRequest{} })
}

const (
	KindRememberMe      = "rememberMe"
	KindUsername        = "username"
	KindUserData        = "userData"
	KindCreationReason  = "creationReason"
	KindCreatedAccount  = "createdAccount"
	KindCreateFromLogin = "createFromLogin"
)

// RememberMeRequest pide persistir la sesión más allá del cierre del
// navegador. El manager lo ofrece en login cuando la sesión lo soporta.
type RememberMeRequest struct {
	RequestMeta
	RememberMe bool `json:"remember_me"`
}

func (r *RememberMeRequest) Kind() string     { return KindRememberMe }
func (r *RememberMeRequest) UniqueID() string { return KindRememberMe }

// UsernameRequest aporta solo el nombre de usuario, para primaries cuyas
// credenciales no lo traen (p.ej. vinculación externa).
type UsernameRequest struct {
	RequestMeta
}

func (r *UsernameRequest) Kind() string     { return KindUsername }
func (r *UsernameRequest) UniqueID() string { return KindUsername }

// UserDataRequest aporta datos iniciales de la cuenta al crearla.
type UserDataRequest struct {
	RequestMeta
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
	Variant  string `json:"variant,omitempty"`
}

func (r *UserDataRequest) Kind() string     { return KindUserData }
func (r *UserDataRequest) UniqueID() string { return KindUserData }

// CreationReasonRequest justifica una cuenta creada por un tercero
// (un operador creando la cuenta de otra persona).
type CreationReasonRequest struct {
	RequestMeta
	Reason string `json:"reason,omitempty"`
}

func (r *CreationReasonRequest) Kind() string     { return KindCreationReason }
func (r *CreationReasonRequest) UniqueID() string { return KindCreationReason }

// CreatedAccountRequest lo acuña el manager al terminar de crear una
// cuenta, y permite iniciar sesión con ella sin más credenciales. Solo
// vale la instancia exacta que el manager emitió: deserializar una copia
// no sirve, el manager compara identidad de puntero.
type CreatedAccountRequest struct {
	RequestMeta
	UserID string `json:"user_id"`
}

func (r *CreatedAccountRequest) Kind() string     { return KindCreatedAccount }
func (r *CreatedAccountRequest) UniqueID() string { return KindCreatedAccount }

// CreateFromLoginRequest arrastra credenciales de un login que terminó en
// RESTART hacia el flujo de creación: el createRequest del primary que
// reinició y los posibles links acumulados en el camino.
type CreateFromLoginRequest struct {
	RequestMeta
	CreateRequest Request
	MaybeLink     RequestList
}

func (r *CreateFromLoginRequest) Kind() string     { return KindCreateFromLogin }
func (r *CreateFromLoginRequest) UniqueID() string { return KindCreateFromLogin }

// HasState indica si arrastra algo útil para el flujo de creación.
func (r *CreateFromLoginRequest) HasState() bool {
	return r.CreateRequest != nil || len(r.MaybeLink) > 0
}

type createFromLoginJSON struct {
	RequestMeta
	CreateRequest json.RawMessage `json:"create_request,omitempty"`
	MaybeLink     RequestList     `json:"maybe_link,omitempty"`
}

func (r *CreateFromLoginRequest) MarshalJSON() ([]byte, error) {
	out := createFromLoginJSON{RequestMeta: r.RequestMeta, MaybeLink: r.MaybeLink}
	if r.CreateRequest != nil {
		b, err := MarshalRequest(r.CreateRequest)
		if err != nil {
			return nil, err
		}
		out.CreateRequest = b
	}
	return json.Marshal(out)
}

func (r *CreateFromLoginRequest) UnmarshalJSON(data []byte) error {
	var in createFromLoginJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.RequestMeta = in.RequestMeta
	r.MaybeLink = in.MaybeLink
	r.CreateRequest = nil
	if len(in.CreateRequest) > 0 {
		req, err := UnmarshalRequest(in.CreateRequest)
		if err != nil {
			return err
		}
		r.CreateRequest = req
	}
	return nil
}
