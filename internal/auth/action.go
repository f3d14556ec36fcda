package auth

// Action identifica para qué operación se piden o se usan requests.
type Action string

const (
	// ActionLogin inicia una autenticación.
	ActionLogin Action = "login"
	// ActionLoginContinue reanuda una autenticación interrumpida (UI o redirect).
	ActionLoginContinue Action = "login-continue"
	// ActionCreate inicia la creación de una cuenta.
	ActionCreate Action = "create"
	// ActionCreateContinue reanuda una creación interrumpida.
	ActionCreateContinue Action = "create-continue"
	// ActionLink inicia la vinculación de una cuenta a una credencial externa.
	ActionLink Action = "link"
	// ActionLinkContinue reanuda una vinculación interrumpida.
	ActionLinkContinue Action = "link-continue"
	// ActionChange cambia o agrega credenciales de una cuenta existente.
	ActionChange Action = "change"
	// ActionRemove elimina credenciales de una cuenta existente.
	ActionRemove Action = "remove"
	// ActionUnlink desvincula una cuenta externa. Los providers lo ven como Remove.
	ActionUnlink Action = "unlink"
)

// continueAction devuelve la variante *-continue de una acción inicial.
func continueAction(a Action) Action {
	switch a {
	case ActionLogin:
		return ActionLoginContinue
	case ActionCreate:
		return ActionCreateContinue
	case ActionLink:
		return ActionLinkContinue
	}
	return a
}

// Requirement indica qué tan necesario es un request para completar una acción.
type Requirement int

const (
	// Optional: la acción puede completarse sin este request.
	Optional Requirement = iota
	// Required: la acción no puede completarse sin este request.
	Required
	// PrimaryRequired: requerido por al menos un primary pero no por todos;
	// el cliente debe tratarlo como opcional salvo que elija ese primary.
	PrimaryRequired
)

// CreationType describe cómo participa un primary en la creación de cuentas.
type CreationType string

const (
	// CreationNone: el primary no participa en la creación de cuentas.
	CreationNone CreationType = "none"
	// CreationCreate: el primary puede crear cuentas con credenciales propias.
	CreationCreate CreationType = "create"
	// CreationLink: el primary crea cuentas vinculándolas a credenciales externas.
	CreationLink CreationType = "link"
)

// SecurityStatus es el veredicto del gate de operaciones sensibles.
type SecurityStatus string

const (
	// SecurityOK: la operación sensible puede proceder.
	SecurityOK SecurityStatus = "ok"
	// SecurityReauth: el caller debe re-autenticar al usuario antes de proceder.
	SecurityReauth SecurityStatus = "reauth"
	// SecurityFail: la operación no está disponible en esta sesión.
	SecurityFail SecurityStatus = "fail"
)
