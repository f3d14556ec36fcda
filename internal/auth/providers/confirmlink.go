package providers

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/user"
)

func init() {
	auth.RegisterRequest(KindConfirmLink, func() auth.Request { return &ConfirmLinkRequest{} })
	auth.RegisterProviderFactory("confirmlink", func() auth.Provider { return &ConfirmLinkProvider{} })
}

// KindConfirmLink identifica al request de confirmación de vínculos.
const KindConfirmLink = "confirmLink"

const (
	msgConfirmLink       = "authprovider-confirmlink-message"
	msgConfirmLinkFailed = "authprovider-confirmlink-failed"
)

// ConfirmLinkRequest presenta al usuario las credenciales externas
// vinculables que aparecieron durante el login, y vuelve con las que
// eligió confirmar.
type ConfirmLinkRequest struct {
	auth.RequestMeta
	// LinkIDs son los vínculos ofrecidos (salida del provider).
	LinkIDs []string `json:"link_ids,omitempty"`
	// ConfirmedIDs son los vínculos que el usuario aceptó (entrada).
	ConfirmedIDs []string `json:"confirmed_ids,omitempty"`
}

func (r *ConfirmLinkRequest) Kind() string     { return KindConfirmLink }
func (r *ConfirmLinkRequest) UniqueID() string { return KindConfirmLink }

// ConfirmLinkProvider es el secondary que ofrece concretar los vínculos
// acumulados en maybeLink: tras el PASS del primary pregunta cuáles
// aceptar, y los aplica vía el cambio de credenciales del manager.
type ConfirmLinkProvider struct {
	auth.BaseSecondaryProvider

	id string
}

func (p *ConfirmLinkProvider) UniqueID() string { return p.id }

func (p *ConfirmLinkProvider) Init(deps auth.ProviderDeps) error {
	if err := p.BaseSecondaryProvider.Init(deps); err != nil {
		return err
	}
	p.id = settingString(deps.Settings, "id", "confirmlink")
	return nil
}

// ConfirmsLinks marca a este provider como destino de los restart de
// vinculación: sin uno en la cadena, el manager no acumula maybeLink.
func (p *ConfirmLinkProvider) ConfirmsLinks() bool { return true }

func (p *ConfirmLinkProvider) sessionKey() string { return p.id + ":links" }

func (p *ConfirmLinkProvider) BeginSecondaryAuthentication(ctx context.Context, u *user.User, reqs []auth.Request) (*auth.Response, error) {
	links := p.Deps.Manager.MaybeLinkableRequests(ctx)
	if len(links) == 0 {
		return auth.NewAbstain(), nil
	}

	// Estacionar los requests vinculables: el continue solo trae ids.
	b, err := json.Marshal(links)
	if err != nil {
		return nil, err
	}
	if err := p.Deps.Manager.SetAuthenticationSessionData(ctx, p.sessionKey(), string(b)); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(links))
	for _, r := range links {
		ids = append(ids, r.UniqueID())
	}
	req := &ConfirmLinkRequest{LinkIDs: ids}
	return auth.NewUI([]auth.Request{req}, auth.NewMessage(msgConfirmLink)), nil
}

func (p *ConfirmLinkProvider) ContinueSecondaryAuthentication(ctx context.Context, u *user.User, reqs []auth.Request) (*auth.Response, error) {
	raw, ok := p.Deps.Manager.GetAuthenticationSessionData(ctx, p.sessionKey())
	if !ok {
		return auth.NewAbstain(), nil
	}
	var links auth.RequestList
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, err
	}

	var confirm *ConfirmLinkRequest
	for _, r := range reqs {
		if cr, isConfirm := r.(*ConfirmLinkRequest); isConfirm {
			confirm = cr
			break
		}
	}
	if confirm == nil {
		// Sin respuesta todavía: repetir la pregunta.
		ids := make([]string, 0, len(links))
		for _, r := range links {
			ids = append(ids, r.UniqueID())
		}
		req := &ConfirmLinkRequest{LinkIDs: ids}
		return auth.NewUI([]auth.Request{req}, auth.NewMessage(msgConfirmLink)), nil
	}

	p.Deps.Manager.RemoveAuthenticationSessionData(ctx, p.sessionKey())

	byID := map[string]auth.Request{}
	for _, r := range links {
		byID[r.UniqueID()] = r
	}
	for _, id := range confirm.ConfirmedIDs {
		req, known := byID[id]
		if !known {
			continue
		}
		m := req.Meta()
		m.Username = u.Name
		m.Action = auth.ActionLink
		st, err := p.Deps.Manager.AllowsAuthenticationDataChange(req, true)
		if err != nil {
			return nil, err
		}
		if !st.Good {
			p.Deps.Logger.Warn("vínculo rechazado", logger.Provider(p.id), logger.String("link", id))
			continue
		}
		if err := p.Deps.Manager.ChangeAuthenticationData(ctx, req, true); err != nil {
			p.Deps.Logger.Error("no se pudo concretar el vínculo", logger.Provider(p.id), logger.String("link", id), logger.Err(err))
		}
	}

	// El login del usuario ya está decidido: confirmar vínculos nunca lo
	// tumba.
	return auth.NewPass(u.Name), nil
}
