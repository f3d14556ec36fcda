package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/authflow/internal/auth"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
	"github.com/dropDatabas3/authflow/internal/user"
)

func init() {
	auth.RegisterProviderFactory("throttle", func() auth.Provider { return &ThrottleProvider{} })
}

const (
	msgLoginThrottled  = "login-throttled"
	msgCreateThrottled = "acct-creation-throttle-hit"
)

// ThrottleProvider frena por cache los intentos de login fallidos por
// cuenta y las creaciones de cuenta por creador. El contador de login se
// alimenta en PostAuthentication: ahí se sabe si el intento falló.
type ThrottleProvider struct {
	auth.BasePreProvider

	id          string
	loginLimit  int64
	createLimit int64
	window      time.Duration
}

func (p *ThrottleProvider) UniqueID() string { return p.id }

func (p *ThrottleProvider) Init(deps auth.ProviderDeps) error {
	if err := p.BasePreProvider.Init(deps); err != nil {
		return err
	}
	p.id = settingString(deps.Settings, "id", "throttle")
	p.loginLimit = int64(settingInt(deps.Settings, "login_limit", 5))
	p.createLimit = int64(settingInt(deps.Settings, "create_limit", 3))
	p.window = settingDuration(deps.Settings, "window", 5*time.Minute)
	if deps.Cache == nil {
		return fmt.Errorf("providers: %s necesita un cache", p.id)
	}
	return nil
}

func (p *ThrottleProvider) loginKey(canonical string) string {
	return "throttle:login:" + canonical
}

func (p *ThrottleProvider) createKey(canonical string) string {
	return "throttle:create:" + canonical
}

func (p *ThrottleProvider) TestForAuthentication(ctx context.Context, reqs []auth.Request) auth.StatusValue {
	canon, ok := guessCanonical(reqs)
	if !ok {
		return auth.StatusGood()
	}
	raw, err := p.Deps.Cache.Get(ctx, p.loginKey(canon))
	if err != nil {
		return auth.StatusGood()
	}
	var count int64
	fmt.Sscanf(raw, "%d", &count)
	if count >= p.loginLimit {
		p.Deps.Logger.Warn("login frenado por throttle", logger.Provider(p.id), logger.UserName(canon))
		return auth.StatusFatal(msgLoginThrottled)
	}
	return auth.StatusGood()
}

// PostAuthentication mantiene el contador: un fallo suma, un éxito lo
// resetea.
func (p *ThrottleProvider) PostAuthentication(ctx context.Context, u *user.User, resp *auth.Response) {
	if u == nil || u.Name == "" {
		return
	}
	canon, ok := user.Canonicalize(u.Name)
	if !ok {
		return
	}
	switch resp.Status {
	case auth.StatusFail:
		if _, err := p.Deps.Cache.Incr(ctx, p.loginKey(canon), p.window); err != nil {
			p.Deps.Logger.Warn("no se pudo incrementar el throttle", logger.Provider(p.id), logger.Err(err))
		}
	case auth.StatusPass:
		_ = p.Deps.Cache.Delete(ctx, p.loginKey(canon))
	}
}

// TestForAccountCreation frena rachas de creaciones del mismo creador. Las
// cuentas autocreadas no pasan por acá.
func (p *ThrottleProvider) TestForAccountCreation(ctx context.Context, u, creator *user.User, reqs []auth.Request) auth.StatusValue {
	if creator == nil || !creator.Registered() {
		return auth.StatusGood()
	}
	count, err := p.Deps.Cache.Incr(ctx, p.createKey(creator.CanonicalName), p.window)
	if err != nil {
		p.Deps.Logger.Warn("no se pudo incrementar el throttle de creación", logger.Provider(p.id), logger.Err(err))
		return auth.StatusGood()
	}
	if count > p.createLimit {
		p.Deps.Logger.Warn("creación frenada por throttle", logger.Provider(p.id), logger.Creator(creator.Name))
		return auth.StatusFatal(msgCreateThrottled)
	}
	return auth.StatusGood()
}

func guessCanonical(reqs []auth.Request) (string, bool) {
	for _, r := range reqs {
		if name := r.Meta().Username; name != "" {
			return user.Canonicalize(name)
		}
	}
	return "", false
}
