package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/guard"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/session"
	"github.com/trezcool/sapp/core/user"
	localidp "github.com/trezcool/sapp/services/identity/local"
)

const (
	contextIdentityKey = "identity"
	contextClientKey   = "idpClient"
	contextResolverKey = "resolver"
)

var errSessionPending = core.NewError(core.KindInternal, "the session is still being resolved")

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	TokenResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	LoginResponse struct {
		TokenResponse
		Profile  user.Profile `json:"profile"`
		Redirect string       `json:"redirect"`
	}

	MeResponse struct {
		UID       string        `json:"uid"`
		Email     string        `json:"email"`
		ExpiresAt time.Time     `json:"expires_at"`
		Profile   *user.Profile `json:"profile"`
	}

	SuccessResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}
)

func (r *LoginRequest) Validate() error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return core.Validate.Struct(r)
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// sessionMiddleware resolves the bearer's session and profile. Anonymous requests pass through
// with an empty identity; requireRoles decides what they may reach.
func (s *server) sessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			reqCtx := ctx.Request().Context()

			client, err := s.deps.IdP.Restore(reqCtx, bearerToken(ctx.Request()))
			if err != nil && !errors.Is(err, identity.ErrInvalidToken) {
				return core.NewError(core.KindInternal, "restoring session", err)
			}

			resolver := s.newResolver(client)
			resolver.Start(reqCtx)
			defer resolver.Stop()

			ri, err := resolver.Wait(reqCtx)
			if err != nil {
				return err
			}

			ctx.Set(contextIdentityKey, ri)
			ctx.Set(contextClientKey, client)
			ctx.Set(contextResolverKey, resolver)
			return next(ctx)
		}
	}
}

func contextIdentity(ctx echo.Context) session.ResolvedIdentity {
	ri, _ := ctx.Get(contextIdentityKey).(session.ResolvedIdentity)
	return ri
}

// contextProfile returns the signed-in profile, or nil.
func contextProfile(ctx echo.Context) *user.Profile {
	return contextIdentity(ctx).CurrentUser()
}

type authApi struct {
	s *server
}

func registerAuthAPI(g *echo.Group, sess echo.MiddlewareFunc, s *server) {
	api := authApi{s: s}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)

	signedIn := requireRoles()
	ag.POST("/logout", api.logout, sess, signedIn)
	ag.POST("/refresh", api.refresh, sess, signedIn)
	ag.GET("/me", api.me, sess, signedIn)

	g.GET("/guard", api.guard, sess)
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	client := api.s.deps.IdP.NewClient()
	resolver := api.s.newResolver(client)

	p, err := resolver.Login(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	sess := client.CurrentSession()
	if sess == nil {
		return core.NewError(core.KindInternal, "signed in without a session")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		TokenResponse: TokenResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt},
		Profile:       *p,
		Redirect:      guard.DashboardPath(p.Role),
	})
}

func (api *authApi) logout(ctx echo.Context) error {
	resolver, ok := ctx.Get(contextResolverKey).(*session.Resolver)
	if !ok {
		return errSessionPending
	}
	if err := resolver.Logout(ctx.Request().Context()); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *authApi) refresh(ctx echo.Context) error {
	client, ok := ctx.Get(contextClientKey).(*localidp.Client)
	if !ok {
		return errSessionPending
	}
	sess, err := client.Refresh(ctx.Request().Context())
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return core.NewError(core.KindUnauthenticated, "the session can no longer be refreshed, please sign in again", err)
		}
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (api *authApi) me(ctx echo.Context) error {
	ri := contextIdentity(ctx)
	return ctx.JSON(http.StatusOK, MeResponse{
		UID:       ri.Session.UID,
		Email:     ri.Session.Email,
		ExpiresAt: ri.Session.ExpiresAt,
		Profile:   ri.Profile,
	})
}

// guard tells the dashboard what to do with a navigation to ?path=.
func (api *authApi) guard(ctx echo.Context) error {
	path := ctx.QueryParam("path")
	if path == "" {
		return core.NewError(core.KindInvalidArgument, "path is required")
	}
	ri := contextIdentity(ctx)
	if _, guarded := guard.RouteRoles(path); guarded && ri.Session == nil && core.IsKind(ri.Err, core.KindProfileMissing) {
		return ctx.JSON(http.StatusOK, echo.Map{"outcome": guard.ProfileMissing, "message": core.UserMessage(ri.Err)})
	}
	d := guard.DecideRoute(ri, path)
	return ctx.JSON(http.StatusOK, d)
}
