package echoapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/guard"
	"github.com/trezcool/sapp/core/user"
	metricsvc "github.com/trezcool/sapp/services/metrics"
)

var (
	errNotSignedIn = core.NewError(core.KindUnauthenticated, "user must be logged in")
	errForbidden   = core.NewError(core.KindPermissionDenied, "you do not have access to this resource")
)

// requireRoles applies the access guard to the resolved identity. No roles admits any signed-in user.
func requireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ri := contextIdentity(ctx)
			d := guard.Decide(ri, roles...)

			switch d.Outcome {
			case guard.Allow:
				return next(ctx)
			case guard.Pending:
				return errSessionPending
			case guard.ProfileMissing:
				return core.NewError(core.KindProfileMissing, "no profile exists for this account")
			}
			if ri.Session == nil {
				if ri.Err != nil {
					return ri.Err // why the session could not be resolved
				}
				return errNotSignedIn
			}
			return errForbidden
		}
	}
}

// selfOrRoles admits the owner of the :uid route param and the given roles.
func selfOrRoles(roles ...user.Role) echo.MiddlewareFunc {
	staff := requireRoles(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := staff(next)
		return func(ctx echo.Context) error {
			if p := contextProfile(ctx); p != nil && p.UID == ctx.Param("uid") {
				return next(ctx)
			}
			if p := contextProfile(ctx); p != nil && !p.HasRole(roles...) {
				return errSelfOrStaff
			}
			return guarded(ctx)
		}
	}
}

func requestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if d <= 0 {
				return next(ctx)
			}
			reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), d)
			defer cancel()
			ctx.SetRequest(ctx.Request().WithContext(reqCtx))
			return next(ctx)
		}
	}
}

func requestMetrics(rec *metricsvc.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err) // commits the response so that its status is known
			}
			rec.ObserveRequest(ctx.Request().Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
