package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core/admin"
	"github.com/trezcool/sapp/core/user"
)

type schoolApi struct {
	svc      *user.Service
	adminSvc *admin.Service
}

func registerSchoolAPI(g *echo.Group, sess echo.MiddlewareFunc, svc *user.Service, adminSvc *admin.Service) {
	api := schoolApi{svc: svc, adminSvc: adminSvc}

	sg := g.Group("/schools", sess)
	sg.POST("", api.create, requireRoles(admin.CreateSchoolRoles...))
	sg.GET("", api.list, requireRoles(user.AllRoles...))
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data admin.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	res, err := api.adminSvc.CreateSchool(ctx.Request().Context(), contextIdentity(ctx).Session, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

// list returns every school to admins, and their own school to everyone else.
func (api *schoolApi) list(ctx echo.Context) error {
	schools, err := api.svc.Schools(ctx.Request().Context(), *contextProfile(ctx))
	if err != nil {
		return errors.Wrap(err, "listing schools")
	}
	return ctx.JSON(http.StatusOK, schools)
}
