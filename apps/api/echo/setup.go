package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core/admin"
)

type SetupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type setupApi struct {
	svc *admin.Service
}

// first admin bootstrap, refused once the system is initialized
func registerSetupAPI(g *echo.Group, svc *admin.Service) {
	api := setupApi{svc: svc}

	sg := g.Group("/setup")
	sg.GET("/status", api.status)
	sg.POST("", api.createAdmin)
}

func (api *setupApi) status(ctx echo.Context) error {
	initialized, err := api.svc.SystemInitialized(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking system initialization")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"initialized": initialized})
}

func (api *setupApi) createAdmin(ctx echo.Context) error {
	var data SetupRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetupRequest")
	}
	p, err := api.svc.CreateSystemAdmin(ctx.Request().Context(), data.Email, data.Name, data.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}
