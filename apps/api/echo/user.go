package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/admin"
	"github.com/trezcool/sapp/core/user"
)

var (
	staffRoles  = []user.Role{user.RoleAdmin, user.RoleManagement}
	errNameOnly = core.NewError(core.KindPermissionDenied, "you can only change the name of your own profile")
)

type userApi struct {
	svc      *user.Service
	adminSvc *admin.Service
}

func registerUserAPI(g *echo.Group, sess echo.MiddlewareFunc, svc *user.Service, adminSvc *admin.Service) {
	api := userApi{svc: svc, adminSvc: adminSvc}

	ug := g.Group("/users", sess)
	ug.POST("", api.create, requireRoles(admin.ProvisionRoles...))
	ug.GET("", api.query, requireRoles(admin.ProvisionRoles...))

	// detail endpoints
	dg := ug.Group("/:uid", selfOrRoles(staffRoles...), api.sameSchool)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)

	sg := g.Group("/students", sess, requireRoles(staffRoles...))
	sg.GET("/pending", api.pendingStudents)
	sg.POST("/:uid/approve", api.approveStudent)
}

// sameSchool admits the owner of the :uid route param, admins and the staff of the target's school.
func (api *userApi) sameSchool(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		caller, uid := contextProfile(ctx), ctx.Param("uid")
		if caller == nil || caller.UID == uid || caller.IsAdmin() {
			return next(ctx)
		}
		target, err := api.svc.Get(ctx.Request().Context(), uid)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "getting profile")
		}
		if !caller.ManagesSchool(target.SchoolID) {
			return user.ErrOutsideSchool
		}
		return next(ctx)
	}
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data admin.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	p, err := api.adminSvc.Provision(ctx.Request().Context(), contextIdentity(ctx).Session, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

// filterFromQuery takes the first of ?role=, ?status=, ?school_id=, ?email= and ?limit=.
func filterFromQuery(ctx echo.Context) (user.Filter, error) {
	var filter user.Filter
	for _, field := range []string{user.FieldRole, user.FieldStatus, user.FieldSchoolID, user.FieldEmail} {
		if v := ctx.QueryParam(field); v != "" {
			filter.Field = field
			filter.Value = core.CleanString(v)
			break
		}
	}
	if l := ctx.QueryParam("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			return filter, core.NewValidationError(err, core.FieldError{Field: "limit", Error: "limit must be a number"})
		}
		filter.Limit = limit
	}
	return filter, nil
}

// query lists profiles. Callers below admin only see their own school, and teachers only see students.
func (api *userApi) query(ctx echo.Context) error {
	filter, err := filterFromQuery(ctx)
	if err != nil {
		return err
	}
	profiles, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}

	caller := contextProfile(ctx)
	if caller.IsAdmin() {
		return ctx.JSON(http.StatusOK, profiles)
	}
	visible := make([]user.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.SchoolID != caller.SchoolID {
			continue
		}
		if caller.Role == user.RoleTeacher && p.Role != user.RoleStudent {
			continue
		}
		visible = append(visible, p)
	}
	return ctx.JSON(http.StatusOK, visible)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("uid"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) update(ctx echo.Context) error {
	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	caller := contextProfile(ctx)
	if !caller.HasRole(staffRoles...) && !data.NameOnly() {
		return errNameOnly
	}
	if data.SchoolID != nil && !caller.ManagesSchool(core.CleanString(*data.SchoolID)) {
		return user.ErrOutsideSchool
	}

	p, err := api.svc.Update(ctx.Request().Context(), ctx.Param("uid"), data)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) pendingStudents(ctx echo.Context) error {
	students, err := api.svc.PendingStudents(ctx.Request().Context(), contextProfile(ctx).SchoolID)
	if err != nil {
		return errors.Wrap(err, "listing pending students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *userApi) approveStudent(ctx echo.Context) error {
	p, err := api.svc.ApproveStudent(ctx.Request().Context(), *contextProfile(ctx), ctx.Param("uid"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
