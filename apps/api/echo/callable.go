package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/admin"
	"github.com/trezcool/sapp/core/identity"
)

// Callable status codes, as the Firebase callable protocol names them.
const (
	StatusUnauthenticated    = "UNAUTHENTICATED"
	StatusPermissionDenied   = "PERMISSION_DENIED"
	StatusInvalidArgument    = "INVALID_ARGUMENT"
	StatusFailedPrecondition = "FAILED_PRECONDITION"
	StatusInternal           = "INTERNAL"
)

var callableStatus = map[core.Kind]string{
	core.KindUnauthenticated:    StatusUnauthenticated,
	core.KindPermissionDenied:   StatusPermissionDenied,
	core.KindInvalidArgument:    StatusInvalidArgument,
	core.KindProfileMissing:     StatusFailedPrecondition,
	core.KindInternal:           StatusInternal,
	core.KindConfigurationFault: StatusInternal,
}

type (
	CallableError struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	callableResponse struct {
		Result interface{}    `json:"result,omitempty"`
		Error  *CallableError `json:"error,omitempty"`
	}

	DeleteUserRequest struct {
		Data struct {
			UserID string `json:"userId"`
		} `json:"data"`
	}

	UpdateUserPasswordRequest struct {
		Data struct {
			UID      string `json:"uid"`
			Password string `json:"password"`
		} `json:"data"`
	}

	CreateSchoolRequest struct {
		Data struct {
			Name           string `json:"name"`
			Address        string `json:"address"`
			Contact        string `json:"contact"`
			PrincipalEmail string `json:"principalEmail"`
			Password       string `json:"password"`
		} `json:"data"`
	}

	createSchoolResult struct {
		admin.Result
		SchoolID     string `json:"schoolId"`
		PrincipalUID string `json:"principalUid"`
	}
)

type callableApi struct {
	verifier identity.Verifier
	svc      *admin.Service
	logger   core.Logger
}

func registerCallableAPI(g *echo.Group, verifier identity.Verifier, svc *admin.Service, logger core.Logger) {
	api := callableApi{verifier: verifier, svc: svc, logger: logger}

	cg := g.Group("/callable")
	cg.POST("/deleteUser", api.deleteUser)
	cg.POST("/updateUserPassword", api.updateUserPassword)
	cg.POST("/createSchool", api.createSchool)
}

// caller verifies the bearer token. A missing or invalid token yields a nil session, rejected by the operation.
func (api *callableApi) caller(ctx echo.Context) (*identity.Session, error) {
	token := bearerToken(ctx.Request())
	if token == "" {
		return nil, nil
	}
	sess, err := api.verifier.VerifyToken(ctx.Request().Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, nil
		}
		return nil, core.NewError(core.KindInternal, "verifying caller", err)
	}
	return sess, nil
}

func (api *callableApi) deleteUser(ctx echo.Context) error {
	var req DeleteUserRequest
	if err := ctx.Bind(&req); err != nil {
		return api.fail(ctx, core.NewError(core.KindInvalidArgument, "malformed request", err))
	}
	caller, err := api.caller(ctx)
	if err != nil {
		return api.fail(ctx, err)
	}
	res, err := api.svc.DeleteUser(ctx.Request().Context(), caller, req.Data.UserID)
	if err != nil {
		return api.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, callableResponse{Result: &res})
}

func (api *callableApi) updateUserPassword(ctx echo.Context) error {
	var req UpdateUserPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return api.fail(ctx, core.NewError(core.KindInvalidArgument, "malformed request", err))
	}
	caller, err := api.caller(ctx)
	if err != nil {
		return api.fail(ctx, err)
	}
	res, err := api.svc.UpdateUserPassword(ctx.Request().Context(), caller, req.Data.UID, req.Data.Password)
	if err != nil {
		return api.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, callableResponse{Result: &res})
}

func (api *callableApi) createSchool(ctx echo.Context) error {
	var req CreateSchoolRequest
	if err := ctx.Bind(&req); err != nil {
		return api.fail(ctx, core.NewError(core.KindInvalidArgument, "malformed request", err))
	}
	caller, err := api.caller(ctx)
	if err != nil {
		return api.fail(ctx, err)
	}
	res, err := api.svc.CreateSchool(ctx.Request().Context(), caller, admin.NewSchool{
		Name:              req.Data.Name,
		Address:           req.Data.Address,
		Contact:           req.Data.Contact,
		PrincipalEmail:    req.Data.PrincipalEmail,
		PrincipalPassword: req.Data.Password,
	})
	if err != nil {
		return api.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, callableResponse{Result: createSchoolResult{
		Result:       res.Result,
		SchoolID:     res.School.ID,
		PrincipalUID: res.Principal.UID,
	}})
}

// fail writes err in the callable error format. Internal errors are logged with their full chain.
func (api *callableApi) fail(ctx echo.Context, err error) error {
	kind := core.KindOf(err)
	if core.IsInternal(err) {
		api.logger.Error("callable "+ctx.Path()+" failed", err)
	}
	status, ok := callableStatus[kind]
	if !ok {
		status = StatusInternal
	}
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return ctx.JSON(code, callableResponse{Error: &CallableError{Status: status, Message: core.UserMessage(err)}})
}
