package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
)

var (
	errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")
	errSelfOrStaff  = core.NewError(core.KindPermissionDenied, "you can only access your own profile")
)

// kindStatus is the HTTP status of each error kind.
var kindStatus = map[core.Kind]int{
	core.KindUnauthenticated:    http.StatusUnauthorized,
	core.KindPermissionDenied:   http.StatusForbidden,
	core.KindInvalidArgument:    http.StatusBadRequest,
	core.KindProfileMissing:     http.StatusPreconditionFailed,
	core.KindInternal:           http.StatusInternalServerError,
	core.KindConfigurationFault: http.StatusInternalServerError,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}
		kind := core.KindOf(err)

		var appErr *core.Error
		var httpErr *echo.HTTPError
		var valErrs validator.ValidationErrors
		var valErr *core.ValidationError

		switch {
		case errors.As(err, &httpErr):
			if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
				httpErr = herr
			}
			code = httpErr.Code
			message = httpErr.Message
			kind = ""
		case errors.As(err, &valErrs):
			fldErrs := make(map[string]string, len(valErrs))
			for _, vErr := range valErrs {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case errors.As(err, &valErr):
			if valErr.Fields != nil {
				fldErrs := make(map[string]string, len(valErr.Fields))
				for _, fErr := range valErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = valErr.Error()
			}
			code = http.StatusBadRequest
		case errors.As(err, &appErr) && !core.IsInternal(err):
			code = kindStatus[kind]
			message = core.UserMessage(err)
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = core.UserMessage(err)
			logger.Error(http.StatusText(code), errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), contextProfile(ctx))

			if ctx.Echo().Debug {
				message = err.Error()
			}
			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		body := echo.Map{"error": message}
		if kind != "" {
			body["kind"] = kind
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
