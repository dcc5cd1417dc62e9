package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
)

var (
	errUnknownRole     = echo.NewHTTPError(http.StatusNotFound, "unknown portal")
	errNoSession       = echo.NewHTTPError(http.StatusNotFound, "no signed-in profile")
	errInvalidResetURL = echo.NewHTTPError(http.StatusBadRequest, "the reset link is invalid or has expired")
)

// authErrorStatus is the HTTP status answered for each identity.ErrorKind.
var authErrorStatus = map[identity.ErrorKind]int{
	identity.Unknown:              http.StatusInternalServerError,
	identity.UnresolvedIdentifier: http.StatusNotFound,
	identity.InvalidEmail:         http.StatusBadRequest,
	identity.NotFound:             http.StatusNotFound,
	identity.WrongSecret:          http.StatusUnauthorized,
	identity.RateLimited:          http.StatusTooManyRequests,
	identity.NetworkError:         http.StatusBadGateway,
	identity.ConfigurationMissing: http.StatusServiceUnavailable,
	identity.PermissionDenied:     http.StatusForbidden,
	identity.ProfileMismatch:      http.StatusForbidden,
	identity.NoLocalAccount:       http.StatusNotFound,
	identity.InvalidCredentials:   http.StatusUnauthorized,
	identity.EmailExists:          http.StatusConflict,
	identity.WeakSecret:           http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var authErr *identity.AuthError
		var validationErr *core.ValidationError

		switch origErr := errors.Cause(err); {
		case errors.As(err, &authErr):
			code = http.StatusInternalServerError
			if status, ok := authErrorStatus[authErr.Kind]; ok {
				code = status
			}
			message = echo.Map{"error": authErr.Message(), "kind": authErr.Kind.String()}
			if authErr.Kind == identity.Unknown {
				logger.Error("authentication failed", err, roleOf(ctx))
			}

		case origErr == account.ErrInvalidToken || origErr == account.ErrTokenExpired:
			code = errInvalidResetURL.Code
			message = errInvalidResetURL.Message

		case errors.As(err, &validationErr):
			if validationErr.Fields != nil {
				fldErrs := make(map[string]string, len(validationErr.Fields))
				for _, fErr := range validationErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = validationErr.Error()
			}
			code = http.StatusBadRequest

		default:
			switch origErr := origErr.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				code = http.StatusBadRequest
				message = core.TranslateFields(origErr, translator)
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg), roleOf(ctx))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// roleOf returns the portal of the request, for logs.
func roleOf(ctx echo.Context) map[string]interface{} {
	role, _ := ctx.Get(contextRoleKey).(profile.Role)
	return map[string]interface{}{"role": role.String(), "path": ctx.Path()}
}
