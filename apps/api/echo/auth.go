package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/services/identity/directory"
)

const contextTokenKey = "idToken"

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")

type directoryApi struct {
	adapter *directory.Adapter
}

// registerDirectoryAPI exposes the endpoints only the self-hosted directory needs:
// the target of the reset links it mails, and a check of the id tokens it issues.
func registerDirectoryAPI(g *echo.Group, adapter *directory.Adapter, conf *core.Config) {
	api := directoryApi{adapter: adapter}

	jwtAuth := middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(directory.Claims),
	})

	dg := g.Group("/directory")
	dg.POST("/password-reset-confirm", api.confirmPasswordReset)
	dg.GET("/me", api.me, jwtAuth)
}

func getContextClaims(ctx echo.Context) (directory.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*directory.Claims); ok {
			return *claims, nil
		}
	}
	return directory.Claims{}, errUnauthorized
}

// Handlers

func (api *directoryApi) confirmPasswordReset(ctx echo.Context) error {
	var data account.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}

	if err := api.adapter.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *directoryApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rec, err := api.adapter.GetUserData(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == identity.ErrNoRecord {
			return errUnauthorized
		}
		return errors.Wrap(err, "fetching user record")
	}
	return ctx.JSON(http.StatusOK, rec)
}
