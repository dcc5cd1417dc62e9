package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/profile"
	"github.com/aurraa/classroom/core/session"
)

type sessionApi struct {
	reconciler *session.Reconciler
	gate       *session.Gate
}

func registerSessionAPI(g *echo.Group, reconciler *session.Reconciler, gate *session.Gate) {
	api := sessionApi{reconciler: reconciler, gate: gate}

	// TODO: rate limit `/login` & `/password-reset`
	sg := g.Group("/:role", roleMiddleware())
	sg.POST("/login", api.login)
	sg.POST("/signup", api.signUp)
	sg.POST("/logout", api.logout)
	sg.POST("/guest", api.guest)
	sg.POST("/password-reset", api.resetPassword)
	sg.GET("/session", api.session)
	sg.GET("/start", api.start)
	sg.GET("/remembered", api.remembered)
}

// Handlers

func (api *sessionApi) signedIn(ctx echo.Context, prof profile.Profile) error {
	return ctx.JSON(http.StatusOK, SessionResponse{
		Profile:  prof.Public(),
		Redirect: api.gate.RouteAfterAuth(getContextRole(ctx)),
	})
}

func (api *sessionApi) login(ctx echo.Context) error {
	var data session.Login
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Login")
	}
	data.Role = getContextRole(ctx)

	prof, err := api.reconciler.Authenticate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return api.signedIn(ctx, prof)
}

func (api *sessionApi) signUp(ctx echo.Context) error {
	var data session.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	data.Role = getContextRole(ctx)

	prof, err := api.reconciler.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return api.signedIn(ctx, prof)
}

func (api *sessionApi) logout(ctx echo.Context) error {
	role := getContextRole(ctx)
	if err := api.reconciler.SignOut(ctx.Request().Context(), role); err != nil {
		return errors.Wrap(err, "signing out")
	}
	return ctx.JSON(http.StatusOK, RedirectResponse{Redirect: api.gate.RouteToLogin(role)})
}

func (api *sessionApi) guest(ctx echo.Context) error {
	prof, err := api.reconciler.GuestLogin(ctx.Request().Context(), getContextRole(ctx))
	if err != nil {
		return errors.Wrap(err, "signing in as guest")
	}
	return api.signedIn(ctx, prof)
}

func (api *sessionApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}

	email := core.CleanString(data.Email, true /* lower */)
	if err := api.reconciler.RequestPasswordReset(ctx.Request().Context(), email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "Password reset email sent! Please check your inbox.",
	})
}

func (api *sessionApi) session(ctx echo.Context) error {
	prof, err := api.reconciler.Profiles().Get(ctx.Request().Context(), getContextRole(ctx))
	if err != nil {
		if errors.Cause(err) == profile.ErrNotFound {
			return errNoSession
		}
		return errors.Wrap(err, "reading stored profile")
	}
	return ctx.JSON(http.StatusOK, prof.Public())
}

func (api *sessionApi) start(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, RedirectResponse{Redirect: api.gate.Start(ctx.Request().Context(), getContextRole(ctx))})
}

func (api *sessionApi) remembered(ctx echo.Context) error {
	r, ok, err := api.reconciler.Remembered(ctx.Request().Context(), getContextRole(ctx))
	if err != nil {
		return errors.Wrap(err, "reading remembered login")
	}
	return ctx.JSON(http.StatusOK, RememberedResponse{Remember: ok, Remembered: r})
}
