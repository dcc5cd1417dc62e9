package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/aurraa/classroom/core/profile"
)

const contextRoleKey = "role"

// roleMiddleware resolves the `:role` path param into a profile.Role stored in the echo.Context.
func roleMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			role, err := profile.ParseRole(ctx.Param("role"))
			if err != nil {
				return errUnknownRole
			}
			ctx.Set(contextRoleKey, role)
			return next(ctx)
		}
	}
}

func getContextRole(ctx echo.Context) profile.Role {
	role, _ := ctx.Get(contextRoleKey).(profile.Role)
	return role
}
