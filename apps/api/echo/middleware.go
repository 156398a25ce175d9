package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/stenolearn/backend/core/user"
)

// roleMiddleware only lets through the users for whom allowed returns true.
func roleMiddleware(auth *authenticator, allowed func(usr user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := auth.contextUser(ctx)
			if err != nil {
				return err
			}
			if allowed(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, func(usr user.User) bool { return usr.IsAdmin() })
}

// staffMiddleware lets through teachers and admins.
func staffMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, isStaff)
}

func studentMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, func(usr user.User) bool { return usr.IsStudent() })
}

func isStaff(usr user.User) bool {
	return usr.IsTeacher() || usr.IsAdmin()
}

// activeUserMiddleware rejects the tokens of deleted or deactivated users.
func activeUserMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, func(user.User) bool { return true })
}
