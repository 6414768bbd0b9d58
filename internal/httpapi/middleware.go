// Package httpapi is the HTTP-facing surface in front of the real-time
// hub: it propagates the identity the upstream gateway has already
// verified into the request context, and issues upgrade tickets.
package httpapi

import (
	"github.com/labstack/echo/v4"

	coreMw "github.com/arc-self/board-hub/pkg/middleware"
)

// InternalContextMiddleware extracts the X-Internal-User-Id header set by
// the upstream gateway after auth and propagates it into the request
// context using coreMw's key types. Must run before TicketHandler.Issue.
func InternalContextMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if userID := c.Request().Header.Get("X-Internal-User-Id"); userID != "" {
				ctx = coreMw.WithUserID(ctx, userID)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
