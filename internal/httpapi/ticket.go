package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	coreMw "github.com/arc-self/board-hub/pkg/middleware"
)

// TicketIssuer issues a single-use upgrade ticket for an authenticated
// user, mirroring internal/ticket.Store.Issue.
type TicketIssuer interface {
	Issue(ctx context.Context, userID string) (string, error)
}

// TicketHandler exposes POST /ticket, the last step of the authenticated
// HTTP exchange before a client opens the real-time connection.
type TicketHandler struct {
	Tickets TicketIssuer
	Log     *zap.Logger
}

// Register mounts the handler's routes on e.
func (h *TicketHandler) Register(e *echo.Echo) {
	e.POST("/ticket", h.Issue)
}

type issueTicketResponse struct {
	Ticket string `json:"ticket"`
}

// Issue handles POST /ticket. The caller must already have been
// authenticated upstream; InternalContextMiddleware propagates the
// resulting user id into the request context.
func (h *TicketHandler) Issue(c echo.Context) error {
	userID, ok := coreMw.GetUserID(c.Request().Context())
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authenticated user")
	}

	t, err := h.Tickets.Issue(c.Request().Context(), userID)
	if err != nil {
		h.Log.Error("ticket issue failed", zap.String("user_id", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue ticket")
	}
	return c.JSON(http.StatusOK, issueTicketResponse{Ticket: t})
}
