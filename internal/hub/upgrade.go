package hub

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/dispatch"
	"github.com/arc-self/board-hub/pkg/telemetry"
)

// TicketConsumer resolves and invalidates a single-use upgrade ticket,
// exactly internal/ticket.Store's Consume method.
type TicketConsumer interface {
	Consume(ctx context.Context, t string) (userID string, err error)
}

// Session is the identity the auth collaborator resolves a user id into.
type Session struct {
	DisplayName string
	Color       string
	Avatar      string
}

// SessionResolver looks up display identity for an authenticated user, per
// the HTTP collaborator contract ("given user_id -> {display_name, color,
// avatar}").
type SessionResolver interface {
	Resolve(ctx context.Context, userID string) (Session, error)
}

// Hub upgrades HTTP connections to the real-time transport, gated by a
// single-use ticket, and hands each one off to a Connection.
type Hub struct {
	Tickets    TicketConsumer
	Sessions   SessionResolver
	Dispatcher *dispatch.Dispatcher
	Log        *zap.Logger
	Metrics    *telemetry.HubMetrics

	// OutboundQueueCapacity is OUTBOUND_QUEUE_CAPACITY; <= 0 uses 256.
	OutboundQueueCapacity int

	upgrader websocket.Upgrader
}

// NewHub constructs a Hub. Its websocket.Upgrader accepts any origin, since
// the real-time endpoint is gated by the upgrade ticket rather than CORS.
func NewHub(d *dispatch.Dispatcher, tickets TicketConsumer, sessions SessionResolver, log *zap.Logger, metrics *telemetry.HubMetrics) *Hub {
	return &Hub{
		Tickets:    tickets,
		Sessions:   sessions,
		Dispatcher: d,
		Log:        log,
		Metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeUpgrade handles GET /api/ws?ticket=...&board_id=.... It consumes the
// ticket (failing the upgrade on anything but success, since a ticket is
// single-use and must never be left half-consumed), resolves session
// identity for presence, and blocks for the connection's lifetime.
func (h *Hub) ServeUpgrade(c echo.Context) error {
	ctx := c.Request().Context()

	t := c.QueryParam("ticket")
	if t == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing ticket")
	}
	boardID := c.QueryParam("board_id")
	if boardID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing board_id")
	}

	userID, err := h.Tickets.Consume(ctx, t)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired ticket")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return nil // Upgrade already wrote a response.
	}

	conn := newConnection(uuid.NewString(), userID, ws, h.OutboundQueueCapacity, h.Log, h.Metrics, h.Dispatcher, h.Sessions)
	conn.Run(ctx, boardID)
	return nil
}
