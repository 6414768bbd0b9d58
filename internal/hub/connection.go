// Package hub owns the lifecycle of a single real-time connection: upgrade
// (gated by a single-use ticket), the reader and writer goroutines (the
// writer also sends the heartbeat pings),
// per-connection rate limiting and outbound backpressure, and routing every
// inbound frame into internal/dispatch.Dispatcher. A Connection implements
// board.Subscriber directly, so it is the same value the dispatcher fans
// broadcasts out to.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/dispatch"
	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/pkg/resilience"
	"github.com/arc-self/board-hub/pkg/telemetry"
)

// Heartbeat tunables. The hub pings every PingInterval; a connection that
// has not been heard from (any frame, or a pong) within PongWait is
// considered dead and closed.
const (
	PingInterval = 20 * time.Second
	PongWait     = 45 * time.Second
)

// DefaultPerConnRate is the per-connection inbound rate limit: 100/sec,
// burst 200.
var DefaultPerConnRate = resilience.LimiterOpts{Rate: 100, Burst: 200}

// Connection is one upgraded real-time connection. It implements
// board.Subscriber.
type Connection struct {
	id       string
	userID   string
	ws       *websocket.Conn
	out      chan []byte
	log      *zap.Logger
	limiter  *resilience.Limiter
	metrics  *telemetry.HubMetrics
	dispatch *dispatch.Dispatcher
	sessions SessionResolver

	closeOnce sync.Once
	closed    chan struct{}
}

// newConnection wraps an already-upgraded websocket connection.
func newConnection(id, userID string, ws *websocket.Conn, outboundCapacity int, log *zap.Logger, metrics *telemetry.HubMetrics, d *dispatch.Dispatcher, sessions SessionResolver) *Connection {
	if outboundCapacity <= 0 {
		outboundCapacity = 256
	}
	return &Connection{
		id:       id,
		userID:   userID,
		ws:       ws,
		out:      make(chan []byte, outboundCapacity),
		log:      log,
		limiter:  resilience.NewLimiter(DefaultPerConnRate),
		metrics:  metrics,
		dispatch: d,
		sessions: sessions,
		closed:   make(chan struct{}),
	}
}

// ID implements board.Subscriber.
func (c *Connection) ID() string { return c.id }

// Enqueue implements board.Subscriber. It never blocks: a full outbound
// queue marks the connection as overflowed and the caller (dispatch's
// broadcast) logs it, but actually tearing the connection down happens
// here, since Enqueue is the only place that can detect the overflow
// without holding the board lock.
func (c *Connection) Enqueue(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		c.log.Warn("outbound queue overflow, closing slow connection", zap.String("conn_id", c.id))
		c.Close()
		return false
	}
}

// Close tears the connection down exactly once, signalling both pumps to
// exit and closing the underlying socket.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Run blocks for the lifetime of the connection, running its read loop,
// write loop, and heartbeat concurrently. ctx cancellation (e.g. server
// shutdown) tears the connection down.
func (c *Connection) Run(ctx context.Context, boardID string) {
	if c.metrics != nil {
		c.metrics.ActiveConnections.Add(ctx, 1)
		defer c.metrics.ActiveConnections.Add(ctx, -1)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump(connCtx) }()
	go func() { defer wg.Done(); c.readPump(connCtx, boardID) }()

	select {
	case <-ctx.Done():
	case <-c.closed:
	}
	c.Close()
	wg.Wait()
}

func (c *Connection) readPump(ctx context.Context, boardID string) {
	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("connection handler panicked, closing connection", zap.String("conn_id", c.id), zap.Any("panic", r))
		}
	}()

	c.ws.SetReadDeadline(time.Now().Add(PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(PongWait))

		if !c.limiter.Allow() {
			c.sendError(dispatch.CodeRateLimited, "inbound rate limit exceeded")
			continue
		}

		f, err := frame.Decode(data)
		if err != nil {
			c.sendError(dispatch.CodeMalformedFrame, "could not decode frame")
			continue
		}

		if f.Syscall == "board:join" {
			f = c.attachSessionAttrs(ctx, f)
		}

		resp := c.dispatch.Dispatch(ctx, c, boardID, c.userID, f)
		for _, r := range resp {
			if !c.Enqueue(frame.Encode(r)) {
				return
			}
		}
	}
}

// attachSessionAttrs resolves the joining user's display identity and folds
// it into the frame's payload so dispatch.boardJoin can build a named
// Presence instead of a bare user id. A resolution failure degrades to an
// unnamed participant rather than rejecting the join.
func (c *Connection) attachSessionAttrs(ctx context.Context, f frame.Frame) frame.Frame {
	if c.sessions == nil {
		return f
	}
	sess, err := c.sessions.Resolve(ctx, c.userID)
	if err != nil {
		c.log.Warn("session resolution failed", zap.String("user_id", c.userID), zap.Error(err))
		return f
	}

	fields := map[string]frame.Value{
		"display_name": frame.String(sess.DisplayName),
		"color":        frame.String(sess.Color),
	}
	if m, ok := f.Payload.AsMap(); ok {
		for k, v := range m {
			fields[k] = v
		}
	}
	f.Payload = frame.Map(fields)
	return f
}

// sendError builds a best-effort error response when the inbound frame
// could not even be decoded enough to carry a ParentID.
func (c *Connection) sendError(code, message string) {
	f := frame.Frame{
		ID:       c.id + "-err",
		TsMillis: time.Now().UnixMilli(),
		Syscall:  "error",
		Status:   frame.StatusError,
		Payload:  frame.ErrorPayload(code, message),
	}
	c.Enqueue(frame.Encode(f))
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case data := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
