// Package dispatch implements the syscall handlers the hub routes frames
// to, keyed by the prefix before the first colon in Frame.Syscall. It is
// the single mutation surface shared by human connections and the AI agent
// loop — a tool call and a human edit both flow through the same
// ObjectCreate/ObjectUpdate/ObjectDelete methods, so they are
// indistinguishable in the broadcast and the frame log.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/internal/object"
	"github.com/arc-self/board-hub/pkg/telemetry"
)

// Error codes surfaced to clients on an error-status frame.
const (
	CodeMalformedFrame  = "MalformedFrame"
	CodeUnknownSyscall  = "UnknownSyscall"
	CodeAuthFailed      = "AuthFailed"
	CodeForbidden       = "Forbidden"
	CodeUnknownBoard    = "UnknownBoard"
	CodeUnknownObject   = "UnknownObject"
	CodeDuplicateObject = "DuplicateObject"
	CodeRateLimited     = "RateLimited"
	CodeLlmTimeout      = "LlmTimeout"
	CodeLlmProviderError = "LlmProviderError"
	CodeInternal        = "Internal"
	CodeCancelled       = "Cancelled"
)

// ACLChecker authorizes a user against a board, backed by the external
// board-ACL collaborator (internal/aclclient).
type ACLChecker interface {
	IsAuthorized(ctx context.Context, boardID, userID string) (bool, error)
}

// IDGenerator produces new object/message ids. Swappable for deterministic
// tests.
type IDGenerator func() string

// Clock returns the current time in epoch milliseconds. Swappable for
// deterministic tests.
type Clock func() int64

// FrameSink receives every accepted, loggable frame on its way out, for
// the frame-log pipeline to enqueue.
type FrameSink interface {
	Enqueue(f frame.Frame)
}

// AgentHandler runs the ai:prompt tool-call loop (internal/agent). It lives
// behind an interface here, rather than a direct import, so internal/agent
// can depend on Dispatcher (to replay its tool calls through the same
// object:* handlers a human uses) without an import cycle.
type AgentHandler interface {
	HandlePrompt(ctx context.Context, connID, boardID, userID string, f frame.Frame) []frame.Frame
}

// Dispatcher routes inbound frames to their syscall handler and performs
// the resulting broadcast and frame-log enqueue.
type Dispatcher struct {
	Boards    *board.Registry
	BoardDB   dbstore.BoardQuerier
	ObjectDB  dbstore.ObjectQuerier
	ChatDB    dbstore.ChatQuerier
	ACL       ACLChecker
	FrameLog  FrameSink
	Agent     AgentHandler
	Metrics   *telemetry.HubMetrics
	Log       *zap.Logger
	NewID     IDGenerator
	Now       Clock

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// registerCancel tracks the CancelFunc for an in-flight request keyed by
// its own frame id, so a later StatusCancel frame addressed to that id by
// ParentID can abort it.
func (d *Dispatcher) registerCancel(id string, cancel context.CancelFunc) {
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	if d.cancels == nil {
		d.cancels = make(map[string]context.CancelFunc)
	}
	d.cancels[id] = cancel
}

func (d *Dispatcher) clearCancel(id string) {
	d.cancelMu.Lock()
	defer d.cancelMu.Unlock()
	delete(d.cancels, id)
}

// cancelInflight cancels and deregisters the request tracked under id,
// reporting whether one was found.
func (d *Dispatcher) cancelInflight(id string) bool {
	d.cancelMu.Lock()
	cancel, ok := d.cancels[id]
	delete(d.cancels, id)
	d.cancelMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Dispatch routes f by its syscall prefix, returning the response frames
// addressed to the sender only (item* then done, or a single error).
// Broadcasts to other subscribers and frame-log enqueue happen as a side
// effect before Dispatch returns. sub is the caller's own subscriber handle
// (internal/hub's connection, or a fake in tests) — it is only needed for
// board:join, which must register it with the board coordinator, but every
// handler is reached through the same entrypoint so a connID alone is never
// enough to construct one out of thin air.
func (d *Dispatcher) Dispatch(ctx context.Context, sub board.Subscriber, boardID, userID string, f frame.Frame) []frame.Frame {
	connID := sub.ID()

	// A cancel frame targets an in-flight request by ParentID (currently
	// only ai:prompt runs long enough to be worth cancelling). It is
	// handled before syscall-prefix routing since it addresses a request
	// id, not a syscall.
	if f.Status == frame.StatusCancel {
		resp := []frame.Frame{d.doneFrame(f, frame.Null)}
		if !d.cancelInflight(f.ParentID) {
			resp = []frame.Frame{d.errorFrame(f, CodeUnknownObject, "no in-flight request to cancel")}
		}
		return resp
	}

	prefix, _, _ := strings.Cut(f.Syscall, ":")

	var resp []frame.Frame
	switch prefix {
	case "board":
		resp = d.dispatchBoard(ctx, sub, userID, f)
	case "object":
		resp = d.dispatchObject(ctx, connID, boardID, userID, f)
	case "cursor", "drag":
		resp = d.dispatchEphemeral(connID, boardID, f)
	case "chat":
		resp = d.dispatchChat(ctx, connID, boardID, userID, f)
	case "ai":
		resp = d.dispatchAI(ctx, connID, boardID, userID, f)
	default:
		resp = []frame.Frame{d.errorFrame(f, CodeUnknownSyscall, "unknown syscall prefix: "+prefix)}
	}

	accepted := true
	for _, r := range resp {
		if r.Status == frame.StatusError {
			accepted = false
		}
	}
	if accepted && Loggable(f.Syscall) {
		logged := f
		logged.BoardID = boardID
		logged.From = userID
		d.FrameLog.Enqueue(logged)
	}
	return resp
}

// Loggable mirrors internal/persist.Loggable without importing it, keeping
// dispatch free of a dependency on the persistence pipeline package.
func Loggable(syscall string) bool {
	prefix, _, _ := strings.Cut(syscall, ":")
	return prefix != "cursor" && prefix != "drag"
}

// dispatchAI runs ai:prompt on its own goroutine rather than the caller's
// (the connection's single reader goroutine), since a prompt can take many
// LLM round-trips. Running it inline would leave no way to read a
// same-connection cancel frame until the prompt finished. The response
// frames HandlePrompt would otherwise return are instead sent directly to
// the sender as they complete, via the same addressed-send path broadcasts
// use for overflow bookkeeping.
func (d *Dispatcher) dispatchAI(ctx context.Context, connID, boardID, userID string, f frame.Frame) []frame.Frame {
	if d.Agent == nil {
		return []frame.Frame{d.errorFrame(f, CodeUnknownSyscall, "ai agent is not configured")}
	}

	promptCtx, cancel := context.WithCancel(ctx)
	d.registerCancel(f.ID, cancel)
	b := d.Boards.GetOrCreate(boardID)

	go func() {
		defer d.clearCancel(f.ID)
		defer cancel()
		for _, r := range d.Agent.HandlePrompt(promptCtx, connID, boardID, userID, f) {
			d.send(b, connID, r)
		}
	}()

	return nil
}

func (d *Dispatcher) now() int64 {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UnixMilli()
}

func (d *Dispatcher) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return object.NewID()
}

func (d *Dispatcher) errorFrame(req frame.Frame, code, message string) frame.Frame {
	return frame.Frame{
		ID:       d.newID(),
		ParentID: req.ID,
		TsMillis: d.now(),
		BoardID:  req.BoardID,
		Syscall:  req.Syscall,
		Status:   frame.StatusError,
		Payload:  frame.ErrorPayload(code, message),
	}
}

func (d *Dispatcher) doneFrame(req frame.Frame, payload frame.Value) frame.Frame {
	return frame.Frame{
		ID:       d.newID(),
		ParentID: req.ID,
		TsMillis: d.now(),
		BoardID:  req.BoardID,
		Syscall:  req.Syscall,
		Status:   frame.StatusDone,
		Payload:  payload,
	}
}

func (d *Dispatcher) itemFrame(req frame.Frame, payload frame.Value) frame.Frame {
	return frame.Frame{
		ID:       d.newID(),
		ParentID: req.ID,
		TsMillis: d.now(),
		BoardID:  req.BoardID,
		Syscall:  req.Syscall,
		Status:   frame.StatusItem,
		Payload:  payload,
	}
}

// broadcast encodes f and fans it out to b's subscribers, excluding
// excludeConnID (pass "" to exclude none). Overflowed connections are
// logged here; the subscriber's own Enqueue decides what overflow does
// (internal/hub's Connection closes itself at that point).
func (d *Dispatcher) broadcast(b *board.Board, f frame.Frame, excludeConnID string) {
	data := frame.Encode(f)
	overflowed := b.Broadcast(data, excludeConnID)
	for _, id := range overflowed {
		d.Log.Warn("outbound queue overflow, connection marked slow", zap.String("board_id", b.ID), zap.String("conn_id", id))
	}
	if d.Metrics != nil {
		d.Metrics.FramesDispatched.Add(context.Background(), 1)
	}
}

func (d *Dispatcher) send(b *board.Board, connID string, f frame.Frame) {
	if !b.Send(connID, frame.Encode(f)) {
		d.Log.Warn("outbound queue overflow on direct send", zap.String("board_id", b.ID), zap.String("conn_id", connID))
	}
}
