package persist

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/pkg/natsclient"
)

// Default frame-log tunables (FRAME_QUEUE_CAPACITY, FRAME_BATCH_MAX,
// FRAME_BATCH_INTERVAL_MS).
const (
	DefaultQueueCapacity = 8192
	DefaultBatchMax      = 128
	DefaultBatchInterval = 5 * time.Millisecond
)

// nonLoggedPrefixes are syscall prefixes never enqueued to the frame log —
// cursor and drag frames are high-frequency and purely ephemeral.
var nonLoggedPrefixes = map[string]bool{
	"cursor": true,
	"drag":   true,
}

// Loggable reports whether a frame's syscall prefix is eligible for the
// frame log. The dispatcher must call this on the server-side emission
// path, not on raw inbound bytes, so frames that would be rejected never
// reach the log.
func Loggable(syscall string) bool {
	prefix, _, _ := strings.Cut(syscall, ":")
	return !nonLoggedPrefixes[prefix]
}

// FrameLog is the bounded-queue, batched-writer append-only log of
// non-ephemeral frames, mirrored best-effort to NATS JetStream for the
// external observability UI.
type FrameLog struct {
	queue    chan frame.Frame
	store    dbstore.FrameQuerier
	nats     *natsclient.Client
	batchMax int
	interval time.Duration
	log      *zap.Logger
}

// NewFrameLog constructs a FrameLog. capacity/batchMax/interval <= 0 use
// their defaults. nc may be nil — mirroring is then skipped.
func NewFrameLog(store dbstore.FrameQuerier, nc *natsclient.Client, capacity, batchMax int, interval time.Duration, log *zap.Logger) *FrameLog {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if batchMax <= 0 {
		batchMax = DefaultBatchMax
	}
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	return &FrameLog{
		queue:    make(chan frame.Frame, capacity),
		store:    store,
		nats:     nc,
		batchMax: batchMax,
		interval: interval,
		log:      log,
	}
}

// Enqueue offers f to the log queue without blocking. If the queue is full
// the frame is dropped with a logged warning — the log is observability,
// not source of truth.
func (l *FrameLog) Enqueue(f frame.Frame) {
	select {
	case l.queue <- f:
	default:
		l.log.Warn("frame log queue full, dropping frame", zap.String("id", f.ID), zap.String("syscall", f.Syscall))
	}
}

// Run drains the queue in batches of at most batchMax, flushing whenever a
// batch fills or interval elapses, until ctx is cancelled. On cancellation
// it drains and flushes whatever remains before returning.
func (l *FrameLog) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	batch := make([]frame.Frame, 0, l.batchMax)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.writeBatch(context.Background(), batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			l.drainRemaining(&batch)
			flush()
			return
		case f := <-l.queue:
			batch = append(batch, f)
			if len(batch) >= l.batchMax {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *FrameLog) drainRemaining(batch *[]frame.Frame) {
	for {
		select {
		case f := <-l.queue:
			*batch = append(*batch, f)
		default:
			return
		}
	}
}

func (l *FrameLog) writeBatch(ctx context.Context, batch []frame.Frame) {
	rows := make([]dbstore.FrameRow, 0, len(batch))
	for _, f := range batch {
		payloadJSON, err := json.Marshal(f.Payload)
		if err != nil {
			l.log.Error("frame log: encode payload failed", zap.String("id", f.ID), zap.Error(err))
			continue
		}
		rows = append(rows, dbstore.FrameRow{
			TsMillis: f.TsMillis, ID: f.ID, ParentID: f.ParentID, Syscall: f.Syscall,
			Status: uint8(f.Status), BoardID: f.BoardID, From: f.From, Payload: payloadJSON,
		})
	}

	if err := l.store.AppendFrames(ctx, rows); err != nil {
		l.log.Error("frame log: batch append failed", zap.Int("batch_size", len(rows)), zap.Error(err))
		return
	}

	l.mirror(ctx, batch)
}

// mirror publishes the committed batch to the per-board NATS subject for
// the external observability UI to tail. Mirroring is best-effort: the log
// table, not this stream, is the durable record.
func (l *FrameLog) mirror(ctx context.Context, batch []frame.Frame) {
	if l.nats == nil {
		return
	}
	byBoard := make(map[string][]frame.Frame)
	for _, f := range batch {
		if f.BoardID == "" {
			continue
		}
		byBoard[f.BoardID] = append(byBoard[f.BoardID], f)
	}
	for boardID, frames := range byBoard {
		data, err := json.Marshal(frames)
		if err != nil {
			continue
		}
		if _, err := l.nats.JS.Publish(natsclient.BoardSubject(boardID), data); err != nil {
			l.log.Warn("frame log: NATS mirror publish failed", zap.String("board_id", boardID), zap.Error(err))
		}
	}
}
