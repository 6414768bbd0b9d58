// Package persist implements the hub's two independent batched persistence
// pipelines: the object-flush pipeline (periodic drain-and-upsert of every
// board's dirty set) and the frame-log pipeline (bounded-queue append-only
// log of non-ephemeral frames, mirrored to NATS JetStream for the external
// observability UI).
package persist

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/object"
	"github.com/arc-self/board-hub/pkg/telemetry"
)

// DefaultFlushInterval is FLUSH_INTERVAL_MS's default.
const DefaultFlushInterval = 100 * time.Millisecond

// Flusher runs the object-flush pipeline: every interval it iterates every
// live board, drains its dirty set, and performs a batched upsert/delete
// against the durable store.
type Flusher struct {
	registry *board.Registry
	store    dbstore.ObjectQuerier
	interval time.Duration
	log      *zap.Logger
	metrics  *telemetry.HubMetrics
}

// NewFlusher constructs a Flusher. interval <= 0 uses DefaultFlushInterval.
func NewFlusher(registry *board.Registry, store dbstore.ObjectQuerier, interval time.Duration, log *zap.Logger, metrics *telemetry.HubMetrics) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Flusher{registry: registry, store: store, interval: interval, log: log, metrics: metrics}
}

// Run blocks, ticking until ctx is cancelled. On cancellation it performs
// one final synchronous flush before returning, per the graceful-shutdown
// contract.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.FlushOnce(context.Background())
			return
		case <-ticker.C:
			f.FlushOnce(ctx)
		}
	}
}

// FlushOnce drains every board's dirty set and persists it. A failed board
// has its drained entries merged back into that board's dirty set so the
// next tick retries — other boards' flushes are unaffected.
func (f *Flusher) FlushOnce(ctx context.Context) {
	for _, b := range f.registry.All() {
		f.flushBoard(ctx, b)
	}
}

func (f *Flusher) flushBoard(ctx context.Context, b *board.Board) {
	var drained []object.DirtyObject
	b.WithLock(func(objs *object.Store) {
		drained = objs.DrainDirty()
	})
	if len(drained) == 0 {
		return
	}

	var upserts []dbstore.ObjectRow
	var deleteIDs []string
	for _, d := range drained {
		if d.Deleted {
			deleteIDs = append(deleteIDs, d.ID)
			continue
		}
		propsJSON, err := json.Marshal(d.Object.Props)
		if err != nil {
			f.log.Error("flush: encode props failed", zap.String("board_id", b.ID), zap.String("object_id", d.ID), zap.Error(err))
			continue
		}
		upserts = append(upserts, dbstore.ToRow(d.Object, propsJSON))
	}

	// Deletions are persisted before upserts from the same tick, so a
	// delete-then-recreate of the same id within one tick lands correctly.
	var failed bool
	if len(deleteIDs) > 0 {
		if err := f.store.DeleteObjects(ctx, b.ID, deleteIDs); err != nil {
			f.log.Error("flush: delete failed", zap.String("board_id", b.ID), zap.Error(err))
			failed = true
		}
	}
	if len(upserts) > 0 {
		if err := f.store.UpsertObjects(ctx, upserts); err != nil {
			f.log.Error("flush: upsert failed", zap.String("board_id", b.ID), zap.Error(err))
			failed = true
		}
	}

	if failed {
		b.WithLock(func(objs *object.Store) {
			objs.Requeue(drained)
		})
		return
	}

	if f.metrics != nil {
		f.metrics.ObjectsFlushed.Add(ctx, int64(len(drained)))
	}
}
