package dbstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FrameRow mirrors one row of the append-only frames log.
type FrameRow struct {
	TsMillis int64
	ID       string
	ParentID string
	Syscall  string
	Status   uint8
	BoardID  string
	From     string
	Payload  []byte // JSON-encoded frame.Value
}

// FrameQuerier is the subset of durable-frame operations the frame-log
// pipeline needs.
type FrameQuerier interface {
	AppendFrames(ctx context.Context, rows []FrameRow) error
}

// PgFrameLog implements FrameQuerier against Postgres.
type PgFrameLog struct {
	pool *pgxpool.Pool
}

// NewPgFrameLog constructs a PgFrameLog.
func NewPgFrameLog(pool *pgxpool.Pool) *PgFrameLog {
	return &PgFrameLog{pool: pool}
}

const insertFrameSQL = `
INSERT INTO frames (ts, id, parent_id, syscall, status, board_id, "from", payload)
VALUES (to_timestamp($1 / 1000.0), $2, $3, $4, $5, $6, $7, $8)`

// AppendFrames writes rows in a single batched transaction — the frame-log
// writer's unit of work per tick.
func (l *PgFrameLog) AppendFrames(ctx context.Context, rows []FrameRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertFrameSQL, r.TsMillis, r.ID, nullable(r.ParentID), r.Syscall, r.Status, nullable(r.BoardID), nullable(r.From), r.Payload)
	}
	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
