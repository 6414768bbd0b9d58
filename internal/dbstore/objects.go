// Package dbstore is the durable-storage boundary: hand-authored Querier
// interfaces and pgx-backed implementations for the objects, frames,
// boards, and chat_messages tables the hub persists to. Interfaces exist
// so the flush and frame-log pipelines can be tested against a fake
// without a live Postgres instance.
package dbstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/internal/object"
)

// ObjectRow mirrors one row of the objects table.
type ObjectRow struct {
	BoardID   string
	ID        string
	Kind      string
	X, Y      float64
	W, H      *float64
	Rotation  float64
	ZIndex    int
	Props     []byte // JSONB-encoded frame.Value
	CreatedBy string
	Version   int64
}

// ObjectQuerier is the subset of durable-object operations the flush
// pipeline needs.
type ObjectQuerier interface {
	UpsertObjects(ctx context.Context, rows []ObjectRow) error
	DeleteObjects(ctx context.Context, boardID string, ids []string) error
	ListObjects(ctx context.Context, boardID string) ([]ObjectRow, error)
}

// PgObjectStore implements ObjectQuerier against Postgres via pgx.Batch,
// matching the batched-write pattern the rest of the corpus uses for
// bulk upserts.
type PgObjectStore struct {
	pool *pgxpool.Pool
}

// NewPgObjectStore constructs a PgObjectStore.
func NewPgObjectStore(pool *pgxpool.Pool) *PgObjectStore {
	return &PgObjectStore{pool: pool}
}

const upsertObjectSQL = `
INSERT INTO objects (board_id, id, kind, x, y, w, h, rotation, z_index, props, created_by, version, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
ON CONFLICT (board_id, id) DO UPDATE SET
  kind = EXCLUDED.kind, x = EXCLUDED.x, y = EXCLUDED.y, w = EXCLUDED.w, h = EXCLUDED.h,
  rotation = EXCLUDED.rotation, z_index = EXCLUDED.z_index, props = EXCLUDED.props,
  version = EXCLUDED.version, updated_at = now()
WHERE EXCLUDED.version >= objects.version`

const deleteObjectSQL = `DELETE FROM objects WHERE board_id = $1 AND id = $2`

// UpsertObjects writes rows in a single batched round trip. The
// WHERE EXCLUDED.version >= objects.version guard makes the upsert itself
// last-write-wins safe even if two flush ticks ever race on the same row.
func (s *PgObjectStore) UpsertObjects(ctx context.Context, rows []ObjectRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertObjectSQL, r.BoardID, r.ID, r.Kind, r.X, r.Y, r.W, r.H, r.Rotation, r.ZIndex, r.Props, r.CreatedBy, r.Version)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObjects removes the given ids from boardID in one batched round trip.
func (s *PgObjectStore) DeleteObjects(ctx context.Context, boardID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(deleteObjectSQL, boardID, id)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ids {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

const listObjectsSQL = `SELECT board_id, id, kind, x, y, w, h, rotation, z_index, props, created_by, version FROM objects WHERE board_id = $1`

// ListObjects reads every persisted object for boardID, used to hydrate a
// board's in-memory store the first time it is joined in this process.
func (s *PgObjectStore) ListObjects(ctx context.Context, boardID string) ([]ObjectRow, error) {
	rows, err := s.pool.Query(ctx, listObjectsSQL, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ObjectRow
	for rows.Next() {
		var r ObjectRow
		if err := rows.Scan(&r.BoardID, &r.ID, &r.Kind, &r.X, &r.Y, &r.W, &r.H, &r.Rotation, &r.ZIndex, &r.Props, &r.CreatedBy, &r.Version); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToRow converts an in-memory object.Object plus its encoded props into a
// durable row.
func ToRow(o object.Object, propsJSON []byte) ObjectRow {
	return ObjectRow{
		BoardID: o.BoardID, ID: o.ID, Kind: o.Kind, X: o.X, Y: o.Y, W: o.W, H: o.H,
		Rotation: o.Rotation, ZIndex: o.ZIndex, Props: propsJSON, CreatedBy: o.CreatedBy, Version: o.Version,
	}
}

// FromRow converts a durable row plus decoded props back into an
// object.Object, used during board hydration.
func FromRow(r ObjectRow, props frame.Value) object.Object {
	return object.Object{
		BoardID: r.BoardID, ID: r.ID, Kind: r.Kind, X: r.X, Y: r.Y, W: r.W, H: r.H,
		Rotation: r.Rotation, ZIndex: r.ZIndex, Props: props, CreatedBy: r.CreatedBy, Version: r.Version,
	}
}
