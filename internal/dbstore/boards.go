package dbstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBoardNotFound is returned by GetBoard when no row matches id.
var ErrBoardNotFound = errors.New("dbstore: board not found")

// BoardRow mirrors one row of the boards table.
type BoardRow struct {
	ID        string
	Name      string
	OwnerID   string
	IsPublic  bool
	CreatedAt time.Time
}

// BoardQuerier is the subset of board-CRUD operations the hub needs for
// board:join authorization and supplemental board management.
type BoardQuerier interface {
	GetBoard(ctx context.Context, id string) (BoardRow, error)
	CreateBoard(ctx context.Context, b BoardRow) error
	IsMember(ctx context.Context, boardID, userID string) (bool, error)
	ListBoardsForUser(ctx context.Context, userID string) ([]BoardRow, error)
	DeleteBoard(ctx context.Context, id, ownerID string) error
}

// ErrNotOwner is returned by DeleteBoard when the caller does not own the
// board (board:delete is owner-only).
var ErrNotOwner = errors.New("dbstore: caller does not own board")

// PgBoardStore implements BoardQuerier against Postgres.
type PgBoardStore struct {
	pool *pgxpool.Pool
}

// NewPgBoardStore constructs a PgBoardStore.
func NewPgBoardStore(pool *pgxpool.Pool) *PgBoardStore {
	return &PgBoardStore{pool: pool}
}

const getBoardSQL = `SELECT id, name, owner_id, is_public, created_at FROM boards WHERE id = $1`

func (s *PgBoardStore) GetBoard(ctx context.Context, id string) (BoardRow, error) {
	var b BoardRow
	err := s.pool.QueryRow(ctx, getBoardSQL, id).Scan(&b.ID, &b.Name, &b.OwnerID, &b.IsPublic, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BoardRow{}, ErrBoardNotFound
	}
	return b, err
}

const createBoardSQL = `INSERT INTO boards (id, name, owner_id, is_public, created_at) VALUES ($1, $2, $3, $4, now())`

func (s *PgBoardStore) CreateBoard(ctx context.Context, b BoardRow) error {
	_, err := s.pool.Exec(ctx, createBoardSQL, b.ID, b.Name, b.OwnerID, b.IsPublic)
	return err
}

const isMemberSQL = `SELECT EXISTS(SELECT 1 FROM board_members WHERE board_id = $1 AND user_id = $2)`

func (s *PgBoardStore) IsMember(ctx context.Context, boardID, userID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, isMemberSQL, boardID, userID).Scan(&ok)
	return ok, err
}

const listBoardsForUserSQL = `
SELECT DISTINCT b.id, b.name, b.owner_id, b.is_public, b.created_at
FROM boards b
LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = $1
WHERE b.owner_id = $1 OR m.user_id = $1
ORDER BY b.created_at DESC`

// ListBoardsForUser returns every board the user owns or is a member of,
// backing the supplemental board:list syscall.
func (s *PgBoardStore) ListBoardsForUser(ctx context.Context, userID string) ([]BoardRow, error) {
	rows, err := s.pool.Query(ctx, listBoardsForUserSQL, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BoardRow
	for rows.Next() {
		var b BoardRow
		if err := rows.Scan(&b.ID, &b.Name, &b.OwnerID, &b.IsPublic, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const deleteBoardSQL = `DELETE FROM boards WHERE id = $1 AND owner_id = $2`

// DeleteBoard removes a board and (via ON DELETE CASCADE) its member,
// object, and chat rows. It is owner-only: if ownerID does not match the
// row's owner_id, zero rows are affected and ErrNotOwner is returned
// rather than silently no-op-ing.
func (s *PgBoardStore) DeleteBoard(ctx context.Context, id, ownerID string) error {
	tag, err := s.pool.Exec(ctx, deleteBoardSQL, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetBoard(ctx, id); errors.Is(err, ErrBoardNotFound) {
			return ErrBoardNotFound
		}
		return ErrNotOwner
	}
	return nil
}
