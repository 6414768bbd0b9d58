package dbstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatMessageRow mirrors one row of the chat_messages table — the
// supplemental per-board chat feature (chat:message / chat:history).
type ChatMessageRow struct {
	ID        string
	BoardID   string
	UserID    string
	Body      string
	CreatedAt time.Time
}

// ChatQuerier is the subset of chat operations the hub needs.
type ChatQuerier interface {
	InsertMessage(ctx context.Context, m ChatMessageRow) error
	History(ctx context.Context, boardID string, limit int) ([]ChatMessageRow, error)
}

// PgChatStore implements ChatQuerier against Postgres.
type PgChatStore struct {
	pool *pgxpool.Pool
}

// NewPgChatStore constructs a PgChatStore.
func NewPgChatStore(pool *pgxpool.Pool) *PgChatStore {
	return &PgChatStore{pool: pool}
}

const insertChatSQL = `INSERT INTO chat_messages (id, board_id, user_id, body, created_at) VALUES ($1, $2, $3, $4, now())`

func (s *PgChatStore) InsertMessage(ctx context.Context, m ChatMessageRow) error {
	_, err := s.pool.Exec(ctx, insertChatSQL, m.ID, m.BoardID, m.UserID, m.Body)
	return err
}

const chatHistorySQL = `SELECT id, board_id, user_id, body, created_at FROM chat_messages WHERE board_id = $1 ORDER BY created_at DESC LIMIT $2`

func (s *PgChatStore) History(ctx context.Context, boardID string, limit int) ([]ChatMessageRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, chatHistorySQL, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessageRow
	for rows.Next() {
		var m ChatMessageRow
		if err := rows.Scan(&m.ID, &m.BoardID, &m.UserID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
