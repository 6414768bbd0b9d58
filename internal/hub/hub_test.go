package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/dispatch"
	"github.com/arc-self/board-hub/internal/frame"
)

type fakeBoardDB struct{ rows map[string]dbstore.BoardRow }

func (f *fakeBoardDB) GetBoard(ctx context.Context, id string) (dbstore.BoardRow, error) {
	row, ok := f.rows[id]
	if !ok {
		return dbstore.BoardRow{}, dbstore.ErrBoardNotFound
	}
	return row, nil
}
func (f *fakeBoardDB) CreateBoard(ctx context.Context, b dbstore.BoardRow) error { return nil }
func (f *fakeBoardDB) IsMember(ctx context.Context, boardID, userID string) (bool, error) {
	return true, nil
}
func (f *fakeBoardDB) ListBoardsForUser(ctx context.Context, userID string) ([]dbstore.BoardRow, error) {
	return nil, nil
}
func (f *fakeBoardDB) DeleteBoard(ctx context.Context, id, ownerID string) error { return nil }

type fakeObjectDB struct{}

func (fakeObjectDB) UpsertObjects(ctx context.Context, rows []dbstore.ObjectRow) error { return nil }
func (fakeObjectDB) DeleteObjects(ctx context.Context, boardID string, ids []string) error {
	return nil
}
func (fakeObjectDB) ListObjects(ctx context.Context, boardID string) ([]dbstore.ObjectRow, error) {
	return nil, nil
}

type fakeChatDB struct{}

func (fakeChatDB) InsertMessage(ctx context.Context, m dbstore.ChatMessageRow) error { return nil }
func (fakeChatDB) History(ctx context.Context, boardID string, limit int) ([]dbstore.ChatMessageRow, error) {
	return nil, nil
}

type allowACL struct{}

func (allowACL) IsAuthorized(ctx context.Context, boardID, userID string) (bool, error) {
	return true, nil
}

type noopSink struct{}

func (noopSink) Enqueue(f frame.Frame) {}

type fakeTickets struct{ userID string }

var errInvalidTicket = errors.New("ticket not found")

func (f fakeTickets) Consume(ctx context.Context, t string) (string, error) {
	if t != "valid-ticket" {
		return "", errInvalidTicket
	}
	return f.userID, nil
}

type fakeSessions struct{}

func (fakeSessions) Resolve(ctx context.Context, userID string) (Session, error) {
	return Session{DisplayName: "Ada", Color: "#ff0000"}, nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	d := &dispatch.Dispatcher{
		Boards:   board.NewRegistry(),
		BoardDB:  &fakeBoardDB{rows: map[string]dbstore.BoardRow{"board-1": {ID: "board-1", IsPublic: true}}},
		ObjectDB: fakeObjectDB{},
		ChatDB:   fakeChatDB{},
		ACL:      allowACL{},
		FrameLog: noopSink{},
		Log:      zap.NewNop(),
	}
	return NewHub(d, fakeTickets{userID: "user-1"}, fakeSessions{}, zap.NewNop(), nil)
}

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.GET("/api/ws", h.ServeUpgrade)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, ticket, boardID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?ticket=" + ticket + "&board_id=" + boardID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	return conn
}

func TestUpgradeRejectsMissingTicket(t *testing.T) {
	h := newTestHub(t)
	srv := newTestServer(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?board_id=board-1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpgradeRejectsMissingBoardID(t *testing.T) {
	h := newTestHub(t)
	srv := newTestServer(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?ticket=valid-ticket"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpgradeRejectsInvalidTicket(t *testing.T) {
	h := newTestHub(t)
	srv := newTestServer(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?ticket=bogus&board_id=board-1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectionJoinsBoardAndReceivesSnapshot(t *testing.T) {
	h := newTestHub(t)
	srv := newTestServer(t, h)

	conn := dial(t, srv, "valid-ticket", "board-1")
	defer conn.Close()

	joinFrame := frame.Frame{
		ID:      "req-1",
		Syscall: "board:join",
		Payload: frame.Map(map[string]frame.Value{"board_id": frame.String("board-1")}),
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame.Encode(joinFrame)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	resp, err := frame.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, frame.StatusDone, resp.Status)
}

func TestConnectionSendsPresenceToOtherSubscriber(t *testing.T) {
	h := newTestHub(t)
	srv := newTestServer(t, h)

	first := dial(t, srv, "valid-ticket", "board-1")
	defer first.Close()

	joinFrame := frame.Frame{
		ID:      "req-1",
		Syscall: "board:join",
		Payload: frame.Map(map[string]frame.Value{"board_id": frame.String("board-1")}),
	}
	require.NoError(t, first.WriteMessage(websocket.BinaryMessage, frame.Encode(joinFrame)))
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage() // done frame for the first connection's own join
	require.NoError(t, err)

	second := dial(t, srv, "valid-ticket", "board-1")
	defer second.Close()
	require.NoError(t, second.WriteMessage(websocket.BinaryMessage, frame.Encode(joinFrame)))

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := first.ReadMessage() // board:presence broadcast about the second connection
	require.NoError(t, err)

	presence, err := frame.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "board:presence", presence.Syscall)
	name, _ := presence.Payload.Get("display_name")
	s, _ := name.AsString()
	assert.Equal(t, "Ada", s)
}
