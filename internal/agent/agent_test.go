package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/dispatch"
	"github.com/arc-self/board-hub/internal/frame"
	"github.com/arc-self/board-hub/internal/llm"
	"github.com/arc-self/board-hub/internal/object"
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

func newTestDispatcher() *dispatch.Dispatcher {
	return &dispatch.Dispatcher{
		Boards:   board.NewRegistry(),
		BoardDB:  &fakeBoardDB{rows: map[string]dbstore.BoardRow{"board-1": {ID: "board-1", IsPublic: true}}},
		ObjectDB: fakeObjectDB{},
		ChatDB:   fakeChatDB{},
		ACL:      allowACL{},
		FrameLog: noopSink{},
		Log:      zap.NewNop(),
	}
}

// scriptedLLM replays a fixed sequence of responses, one per Complete call.
type scriptedLLM struct {
	responses []llm.Response
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if s.calls >= len(s.responses) {
		return llm.Response{}, nil
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func promptFrame(prompt string) frame.Frame {
	return frame.Frame{
		ID:      "req-ai",
		Syscall: "ai:prompt",
		Payload: frame.Map(map[string]frame.Value{
			"prompt": frame.String(prompt),
			"viewport_world_aabb": frame.Map(map[string]frame.Value{
				"x0": frame.Number(0), "y0": frame.Number(0), "x1": frame.Number(1000), "y1": frame.Number(1000),
			}),
		}),
	}
}

func TestHandlePromptCreatesObjectThroughDispatcher(t *testing.T) {
	d := newTestDispatcher()
	llmClient := &scriptedLLM{responses: []llm.Response{
		{
			Message: llm.Message{Role: llm.RoleAssistant},
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "createShape", Arguments: map[string]any{"kind": "rect", "x": 100.0, "y": 100.0, "color": "yellow"}},
			},
			TokensIn: 100, TokensOut: 50,
		},
		{Message: llm.Message{Role: llm.RoleAssistant}},
	}}

	loop := NewLoop(d, llmClient, zap.NewNop(), DefaultConfig())
	resp := loop.HandlePrompt(context.Background(), "conn-1", "board-1", "u1", promptFrame("draw a yellow rectangle"))

	require.NotEmpty(t, resp)
	last := resp[len(resp)-1]
	assert.Equal(t, frame.StatusDone, last.Status)
	mutations, _ := last.Payload.Get("mutations")
	n, _ := mutations.AsNumber()
	assert.Equal(t, float64(1), n)

	b := d.Boards.GetOrCreate("board-1")
	assert.Len(t, boardState(b), 1)
}

func TestHandlePromptStopsAtMaxRounds(t *testing.T) {
	d := newTestDispatcher()
	responses := make([]llm.Response, 0, 12)
	for i := 0; i < 12; i++ {
		responses = append(responses, llm.Response{
			Message: llm.Message{Role: llm.RoleAssistant},
			ToolCalls: []llm.ToolCall{
				{ID: "call", Name: "createShape", Arguments: map[string]any{"kind": "rect", "x": 1.0, "y": 1.0}},
			},
		})
	}
	llmClient := &scriptedLLM{responses: responses}
	cfg := DefaultConfig()
	cfg.MaxRounds = 3

	loop := NewLoop(d, llmClient, zap.NewNop(), cfg)
	resp := loop.HandlePrompt(context.Background(), "conn-1", "board-1", "u1", promptFrame("spam rectangles"))

	last := resp[len(resp)-1]
	rounds, _ := last.Payload.Get("rounds")
	n, _ := rounds.AsNumber()
	assert.Equal(t, float64(3), n)
	assert.Equal(t, 3, llmClient.calls)
}

func TestHandlePromptRateLimited(t *testing.T) {
	d := newTestDispatcher()
	llmClient := &scriptedLLM{}
	cfg := DefaultConfig()
	cfg.PerUserPerMinute = 1
	cfg.GlobalPerMinute = 100

	loop := NewLoop(d, llmClient, zap.NewNop(), cfg)
	loop.HandlePrompt(context.Background(), "conn-1", "board-1", "u1", promptFrame("first"))
	resp := loop.HandlePrompt(context.Background(), "conn-1", "board-1", "u1", promptFrame("second"))

	require.Len(t, resp, 1)
	assert.Equal(t, frame.StatusError, resp[0].Status)
	code, _ := resp[0].Payload.Get("code")
	s, _ := code.AsString()
	assert.Equal(t, dispatch.CodeRateLimited, s)
}

func TestHandlePromptStaleUpdateNotCountedAsMutation(t *testing.T) {
	d := newTestDispatcher()
	b := d.Boards.GetOrCreate("board-1")
	b.WithLock(func(objs *object.Store) {
		require.NoError(t, objs.Insert(object.Object{ID: "o1", BoardID: "board-1", Kind: "rect", Version: 5}))
	})

	llmClient := &scriptedLLM{responses: []llm.Response{
		{
			Message: llm.Message{Role: llm.RoleAssistant},
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "moveObject", Arguments: map[string]any{"id": "o1", "x": 5.0, "y": 5.0, "version": 1.0}},
			},
		},
		{Message: llm.Message{Role: llm.RoleAssistant}},
	}}

	loop := NewLoop(d, llmClient, zap.NewNop(), DefaultConfig())
	resp := loop.HandlePrompt(context.Background(), "conn-1", "board-1", "u1", promptFrame("move it"))

	last := resp[len(resp)-1]
	mutations, _ := last.Payload.Get("mutations")
	n, _ := mutations.AsNumber()
	assert.Equal(t, float64(0), n, "an update with a stale version must not count as a mutation")
}
