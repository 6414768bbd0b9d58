package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/frame"
)

type fakeFrameStore struct {
	mu   sync.Mutex
	rows []dbstore.FrameRow
}

func (f *fakeFrameStore) AppendFrames(ctx context.Context, rows []dbstore.FrameRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeFrameStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func TestLoggableExcludesCursorAndDrag(t *testing.T) {
	assert.False(t, Loggable("cursor:move"))
	assert.False(t, Loggable("drag:update"))
	assert.True(t, Loggable("object:update"))
	assert.True(t, Loggable("chat:message"))
}

func TestFrameLogFlushesOnBatchFull(t *testing.T) {
	store := &fakeFrameStore{}
	l := NewFrameLog(store, nil, 100, 3, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	defer cancel()

	for i := 0; i < 3; i++ {
		l.Enqueue(frame.Frame{ID: "f", Syscall: "object:update", Payload: frame.Null})
	}

	require.Eventually(t, func() bool { return store.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestFrameLogFlushesOnInterval(t *testing.T) {
	store := &fakeFrameStore{}
	l := NewFrameLog(store, nil, 100, 100, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	defer cancel()

	l.Enqueue(frame.Frame{ID: "f1", Syscall: "object:update", Payload: frame.Null})

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFrameLogDropsWhenQueueFull(t *testing.T) {
	store := &fakeFrameStore{}
	l := NewFrameLog(store, nil, 1, 100, time.Hour, zap.NewNop())

	l.Enqueue(frame.Frame{ID: "f1", Syscall: "object:update", Payload: frame.Null})
	l.Enqueue(frame.Frame{ID: "f2", Syscall: "object:update", Payload: frame.Null}) // dropped, queue full

	assert.Len(t, l.queue, 1)
}

func TestFrameLogFlushesRemainingOnShutdown(t *testing.T) {
	store := &fakeFrameStore{}
	l := NewFrameLog(store, nil, 100, 100, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	l.Enqueue(frame.Frame{ID: "f1", Syscall: "object:update", Payload: frame.Null})
	time.Sleep(20 * time.Millisecond) // let Run pick it into the live batch loop
	cancel()

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}
