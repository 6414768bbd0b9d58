package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/board-hub/pkg/fn"
	"github.com/arc-self/board-hub/pkg/resilience"
)

type flakyClient struct {
	failuresLeft int
	calls        int
}

func (c *flakyClient) Complete(ctx context.Context, req Request) (Response, error) {
	c.calls++
	if c.failuresLeft > 0 {
		c.failuresLeft--
		return Response{}, errors.New("transient provider error")
	}
	return Response{StopReason: "end_turn"}, nil
}

func TestResilientClientRetriesThenSucceeds(t *testing.T) {
	inner := &flakyClient{failuresLeft: 2}
	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 10, Timeout: time.Second})
	retry := fn.RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	client := NewResilientClient(inner, breaker, retry)
	resp, err := client.Complete(context.Background(), Request{Model: "x"})
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 3, inner.calls)
}

func TestResilientClientOpensBreakerAfterRepeatedFailures(t *testing.T) {
	inner := &flakyClient{failuresLeft: 100}
	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	retry := fn.RetryOpts{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

	client := NewResilientClient(inner, breaker, retry)
	_, _ = client.Complete(context.Background(), Request{Model: "x"})
	_, _ = client.Complete(context.Background(), Request{Model: "x"})

	_, err := client.Complete(context.Background(), Request{Model: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
