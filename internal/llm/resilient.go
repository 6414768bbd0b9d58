package llm

import (
	"context"

	"github.com/arc-self/board-hub/pkg/fn"
	"github.com/arc-self/board-hub/pkg/resilience"
)

// ResilientClient wraps a Client with a circuit breaker and bounded retry,
// matching the guarded-outbound-call pattern internal/aclclient uses for
// the ACL collaborator.
type ResilientClient struct {
	inner   Client
	breaker *resilience.Breaker
	retry   fn.RetryOpts
}

// NewResilientClient wraps inner with breaker and retry policy. A zero
// resilience.BreakerOpts/fn.RetryOpts both fall back to their package
// defaults.
func NewResilientClient(inner Client, breaker *resilience.Breaker, retry fn.RetryOpts) *ResilientClient {
	if retry.MaxAttempts == 0 {
		retry = fn.DefaultRetry
	}
	return &ResilientClient{inner: inner, breaker: breaker, retry: retry}
}

// Complete implements Client.
func (c *ResilientClient) Complete(ctx context.Context, req Request) (Response, error) {
	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[Response] {
		return resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[Response] {
			resp, err := c.inner.Complete(ctx, req)
			return fn.FromPair(resp, err)
		})
	})
	return result.Unwrap()
}
