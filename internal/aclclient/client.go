// Package aclclient is the gRPC client for the external board-ACL
// collaborator: it resolves whether a user may join a private board,
// caching positive and negative answers in Redis and guarding the RPC
// itself with a circuit breaker so a stalled collaborator degrades to
// fail-closed denials instead of hanging board:join.
package aclclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/arc-self/board-hub/pkg/resilience"
)

const method = "/arc.acl.v1.ACLService/IsAuthorized"

const cacheKeyPrefix = "board_hub:acl:"

// DefaultCacheTTL bounds how long a positive or negative authorization
// answer is trusted before the collaborator is asked again.
const DefaultCacheTTL = 30 * time.Second

type isAuthorizedRequest struct {
	BoardID string `json:"board_id"`
	UserID  string `json:"user_id"`
}

type isAuthorizedResponse struct {
	Allowed bool `json:"allowed"`
}

// Client implements dispatch.ACLChecker.
type Client struct {
	conn     *grpc.ClientConn
	rdb      *redis.Client
	breaker  *resilience.Breaker
	log      *zap.Logger
	cacheTTL time.Duration
	timeout  time.Duration
}

// Opts configures a Client. Zero values fall back to documented defaults.
type Opts struct {
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	Breaker        resilience.BreakerOpts
}

// NewClient dials addr with insecure transport credentials and otelgrpc
// instrumentation. The connection is lazy: grpc.NewClient does not block on
// the initial handshake, matching how the rest of the hub wires outbound
// collaborators.
func NewClient(addr string, rdb *redis.Client, log *zap.Logger, opts Opts) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("aclclient: dial %s: %w", addr, err)
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &Client{
		conn:     conn,
		rdb:      rdb,
		breaker:  resilience.NewBreaker(opts.Breaker),
		log:      log,
		cacheTTL: cacheTTL,
		timeout:  timeout,
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func cacheKey(boardID, userID string) string {
	return cacheKeyPrefix + boardID + ":" + userID
}

// IsAuthorized reports whether userID may join boardID. Cache hits never
// touch the breaker or the network. On a cache miss it fails closed: a
// breaker trip, timeout, or RPC error all deny access rather than risk
// exposing a private board.
func (c *Client) IsAuthorized(ctx context.Context, boardID, userID string) (bool, error) {
	key := cacheKey(boardID, userID)

	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			return cached == "1", nil
		}
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("aclclient: cache read failed", zap.Error(err))
		}
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := isAuthorizedRequest{BoardID: boardID, UserID: userID}
	var resp isAuthorizedResponse

	err := c.breaker.Call(rpcCtx, func(ctx context.Context) error {
		return c.conn.Invoke(ctx, method, &req, &resp, grpc.CallContentSubtype("json"))
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.log.Warn("aclclient: circuit open, failing closed", zap.String("board_id", boardID))
		} else {
			c.log.Error("aclclient: rpc failed, failing closed", zap.String("board_id", boardID), zap.Error(err))
		}
		return false, err
	}

	if c.rdb != nil {
		val := "0"
		if resp.Allowed {
			val = "1"
		}
		if err := c.rdb.Set(ctx, key, val, c.cacheTTL).Err(); err != nil {
			c.log.Warn("aclclient: cache write failed", zap.Error(err))
		}
	}

	return resp.Allowed, nil
}
