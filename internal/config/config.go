// Package config resolves the hub's runtime configuration from environment
// variables, falling back to the documented defaults wherever a variable is
// unset. Secrets (database URL, NATS URL, LLM API key) are loaded separately
// from Vault via pkg/config.SecretManager, not from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/arc-self/board-hub/internal/agent"
	"github.com/arc-self/board-hub/internal/persist"
	"github.com/arc-self/board-hub/internal/ticket"
)

// Config is the hub's immutable runtime configuration, resolved once at
// startup.
type Config struct {
	// Transport / HTTP
	ListenAddr string

	// Object-flush pipeline
	FlushInterval time.Duration

	// Frame-log pipeline
	FrameQueueCapacity int
	FrameBatchMax      int
	FrameBatchInterval time.Duration

	// Per-connection outbound queue
	OutboundQueueCapacity int

	// Upgrade ticket lifetime
	TicketTTL time.Duration

	// AI tool-call loop
	AI agent.Config

	// Vault
	VaultAddr  string
	VaultToken string
	SecretPath string

	// OpenTelemetry
	OTelEndpoint string

	// ACL collaborator
	ACLGRPCAddr string
}

// Load reads every variable documented in the configuration table, applying
// defaults for anything unset. It never fails: a malformed numeric value
// falls back to its default rather than aborting startup, since a typo'd
// tuning knob should not take the hub down.
func Load() Config {
	return Config{
		ListenAddr: getString("LISTEN_ADDR", ":8080"),

		FlushInterval: getDurationMillis("FLUSH_INTERVAL_MS", persist.DefaultFlushInterval),

		FrameQueueCapacity: getInt("FRAME_QUEUE_CAPACITY", persist.DefaultQueueCapacity),
		FrameBatchMax:      getInt("FRAME_BATCH_MAX", persist.DefaultBatchMax),
		FrameBatchInterval: getDurationMillis("FRAME_BATCH_INTERVAL_MS", persist.DefaultBatchInterval),

		OutboundQueueCapacity: getInt("OUTBOUND_QUEUE_CAPACITY", 256),

		TicketTTL: getDurationSecs("TICKET_TTL_SECS", ticket.DefaultTTL),

		AI: agent.Config{
			MaxRounds:         getInt("AI_MAX_ROUNDS", agent.DefaultConfig().MaxRounds),
			PerUserPerMinute:  getInt("AI_PER_USER_PER_MIN", agent.DefaultConfig().PerUserPerMinute),
			GlobalPerMinute:   getInt("AI_GLOBAL_PER_MIN", agent.DefaultConfig().GlobalPerMinute),
			UserTokensPerHour: getInt("AI_USER_TOKENS_PER_HOUR", agent.DefaultConfig().UserTokensPerHour),
			RoundTimeout:      agent.DefaultConfig().RoundTimeout,
			Model:             getString("LLM_MODEL", ""),
		},

		VaultAddr:  getString("VAULT_ADDR", "http://localhost:8200"),
		VaultToken: getString("VAULT_TOKEN", "root"),
		SecretPath: getString("VAULT_SECRET_PATH", "secret/data/arc/board-hub"),

		OTelEndpoint: getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		ACLGRPCAddr: getString("ACL_GRPC_ADDR", "acl-service:50051"),
	}
}

// LLMProvider reports the configured provider name ("anthropic" or
// "openai-compatible"), used by internal/cli's serve command to select
// which llm.Client to wire.
func LLMProvider() string {
	return getString("LLM_PROVIDER", "anthropic")
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDurationMillis(key string, def time.Duration) time.Duration {
	n := getInt(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func getDurationSecs(key string, def time.Duration) time.Duration {
	n := getInt(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// String renders the resolved configuration for startup logging, omitting
// secrets: VaultToken is left out, and the LLM API key is not part of
// this struct.
func (c Config) String() string {
	return fmt.Sprintf(
		"listen=%s flush_interval=%s frame_queue=%d frame_batch_max=%d outbound_queue=%d ticket_ttl=%s ai_max_rounds=%d llm_model=%s",
		c.ListenAddr, c.FlushInterval, c.FrameQueueCapacity, c.FrameBatchMax,
		c.OutboundQueueCapacity, c.TicketTTL, c.AI.MaxRounds, c.AI.Model,
	)
}
