package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 100*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 8192, cfg.FrameQueueCapacity)
	assert.Equal(t, 128, cfg.FrameBatchMax)
	assert.Equal(t, 5*time.Millisecond, cfg.FrameBatchInterval)
	assert.Equal(t, 256, cfg.OutboundQueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.TicketTTL)
	assert.Equal(t, 10, cfg.AI.MaxRounds)
	assert.Equal(t, 10, cfg.AI.PerUserPerMinute)
	assert.Equal(t, 20, cfg.AI.GlobalPerMinute)
	assert.Equal(t, 50000, cfg.AI.UserTokensPerHour)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("FLUSH_INTERVAL_MS", "250")
	t.Setenv("FRAME_QUEUE_CAPACITY", "4096")
	t.Setenv("AI_MAX_ROUNDS", "3")
	t.Setenv("LLM_MODEL", "claude-test")

	cfg := Load()
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 4096, cfg.FrameQueueCapacity)
	assert.Equal(t, 3, cfg.AI.MaxRounds)
	assert.Equal(t, "claude-test", cfg.AI.Model)
}

func TestLoadIgnoresMalformedNumericOverride(t *testing.T) {
	t.Setenv("FRAME_BATCH_MAX", "not-a-number")

	cfg := Load()
	assert.Equal(t, 128, cfg.FrameBatchMax)
}

func TestLLMProviderDefaultsToAnthropic(t *testing.T) {
	assert.Equal(t, "anthropic", LLMProvider())
}
