package natsclient

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamBoardFrames is the durable stream that mirrors every committed
	// frame-log batch for the external observability UI to tail.
	StreamBoardFrames = "BOARD_FRAMES"
	// SubjectBoardFrames captures all per-board frame mirror subjects.
	SubjectBoardFrames = "BOARD_FRAMES.>"
)

var streamSubjects = []string{SubjectBoardFrames}

// ProvisionStreams idempotently ensures the BOARD_FRAMES JetStream stream
// exists with the correct subject filter. It creates the stream on first run
// and is a no-op if the stream already exists with matching config.
func (c *Client) ProvisionStreams() error {
	info, err := c.JS.StreamInfo(StreamBoardFrames)
	if err == nil {
		_ = info
		c.Log.Info("NATS stream already exists", zap.String("stream", StreamBoardFrames))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	// Stream does not exist — create it. Frame-log mirroring is best-effort
	// observability, so limits-based retention is used with no age limit
	// (MaxAge 0); we never replay from this stream to reconstruct
	// authoritative state.
	cfg := &nats.StreamConfig{
		Name:      StreamBoardFrames,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    0,
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("NATS stream provisioned",
		zap.String("stream", StreamBoardFrames),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}

// BoardSubject returns the per-board subject a frame-log batch for boardID
// is published on.
func BoardSubject(boardID string) string {
	return "BOARD_FRAMES." + boardID
}
