package sink

import (
	"context"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
)

// LogSink records each message to the log and discards it. Used when no
// NATS broker is configured.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink returns a LogSink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Store logs the message metadata.
func (s *LogSink) Store(_ context.Context, msg *models.InboundMessage) error {
	s.logger.Info().
		Str("message_id", msg.ID).
		Str("device_id", msg.DeviceID).
		Str("kind", string(msg.Kind)).
		Int("content_length", len(msg.Content)).
		Msg("Message received")

	return nil
}
