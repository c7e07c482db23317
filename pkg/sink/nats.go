// Package sink persists routed analyzer messages. The primary sink publishes
// CloudEvents to NATS JetStream for downstream LIS consumers; a log-only
// sink serves deployments without a broker.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
)

// CloudEvent is the envelope published for every stored message.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data"`
}

const eventSource = "lis/analyzer-gateway"

// NATSSink publishes each message as a CloudEvent on a per-protocol subject.
type NATSSink struct {
	js     jetstream.JetStream
	stream string
	logger logger.Logger
}

// NewNATSSink creates a NATSSink for the given stream.
func NewNATSSink(js jetstream.JetStream, streamName string, log logger.Logger) *NATSSink {
	return &NATSSink{
		js:     js,
		stream: streamName,
		logger: log,
	}
}

// Connect dials NATS, ensures the stream exists and returns a ready sink.
// The caller owns the returned connection and closes it on shutdown.
func Connect(ctx context.Context, natsURL, streamName string, log logger.Logger, opts ...nats.Option) (*NATSSink, *nats.Conn, error) {
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.Stream(ctx, streamName)
	if err != nil {
		streamConfig := jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{"lis.messages.*"},
		}

		_, err = js.CreateOrUpdateStream(ctx, streamConfig)
		if err != nil {
			nc.Close()

			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", streamName, err)
		}
	}

	return NewNATSSink(js, streamName, log), nc, nil
}

// Store publishes the message to its protocol subject.
func (s *NATSSink) Store(ctx context.Context, msg *models.InboundMessage) error {
	subject := subjectFor(msg.Kind)
	ts := msg.ReceivedAt

	event := CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            "com.lis.analyzer.message",
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &ts,
		Data:            msg,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	ack, err := s.js.Publish(ctx, subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}

	s.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Msg("Published message event")

	return nil
}

func subjectFor(kind models.MessageKind) string {
	switch kind {
	case models.KindHL7:
		return "lis.messages.hl7"
	case models.KindASTM:
		return "lis.messages.astm"
	case models.KindJSON:
		return "lis.messages.json"
	case models.KindCommand:
		return "lis.messages.command"
	default:
		return "lis.messages.raw"
	}
}
