package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// OutcomeWriter publishes poll outcomes to a Kafka topic.
// It implements pipeline.OutcomeSink.
type OutcomeWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewOutcomeWriter creates a producer for the outcome topic.
func NewOutcomeWriter(brokers []string, topic string, logger *slog.Logger) *OutcomeWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &OutcomeWriter{writer: w, logger: logger}
}

// PublishOutcome writes one outcome keyed by station id so a station's
// outcomes stay ordered within a partition.
func (w *OutcomeWriter) PublishOutcome(ctx context.Context, outcome domain.PollOutcome) error {
	msg, err := serializeOutcome(outcome)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}

func (w *OutcomeWriter) Close() error {
	return w.writer.Close()
}

// serializeOutcome marshals a PollOutcome into a Kafka message.
func serializeOutcome(outcome domain.PollOutcome) (kafkago.Message, error) {
	data, err := json.Marshal(outcome)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize poll outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(outcome.StationID)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(outcome.Status)},
			{Key: "trigger", Value: []byte(outcome.Trigger)},
			{Key: "requested_at", Value: []byte(outcome.RequestedAt.Format(time.RFC3339))},
		},
	}, nil
}
