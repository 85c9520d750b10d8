// Package kafka exports published disaster events to a Kafka topic so
// downstream consumers see the same ordered stream as websocket clients.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/credio/credio-alerts/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one message per event version, keyed by event id so
// versions of an event stay on one partition.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		// ingestion must not stall on the broker
		Async: true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				logger.Error("kafka export failed", "topic", topic, "messages", len(msgs), "error", err)
			}
		},
	}
	return &Publisher{writer: w, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, d models.Disaster) error {
	msg, err := serializeToMessage(d)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

type disasterEvent struct {
	models.Summary
	Source     string    `json:"source"`
	ExternalID string    `json:"externalId"`
	Magnitude  float64   `json:"magnitude,omitempty"`
	ReportURL  string    `json:"reportUrl,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func serializeToMessage(d models.Disaster) (kafkago.Message, error) {
	data, err := json.Marshal(disasterEvent{
		Summary:    d.Summary(),
		Source:     d.Source,
		ExternalID: d.ExternalID,
		Magnitude:  d.Magnitude,
		ReportURL:  d.ReportURL,
		UpdatedAt:  d.UpdatedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize disaster %s: %w", d.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(d.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "version", Value: []byte(strconv.FormatInt(d.Version, 10))},
			{Key: "status", Value: []byte(d.Status.String())},
		},
	}, nil
}
