package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/app/observability/metrics"
)

type Type string

const (
	RouteCreated              Type = "route.created"
	RouteDeleted              Type = "route.deleted"
	RouteAssemblyInconsistent Type = "route.assembly_inconsistent"
	ReconcileCompleted        Type = "reconcile.completed"
)

// Event is the envelope written to the topic. Key is the route id when one exists.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       Type           `json:"type"`
	RouteID    *uuid.UUID     `json:"route_id,omitempty"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	PinIDs     []uuid.UUID    `json:"pin_ids,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewEvent(t Type) Event {
	return Event{ID: uuid.New(), Type: t, OccurredAt: time.Now().UTC()}
}

func (e Event) key() string {
	if e.RouteID != nil {
		return e.RouteID.String()
	}
	return e.ID.String()
}

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher delivers domain events. Publish failures never fail the caller's
// operation; callers log them and move on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
	logger *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return NewKafkaPublisherWithWriter(w, logger)
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:     []byte(event.key()),
		Value:   b,
		Headers: []kafka.Header{{Key: "type", Value: []byte(event.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.Count(ctx, metrics.Get().EventsPublishedTotal, "result", "error")
		p.logger.Warn("Kafka write failed", zap.String("type", string(event.Type)), zap.Error(err))
		return fmt.Errorf("write event %s: %w", event.Type, err)
	}
	metrics.Count(ctx, metrics.Get().EventsPublishedTotal, "result", "ok")
	p.logger.Debug("Event published", zap.String("type", string(event.Type)), zap.String("key", event.key()))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// New picks the Kafka publisher when brokers are configured.
func New(brokers []string, topic string, logger *zap.Logger) Publisher {
	if len(brokers) == 0 {
		logger.Info("No Kafka brokers configured, domain events are disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic, logger)
}
