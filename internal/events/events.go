// Package events announces publication transitions to downstream consumers
// (press feeds, public result pages).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/scrutin/scrutin/pkg/publication"
)

// Event types.
const (
	TypePublished = "publication.published"
	TypeCancelled = "publication.cancelled"
)

// Event is one committed transition.
type Event struct {
	Type        string                 `json:"type"`
	EntityType  publication.EntityType `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	HistoryID   string                 `json:"history_id"`
	Actor       string                 `json:"actor"`
	From        publication.Status     `json:"from"`
	To          publication.Status     `json:"to"`
	SnapshotRef string                 `json:"snapshot_ref,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// FromEntry builds the event for a committed history entry.
func FromEntry(e publication.HistoryEntry) Event {
	typ := TypePublished
	if e.Action == publication.ActionCancel {
		typ = TypeCancelled
	}
	return Event{
		Type:        typ,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		HistoryID:   e.ID,
		Actor:       e.Actor,
		From:        e.From,
		To:          e.To,
		SnapshotRef: e.SnapshotRef,
		Timestamp:   e.At,
	}
}

// Publisher sends events. Publish is called after the transition has been
// committed, so a failure is reported but never rolls anything back.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by entity, so that every
// transition of one entity lands on the same partition in order.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewKafka creates a Kafka publisher.
func NewKafka(brokers []string, topic string, logger *zap.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w, topic: topic, logger: logger}
}

func (k *Kafka) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(string(evt.EntityType) + ":" + evt.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
			{Key: "entity_type", Value: []byte(evt.EntityType)},
			{Key: "entity_id", Value: []byte(evt.EntityID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("publish event failed",
			zap.String("topic", k.topic),
			zap.String("type", evt.Type),
			zap.String("entity_id", evt.EntityID),
			zap.Error(err))
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
