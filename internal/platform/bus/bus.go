// Package bus wraps NATS JetStream connection, stream provisioning,
// typed publish and a per-subject consumer with a handler registry —
// the one message-bus technology the reservation core depends on.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// Config configures the underlying JetStream connection and stream.
type Config struct {
	URL        string
	StreamName string
	Subjects   []string
}

// Bus owns the NATS connection and the JetStream context built on it.
type Bus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect dials NATS, opens a JetStream context and ensures the
// configured stream exists (create, or update if already present).
func Connect(cfg Config) (*Bus, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	streamCfg := jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  cfg.Subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
	}

	if _, err := js.CreateStream(ctx, streamCfg); err != nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			nc.Close()
			return nil, fmt.Errorf("bus: create/update stream %q: %w", cfg.StreamName, err)
		}
	}

	return &Bus{nc: nc, js: js}, nil
}

// Close closes the underlying NATS connection without draining it.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// Envelope is the wire shape spec §6 describes: a type header carrying
// the logical event name alongside the JSON payload.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Publish marshals payload into an Envelope of the given eventType and
// publishes it to subject.
func (b *Bus) Publish(ctx context.Context, subject, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload: %w", err)
	}
	env := Envelope{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	if _, err := b.js.Publish(ctx, subject, envBytes); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

// Handler processes one decoded inbound event. Returning an error naks
// the message for redelivery; nil acks it.
type Handler func(ctx context.Context, env Envelope) error

// Consumer dispatches messages from a durable JetStream consumer to a
// handler keyed by envelope Type, per spec §6's "distinct group id per
// event kind" delivery rule. Deserialization errors are logged and the
// message is skipped (acked), never halting the subscription.
type Consumer struct {
	bus      *Bus
	logger   *zap.Logger
	handlers map[string]Handler
}

func NewConsumer(b *Bus, logger *zap.Logger) *Consumer {
	return &Consumer{bus: b, logger: logger, handlers: make(map[string]Handler)}
}

// RegisterHandler wires a handler for a given envelope Type.
func (c *Consumer) RegisterHandler(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Start creates (or reuses) a durable, explicit-ack consumer bound to
// subjects under groupName and runs until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, streamName, groupName string, subjects []string) error {
	consumerCfg := jetstream.ConsumerConfig{
		Name:           groupName,
		Durable:        groupName,
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		MaxDeliver:     3,
		AckWait:        30 * time.Second,
	}

	consumer, err := c.bus.js.CreateOrUpdateConsumer(ctx, streamName, consumerCfg)
	if err != nil {
		return fmt.Errorf("bus: create consumer %q: %w", groupName, err)
	}

	c.logger.Info("bus consumer started",
		zap.String("stream", streamName),
		zap.String("group", groupName),
		zap.Strings("subjects", subjects),
	)

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("bus: consume %q: %w", groupName, err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return nil
}

func (c *Consumer) handle(msg jetstream.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		c.logger.Error("bus: failed to decode envelope, skipping",
			zap.Error(err), zap.String("subject", msg.Subject()))
		_ = msg.Ack()
		return
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		_ = msg.Ack()
		return
	}

	if err := handler(context.Background(), env); err != nil {
		c.logger.Error("bus: handler failed",
			zap.Error(err), zap.String("type", env.Type), zap.String("subject", msg.Subject()))
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}
