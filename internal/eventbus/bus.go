// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package eventbus carries data-change events between components over an in-process
// Watermill Go channel.
//
// Producers (transaction sync, the signal adapters, the feedback ingestor) publish
// small JSON events; the Invalidator turns them into recommendation cache
// invalidations and the retraining scheduler counts new feedback. Messages are not
// persisted: an event published while nobody subscribes is dropped, which is safe
// because every consumer only maintains derived state.
package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/stallcast/internal/logging"
	"github.com/tomtom215/stallcast/internal/metrics"
)

// Topics.
const (
	TopicTransactionsSynced = "transactions.synced"
	TopicSignalsUpdated     = "signals.updated"
	TopicFeedbackRecorded   = "feedback.recorded"
	TopicCatalogChanged     = "catalog.changed"
)

// metadataCorrelationID carries the publishing request's correlation id.
const metadataCorrelationID = "correlation_id"

// TransactionsSynced is published after new sales were stored for a seller.
type TransactionsSynced struct {
	SellerID string   `json:"seller_id"`
	VenueIDs []string `json:"venue_ids"`
	Count    int      `json:"count"`
}

// SignalsUpdated is published when a live weather or event lookup differs from the
// last stored snapshot for a venue and date.
type SignalsUpdated struct {
	Signal  string `json:"signal"`
	VenueID string `json:"venue_id"`
	Date    string `json:"date"`
}

// FeedbackRecorded is published after an outcome was accepted.
type FeedbackRecorded struct {
	SellerID     string `json:"seller_id"`
	VenueID      string `json:"venue_id"`
	AppearanceID string `json:"appearance_id"`
	ProductID    string `json:"product_id"`
	Date         string `json:"date"`
	Accurate     bool   `json:"accurate"`
}

// CatalogChanged is published after a seller's product list changed.
type CatalogChanged struct {
	SellerID  string `json:"seller_id"`
	ProductID string `json:"product_id"`
	Deleted   bool   `json:"deleted"`
}

// Bus is the in-process publisher and subscriber.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates a bus.
func New(bufferSize int64) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: bufferSize},
			NewWatermillLogger(logging.WithComponent("eventbus")),
		),
	}
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metadataCorrelationID, id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe returns the message stream for topic. The stream closes when ctx ends
// or the bus is closed. Each message must be acked before the next is delivered.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Close stops delivery to every subscriber.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Decode unmarshals a message payload and restores the correlation id on ctx.
func Decode[T any](ctx context.Context, msg *message.Message) (context.Context, T, error) {
	var v T
	if id := msg.Metadata.Get(metadataCorrelationID); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return ctx, v, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return ctx, v, nil
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger routes Watermill's internal logging through zerolog.
func NewWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
