package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
	apprepository "github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// OpenConsumer consumes open events from NATS JetStream and persists them.
type OpenConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.OpenEventStore
}

// NewOpenConsumer creates a new open event consumer.
func NewOpenConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.OpenEventStore) *OpenConsumer {
	return &OpenConsumer{js: js, logger: logger, repo: repo}
}

// Start begins consuming open events.
func (c *OpenConsumer) Start() error {
	// Create stream if not exists
	_, err := c.js.StreamInfo(model.OpenStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.OpenStreamName,
			Subjects: []string{model.OpenStreamSubject},
			MaxBytes: model.OpenStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	// Create consumer if not exists
	_, err = c.js.ConsumerInfo(model.OpenStreamName, model.OpenConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.OpenStreamName, &nats.ConsumerConfig{
			Durable:   model.OpenConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.OpenStreamSubject, model.OpenConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *OpenConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.OpenEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal open event", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.repo.Create(ctx, &event); err != nil {
				c.logger.Error("failed to store open event",
					zap.String("id", event.ID),
					zap.String("link_id", event.LinkID),
					zap.Error(err))
				msg.Nak()
				continue
			}
			if err := c.repo.UpdateStatus(ctx, event.ID, model.OpenStatusStored); err != nil {
				c.logger.Warn("failed to confirm open event",
					zap.String("id", event.ID), zap.Error(err))
			}

			c.logger.Debug("open event stored",
				zap.String("id", event.ID),
				zap.String("link_id", event.LinkID),
				zap.String("viewer_key", event.ViewerKey),
				zap.Time("timestamp", event.Timestamp),
			)

			msg.Ack()
		}
	}
}
