package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/nats-io/nats.go"
)

// OpenPublisher publishes link-open events to NATS JetStream. Open events
// are telemetry; a publish failure never blocks or alters an access verdict.
type OpenPublisher struct {
	js nats.JetStreamContext
}

// NewOpenPublisher creates a new open event publisher.
func NewOpenPublisher(js nats.JetStreamContext) *OpenPublisher {
	return &OpenPublisher{js: js}
}

// Publish publishes an open event to the stream.
func (p *OpenPublisher) Publish(linkID, token, viewerKey, userAgent string) error {
	event := model.OpenEvent{
		ID:        uuid.New().String(),
		LinkID:    linkID,
		Token:     token,
		ViewerKey: viewerKey,
		UserAgent: userAgent,
		Status:    model.OpenStatusPending,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.OpenStreamSubject, data)
	return err
}
