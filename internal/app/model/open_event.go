package model

import "time"

// OpenEventStatus tracks whether an open event made it from the stream
// into Postgres.
type OpenEventStatus string

const (
	OpenStatusPending OpenEventStatus = "pending"
	OpenStatusStored  OpenEventStatus = "stored"
	OpenStatusFailed  OpenEventStatus = "failed"
)

// OpenEvent is one successful viewer open of a link, published to
// JetStream from the access path and persisted asynchronously. Telemetry
// only; expiry never depends on it.
type OpenEvent struct {
	ID        string          `json:"id" gorm:"primaryKey;size:36"`
	LinkID    string          `json:"link_id" gorm:"size:32;index;not null"`
	Token     string          `json:"token" gorm:"size:64;not null"`
	ViewerKey string          `json:"viewer_key" gorm:"size:64;not null"`
	UserAgent string          `json:"user_agent" gorm:"size:255"`
	Status    OpenEventStatus `json:"status" gorm:"size:16;not null;default:pending"`
	Timestamp time.Time       `json:"timestamp" gorm:"index;not null"`
}

const (
	OpenStreamName     = "LINK_OPENS"
	OpenStreamSubject  = "links.opens"
	OpenConsumerName   = "open-logger"
	OpenStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
