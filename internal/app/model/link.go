package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExpiryMode selects how a share link stops being valid. It is immutable
// after the link is created.
type ExpiryMode string

const (
	// ExpiryCountdown starts an independent clock per viewer at that
	// viewer's first open.
	ExpiryCountdown ExpiryMode = "countdown"
	// ExpiryFixed expires the link at an absolute UTC instant.
	ExpiryFixed ExpiryMode = "fixed"
	// ExpiryManual keeps the link alive until the owner revokes it.
	ExpiryManual ExpiryMode = "manual"
)

// Valid reports whether the mode is one of the known variants.
func (m ExpiryMode) Valid() bool {
	switch m {
	case ExpiryCountdown, ExpiryFixed, ExpiryManual:
		return true
	}
	return false
}

// LinkStatus is the stored lifecycle state of a link. Expired and revoked
// are terminal: no transition ever leads back to active.
type LinkStatus string

const (
	StatusActive  LinkStatus = "active"
	StatusExpired LinkStatus = "expired"
	StatusRevoked LinkStatus = "revoked"
)

// Terminal reports whether the status admits no further transitions.
func (s LinkStatus) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// ViewerSession records a single viewer's countdown clock. Entries are
// created once and never mutated afterwards.
type ViewerSession struct {
	FirstOpenedAt time.Time `json:"first_opened_at"`
}

// ViewerSessions maps a viewer identity key to its session. Stored as a
// JSONB column; insertion happens through a key-scoped conditional update,
// never by rewriting the whole map.
type ViewerSessions map[string]ViewerSession

// Value implements driver.Valuer so GORM can persist the map as JSONB.
func (vs ViewerSessions) Value() (driver.Value, error) {
	if vs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(vs)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (vs *ViewerSessions) Scan(src interface{}) error {
	if src == nil {
		*vs = ViewerSessions{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("viewer sessions: unsupported scan type %T", src)
	}
	if len(data) == 0 {
		*vs = ViewerSessions{}
		return nil
	}
	return json.Unmarshal(data, vs)
}

// Link is a tokenized pointer to one PDF document with an attached expiry
// policy. The token is the public, unguessable handle; the ID is internal.
type Link struct {
	ID         string `db:"id" gorm:"primaryKey;size:32" json:"id"`
	Token      string `db:"token" gorm:"uniqueIndex;size:64;not null" json:"token"`
	DocumentID string `db:"document_id" gorm:"size:32;index;not null" json:"document_id"`
	OwnerID    string `db:"owner_id" gorm:"size:32;index;not null" json:"owner_id"`

	ExpiryMode      ExpiryMode `db:"expiry_mode" gorm:"size:16;not null" json:"expiry_mode"`
	DurationSeconds int64      `db:"duration_seconds" gorm:"not null;default:0" json:"duration_seconds,omitempty"`
	FixedExpiresAt  *time.Time `db:"fixed_expires_at" json:"fixed_expires_at,omitempty"`

	Status         LinkStatus     `db:"status" gorm:"size:16;not null;default:active" json:"status"`
	OpenCount      int64          `db:"open_count" gorm:"not null;default:0" json:"open_count"`
	FirstOpenedAt  *time.Time     `db:"first_opened_at" json:"first_opened_at,omitempty"`
	ViewerSessions ViewerSessions `db:"viewer_sessions" gorm:"type:jsonb;not null;default:'{}'" json:"viewer_sessions"`

	ExpiredRedirectURL string `db:"expired_redirect_url" gorm:"type:text" json:"expired_redirect_url,omitempty"`
	ExpiredMessage     string `db:"expired_message" gorm:"type:text" json:"expired_message,omitempty"`

	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime" json:"updated_at"`
}
