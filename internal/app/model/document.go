package model

import "time"

// Document is an uploaded PDF owned by a single user. The bytes live in
// object storage under ObjectKey; this row only carries metadata.
type Document struct {
	ID        string    `db:"id" gorm:"primaryKey;size:32" json:"id"`
	OwnerID   string    `db:"owner_id" gorm:"size:32;index;not null" json:"owner_id"`
	Filename  string    `db:"filename" gorm:"size:255;not null" json:"filename"`
	ObjectKey string    `db:"object_key" gorm:"size:255;not null" json:"-"`
	SizeBytes int64     `db:"size_bytes" gorm:"not null" json:"size_bytes"`
	PageCount int       `db:"page_count" gorm:"not null;default:0" json:"page_count"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime" json:"updated_at"`
}
