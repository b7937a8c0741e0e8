package model

import "time"

// SubscriptionStatus gates everything an owner can share. A link whose
// owner is not active behaves as expired to viewers without its stored
// status changing.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Plan names a storage tier. Payment processing is out of scope; plans are
// assigned by admins.
type Plan string

const (
	PlanNone       Plan = "none"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// StorageLimitBytes returns the storage quota for the plan.
func (p Plan) StorageLimitBytes() int64 {
	switch p {
	case PlanBasic:
		return 500 * 1024 * 1024
	case PlanPro:
		return 2000 * 1024 * 1024
	case PlanEnterprise:
		return 10000 * 1024 * 1024
	default:
		return 0
	}
}

// Role separates regular owners from platform admins.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a link owner. StorageUsed is maintained with atomic increments,
// never read-modify-write.
type User struct {
	ID           string             `db:"id" gorm:"primaryKey;size:32" json:"id"`
	Email        string             `db:"email" gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string             `db:"name" gorm:"size:255;not null" json:"name"`
	PasswordHash string             `db:"password_hash" gorm:"size:255;not null" json:"-"`
	Role         Role               `db:"role" gorm:"size:16;not null;default:user" json:"role"`
	Subscription SubscriptionStatus `db:"subscription_status" gorm:"size:16;not null;default:inactive" json:"subscription_status"`
	Plan         Plan               `db:"plan" gorm:"size:16;not null;default:none" json:"plan"`
	StorageUsed  int64              `db:"storage_used" gorm:"not null;default:0" json:"storage_used"`
	CreatedAt    time.Time          `db:"created_at" gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" gorm:"autoUpdateTime" json:"updated_at"`
}

// SubscriptionIsActive reports whether the user may share links right now.
func (u *User) SubscriptionIsActive() bool {
	return u.Subscription == SubscriptionActive
}
