package repository

import (
	"context"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
	"gorm.io/gorm"
)

// OpenEventStore is the data access contract for open-event telemetry.
type OpenEventStore interface {
	Create(ctx context.Context, event *model.OpenEvent) error
	UpdateStatus(ctx context.Context, id string, status model.OpenEventStatus) error
	UpdateExpiredPendingStatus(ctx context.Context, expiredBefore time.Time) (int64, error)
	ListByLink(ctx context.Context, linkID string, limit int) ([]model.OpenEvent, error)
}

type openEventRepository struct {
	db *gorm.DB
}

// NewOpenEventRepository returns a GORM-backed OpenEventStore.
func NewOpenEventRepository(db *gorm.DB) OpenEventStore {
	return &openEventRepository{db: db}
}

func (r *openEventRepository) Create(ctx context.Context, event *model.OpenEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *openEventRepository) UpdateStatus(ctx context.Context, id string, status model.OpenEventStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.OpenEvent{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *openEventRepository) UpdateExpiredPendingStatus(ctx context.Context, expiredBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.OpenEvent{}).
		Where("status = ? AND timestamp < ?", model.OpenStatusPending, expiredBefore).
		Update("status", model.OpenStatusFailed)
	return result.RowsAffected, result.Error
}

func (r *openEventRepository) ListByLink(ctx context.Context, linkID string, limit int) ([]model.OpenEvent, error) {
	var result []model.OpenEvent
	if err := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("timestamp DESC").
		Limit(normalizeLimit(limit)).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
