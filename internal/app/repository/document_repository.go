package repository

import (
	"context"
	"errors"

	"github.com/kvasserman/fadelink/internal/app/model"
	"gorm.io/gorm"
)

// ErrDocumentNotFound signals that no document matches the lookup.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the data access contract for uploaded PDFs.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Document, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository returns a GORM-backed DocumentStore.
func NewDocumentRepository(db *gorm.DB) DocumentStore {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Document, error) {
	var result []model.Document
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Offset(normalizeOffset(offset)).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Document{}).Count(&count).Error
	return count, err
}
