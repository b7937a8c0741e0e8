package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kvasserman/fadelink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested link does not exist. The
	// viewer layer renders it indistinguishably from a deleted link.
	ErrLinkNotFound = errors.New("link not found")
)

// LinkStore is the data access contract for share links. The three hot-path
// mutators (RegisterOpen, InsertViewerSession, MarkExpired) must be atomic
// with respect to concurrent viewers of the same link: no implementation may
// satisfy them with a full-row read-modify-write.
type LinkStore interface {
	Create(ctx context.Context, link *model.Link) error
	GetByToken(ctx context.Context, token string) (*model.Link, error)
	GetByID(ctx context.Context, id string) (*model.Link, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error)
	ListAll(ctx context.Context, limit, offset int) ([]model.Link, error)
	AllTokens(ctx context.Context) ([]string, error)

	// RegisterOpen increments open_count and stamps first_opened_at if it
	// is still unset, in one atomic update.
	RegisterOpen(ctx context.Context, id string, now time.Time) error
	// InsertViewerSession inserts the viewer's session entry only if the
	// key is absent. Returns false when another writer got there first;
	// the existing entry is never touched.
	InsertViewerSession(ctx context.Context, id, viewerKey string, firstOpen time.Time) (bool, error)
	// MarkExpired performs the idempotent active->expired transition.
	// Returns false when the link was already terminal; that is success.
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	// Revoke performs the active->revoked transition with the same
	// conditional-write semantics as MarkExpired.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	// RevokeByDocument revokes every still-active link of a document,
	// used when the document is deleted.
	RevokeByDocument(ctx context.Context, documentID string, now time.Time) (int64, error)

	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[model.LinkStatus]int64, error)
}

type linkRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// NewLinkRepository returns a Postgres-backed LinkStore. GORM serves the
// CRUD paths; the pgx pool serves the conditional single-statement updates
// that GORM's Update API cannot express.
func NewLinkRepository(db *gorm.DB, pool *pgxpool.Pool) LinkStore {
	return &linkRepository{db: db, pool: pool}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if link.ViewerSessions == nil {
		link.ViewerSessions = model.ViewerSessions{}
	}
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *linkRepository) GetByToken(ctx context.Context, token string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	var result []model.Link
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

func (r *linkRepository) ListAll(ctx context.Context, limit, offset int) ([]model.Link, error) {
	var result []model.Link
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Offset(normalizeOffset(offset)).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *linkRepository) AllTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *linkRepository) RegisterOpen(ctx context.Context, id string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET open_count = open_count + 1,
		    first_opened_at = COALESCE(first_opened_at, $2),
		    updated_at = $2
		WHERE id = $1
	`, id, now.UTC())
	if err != nil {
		return fmt.Errorf("register open: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) InsertViewerSession(ctx context.Context, id, viewerKey string, firstOpen time.Time) (bool, error) {
	entry, err := json.Marshal(model.ViewerSession{FirstOpenedAt: firstOpen.UTC()})
	if err != nil {
		return false, fmt.Errorf("marshal viewer session: %w", err)
	}

	// Key-scoped conditional insert: the WHERE clause rejects the write when
	// the key already exists, so concurrent first opens by the same viewer
	// collapse to one entry and other viewers' entries are never clobbered.
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET viewer_sessions = jsonb_set(COALESCE(viewer_sessions, '{}'::jsonb), ARRAY[$2], $3::jsonb, true),
		    updated_at = $4
		WHERE id = $1
		  AND NOT (COALESCE(viewer_sessions, '{}'::jsonb) ? $2)
	`, id, viewerKey, string(entry), firstOpen.UTC())
	if err != nil {
		return false, fmt.Errorf("insert viewer session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *linkRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.StatusExpired, now)
}

func (r *linkRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.StatusRevoked, now)
}

func (r *linkRepository) transition(ctx context.Context, id string, to model.LinkStatus, now time.Time) (bool, error) {
	// "WHERE status = 'active'" makes the terminal transition idempotent:
	// the losing writer of a concurrent pair affects zero rows and that is
	// not an error.
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'active'
	`, id, string(to), now.UTC())
	if err != nil {
		return false, fmt.Errorf("transition link to %s: %w", to, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *linkRepository) RevokeByDocument(ctx context.Context, documentID string, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET status = 'revoked', updated_at = $2
		WHERE document_id = $1 AND status = 'active'
	`, documentID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke links of document: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *linkRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Link{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) CountByStatus(ctx context.Context) (map[model.LinkStatus]int64, error) {
	type row struct {
		Status model.LinkStatus
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[model.LinkStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
