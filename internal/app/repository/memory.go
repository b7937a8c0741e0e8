package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
)

// MemoryLinkStore is an in-memory LinkStore guarded by a mutex. It honors
// the same atomic contract as the Postgres implementation (conditional
// transitions, key-scoped session insert, counter increment), which makes
// it suitable for exercising the access path concurrently in tests.
type MemoryLinkStore struct {
	mu    sync.RWMutex
	links map[string]*model.Link
	byTok map[string]string
}

// NewMemoryLinkStore constructs an empty MemoryLinkStore.
func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{
		links: make(map[string]*model.Link),
		byTok: make(map[string]string),
	}
}

var _ LinkStore = (*MemoryLinkStore)(nil)

func (m *MemoryLinkStore) Create(_ context.Context, link *model.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneLink(link)
	if cp.ViewerSessions == nil {
		cp.ViewerSessions = model.ViewerSessions{}
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.links[cp.ID] = cp
	m.byTok[cp.Token] = cp.ID
	return nil
}

func (m *MemoryLinkStore) GetByToken(_ context.Context, token string) (*model.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTok[token]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return cloneLink(m.links[id]), nil
}

func (m *MemoryLinkStore) GetByID(_ context.Context, id string) (*model.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return cloneLink(link), nil
}

func (m *MemoryLinkStore) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []model.Link
	for _, link := range m.links {
		if link.OwnerID == ownerID {
			result = append(result, *cloneLink(link))
		}
	}
	return paginateLinks(result, limit, offset), nil
}

func (m *MemoryLinkStore) ListAll(_ context.Context, limit, offset int) ([]model.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]model.Link, 0, len(m.links))
	for _, link := range m.links {
		result = append(result, *cloneLink(link))
	}
	return paginateLinks(result, limit, offset), nil
}

func (m *MemoryLinkStore) AllTokens(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tokens := make([]string, 0, len(m.byTok))
	for token := range m.byTok {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (m *MemoryLinkStore) RegisterOpen(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return ErrLinkNotFound
	}
	link.OpenCount++
	if link.FirstOpenedAt == nil {
		ts := now.UTC()
		link.FirstOpenedAt = &ts
	}
	link.UpdatedAt = now.UTC()
	return nil
}

func (m *MemoryLinkStore) InsertViewerSession(_ context.Context, id, viewerKey string, firstOpen time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return false, ErrLinkNotFound
	}
	if link.ViewerSessions == nil {
		link.ViewerSessions = model.ViewerSessions{}
	}
	if _, exists := link.ViewerSessions[viewerKey]; exists {
		return false, nil
	}
	link.ViewerSessions[viewerKey] = model.ViewerSession{FirstOpenedAt: firstOpen.UTC()}
	link.UpdatedAt = firstOpen.UTC()
	return true, nil
}

func (m *MemoryLinkStore) MarkExpired(_ context.Context, id string, now time.Time) (bool, error) {
	return m.transition(id, model.StatusExpired, now)
}

func (m *MemoryLinkStore) Revoke(_ context.Context, id string, now time.Time) (bool, error) {
	return m.transition(id, model.StatusRevoked, now)
}

func (m *MemoryLinkStore) transition(id string, to model.LinkStatus, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return false, ErrLinkNotFound
	}
	if link.Status != model.StatusActive {
		return false, nil
	}
	link.Status = to
	link.UpdatedAt = now.UTC()
	return true, nil
}

func (m *MemoryLinkStore) RevokeByDocument(_ context.Context, documentID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, link := range m.links {
		if link.DocumentID == documentID && link.Status == model.StatusActive {
			link.Status = model.StatusRevoked
			link.UpdatedAt = now.UTC()
			affected++
		}
	}
	return affected, nil
}

func (m *MemoryLinkStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return ErrLinkNotFound
	}
	delete(m.byTok, link.Token)
	delete(m.links, id)
	return nil
}

func (m *MemoryLinkStore) CountByStatus(_ context.Context) (map[model.LinkStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.LinkStatus]int64)
	for _, link := range m.links {
		counts[link.Status]++
	}
	return counts, nil
}

func cloneLink(link *model.Link) *model.Link {
	cp := *link
	cp.ViewerSessions = make(model.ViewerSessions, len(link.ViewerSessions))
	for k, v := range link.ViewerSessions {
		cp.ViewerSessions[k] = v
	}
	if link.FirstOpenedAt != nil {
		ts := *link.FirstOpenedAt
		cp.FirstOpenedAt = &ts
	}
	if link.FixedExpiresAt != nil {
		ts := *link.FixedExpiresAt
		cp.FixedExpiresAt = &ts
	}
	return &cp
}

func paginateLinks(links []model.Link, limit, offset int) []model.Link {
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	limit = normalizeLimit(limit)
	offset = normalizeOffset(offset)
	if offset >= len(links) {
		return nil
	}
	end := offset + limit
	if end > len(links) {
		end = len(links)
	}
	return links[offset:end]
}
