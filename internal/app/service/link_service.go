package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrInvalidPolicy signals a rejected expiry configuration.
	ErrInvalidPolicy = errors.New("invalid expiry policy")
	// ErrNotOwner signals that the caller does not own the resource.
	ErrNotOwner = errors.New("not the owner")
	// ErrSubscriptionRequired signals that sharing needs an active plan.
	ErrSubscriptionRequired = errors.New("active subscription required")
)

// TokenRegistry receives every issued token so the viewer-path prefilter
// stays complete.
type TokenRegistry interface {
	Add(token string)
}

// LinkService covers the owner-facing lifecycle: create, inspect, revoke,
// delete. Expiry policy is fixed at creation and never edited afterwards.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, ownerID, id string) (*model.Link, error)
	ListLinks(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error)
	LinkStats(ctx context.Context, ownerID, id string) (*LinkStats, error)
	RevokeLink(ctx context.Context, ownerID, id string) error
	DeleteLink(ctx context.Context, ownerID, id string) error
}

// CreateLinkInput captures the immutable policy plus the target document.
type CreateLinkInput struct {
	OwnerID         string
	DocumentID      string
	ExpiryMode      model.ExpiryMode
	DurationSeconds int64
	FixedExpiresAt  *time.Time

	ExpiredRedirectURL string
	ExpiredMessage     string
}

// LinkStats is the owner's view of a link's runtime state.
type LinkStats struct {
	Link          *model.Link       `json:"link"`
	UniqueViewers int               `json:"unique_viewers"`
	RecentOpens   []model.OpenEvent `json:"recent_opens"`
}

type linkService struct {
	logger   *zap.Logger
	links    repository.LinkStore
	docs     repository.DocumentStore
	users    repository.UserStore
	opens    repository.OpenEventStore
	registry TokenRegistry
	cache    *redis.Client
}

// LinkDeps groups the dependencies of the link service. Registry, Opens and
// Cache are optional.
type LinkDeps struct {
	Logger   *zap.Logger
	Links    repository.LinkStore
	Docs     repository.DocumentStore
	Users    repository.UserStore
	Opens    repository.OpenEventStore
	Registry TokenRegistry
	Cache    *redis.Client
}

// NewLinkService returns a LinkService backed by the given stores.
func NewLinkService(deps LinkDeps) LinkService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		logger:   logger,
		links:    deps.Links,
		docs:     deps.Docs,
		users:    deps.Users,
		opens:    deps.Opens,
		registry: deps.Registry,
		cache:    deps.Cache,
	}
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if err := validatePolicy(input); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, input.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if !owner.SubscriptionIsActive() {
		return nil, ErrSubscriptionRequired
	}

	doc, err := s.docs.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.OwnerID != input.OwnerID {
		return nil, ErrNotOwner
	}

	token, err := newShareToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	link := &model.Link{
		ID:                 newID("link"),
		Token:              token,
		DocumentID:         doc.ID,
		OwnerID:            owner.ID,
		ExpiryMode:         input.ExpiryMode,
		DurationSeconds:    input.DurationSeconds,
		FixedExpiresAt:     input.FixedExpiresAt,
		Status:             model.StatusActive,
		ViewerSessions:     model.ViewerSessions{},
		ExpiredRedirectURL: input.ExpiredRedirectURL,
		ExpiredMessage:     input.ExpiredMessage,
	}

	if err := s.links.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	if s.registry != nil {
		s.registry.Add(link.Token)
	}

	s.logger.Info("link created",
		zap.String("link_id", link.ID),
		zap.String("document_id", doc.ID),
		zap.String("mode", string(link.ExpiryMode)))
	return link, nil
}

func validatePolicy(input CreateLinkInput) error {
	switch input.ExpiryMode {
	case model.ExpiryCountdown:
		if input.DurationSeconds <= 0 {
			return fmt.Errorf("%w: duration_seconds must be positive", ErrInvalidPolicy)
		}
	case model.ExpiryFixed:
		if input.FixedExpiresAt == nil {
			return fmt.Errorf("%w: fixed mode requires an expiry instant", ErrInvalidPolicy)
		}
		if !input.FixedExpiresAt.After(time.Now()) {
			return fmt.Errorf("%w: fixed expiry instant must be in the future", ErrInvalidPolicy)
		}
	case model.ExpiryManual:
		// Nothing to check.
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, input.ExpiryMode)
	}
	return nil
}

func (s *linkService) GetLink(ctx context.Context, ownerID, id string) (*model.Link, error) {
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		// Render as absent rather than admitting the link exists.
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, ownerID string, limit, offset int) ([]model.Link, error) {
	links, err := s.links.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *linkService) LinkStats(ctx context.Context, ownerID, id string) (*LinkStats, error) {
	link, err := s.GetLink(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	stats := &LinkStats{
		Link:          link,
		UniqueViewers: len(link.ViewerSessions),
	}
	if s.opens != nil {
		recent, err := s.opens.ListByLink(ctx, link.ID, 50)
		if err != nil {
			s.logger.Warn("failed to load recent opens", zap.String("link_id", id), zap.Error(err))
		} else {
			stats.RecentOpens = recent
		}
	}
	return stats, nil
}

func (s *linkService) RevokeLink(ctx context.Context, ownerID, id string) error {
	link, err := s.GetLink(ctx, ownerID, id)
	if err != nil {
		return err
	}

	revoked, err := s.links.Revoke(ctx, link.ID, time.Now())
	if err != nil {
		return fmt.Errorf("revoke link: %w", err)
	}
	if !revoked {
		// Already terminal; revoking twice (or revoking an expired link)
		// is a no-op, not an error.
		return nil
	}

	s.dropTerminalCache(ctx, link.Token)
	s.logger.Info("link revoked", zap.String("link_id", link.ID))
	return nil
}

func (s *linkService) DeleteLink(ctx context.Context, ownerID, id string) error {
	link, err := s.GetLink(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.links.Delete(ctx, link.ID); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	s.dropTerminalCache(ctx, link.Token)
	s.logger.Info("link deleted", zap.String("link_id", link.ID))
	return nil
}

// dropTerminalCache keeps a deleted or freshly revoked link from serving a
// cached verdict that no longer matches the store. An evaluation already in
// flight can still re-cache a terminal verdict right after the drop, so a
// deleted link may read as expired rather than not found until the cache
// TTL lapses; the cache only ever holds terminal outcomes, so nothing
// inactive is ever served as active.
func (s *linkService) dropTerminalCache(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, terminalCachePrefix+token).Err(); err != nil {
		s.logger.Debug("terminal cache invalidation failed", zap.Error(err))
	}
}
