package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrStorageUnavailable wraps persistent storage failures after retries are
// exhausted. Callers surface it as a server error; it is never folded into
// an expiry verdict.
var ErrStorageUnavailable = errors.New("storage unavailable")

const (
	// maxEvalAttempts bounds re-evaluation after losing a viewer-session
	// insert race.
	maxEvalAttempts = 3
	// storageAttempts bounds retries of a single storage call.
	storageAttempts = 3
	storageBackoff  = 50 * time.Millisecond

	terminalCachePrefix = "link:terminal:"
	terminalCacheTTL    = 10 * time.Minute
)

// TokenFilter sheds viewer lookups for tokens that were never issued. False
// positives fall through to the store, so it never changes an answer.
type TokenFilter interface {
	Test(token string) bool
}

// OwnerLookup is the slice of the user store the evaluator needs.
type OwnerLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// AccessResult is the full answer for one viewer request: the verdict plus
// the link, which the HTTP layer needs for document streaming and logging.
type AccessResult struct {
	Verdict Verdict
	Link    *model.Link
}

// AccessService is the link-access evaluator: token lookup, policy
// evaluation, and race-safe persistence of the verdict's side effects.
type AccessService struct {
	logger *zap.Logger
	links  repository.LinkStore
	users  OwnerLookup
	filter TokenFilter
	cache  *redis.Client
}

// AccessDeps groups the dependencies of the access service. Filter and
// Cache are optional; everything degrades to straight store access.
type AccessDeps struct {
	Logger *zap.Logger
	Links  repository.LinkStore
	Users  OwnerLookup
	Filter TokenFilter
	Cache  *redis.Client
}

// NewAccessService creates the evaluator.
func NewAccessService(deps AccessDeps) *AccessService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		logger: logger,
		links:  deps.Links,
		users:  deps.Users,
		filter: deps.Filter,
		cache:  deps.Cache,
	}
}

// EvaluateAccess is the single entry point of the kernel. viewerKey is the
// caller-supplied viewer identity; it is treated as an opaque key and is
// the concurrency boundary for countdown sessions.
func (s *AccessService) EvaluateAccess(ctx context.Context, token, viewerKey string, now time.Time) (*AccessResult, error) {
	if s.filter != nil && !s.filter.Test(token) {
		return nil, repository.ErrLinkNotFound
	}

	if cached := s.terminalFromCache(ctx, token); cached != nil {
		return cached, nil
	}

	for attempt := 0; attempt < maxEvalAttempts; attempt++ {
		result, retry, err := s.evaluateOnce(ctx, token, viewerKey, now)
		if err != nil {
			return nil, err
		}
		if retry {
			// Lost the session-insert race: some concurrent request created
			// this viewer's entry first. Re-read and evaluate against the
			// winner's clock.
			evalRetryCounter.Inc()
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("evaluate access for token: %w", ErrStorageUnavailable)
}

// CheckAccess evaluates the link read-only: the verdict's side effects are
// never applied, no open is counted and no session is started. The byte
// fetch uses it to re-check a grant after the open was already recorded by
// the evaluation that issued the grant.
func (s *AccessService) CheckAccess(ctx context.Context, token, viewerKey string, now time.Time) (*AccessResult, error) {
	if s.filter != nil && !s.filter.Test(token) {
		return nil, repository.ErrLinkNotFound
	}

	if cached := s.terminalFromCache(ctx, token); cached != nil {
		return cached, nil
	}

	var link *model.Link
	err := s.withRetry(ctx, func() error {
		var err error
		link, err = s.links.GetByToken(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	ownerActive, err := s.ownerActive(ctx, link.OwnerID)
	if err != nil {
		return nil, err
	}

	dec := Evaluate(link, ownerActive, viewerKey, now)
	return &AccessResult{Verdict: dec.Verdict, Link: link}, nil
}

func (s *AccessService) evaluateOnce(ctx context.Context, token, viewerKey string, now time.Time) (*AccessResult, bool, error) {
	var link *model.Link
	err := s.withRetry(ctx, func() error {
		var err error
		link, err = s.links.GetByToken(ctx, token)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	ownerActive, err := s.ownerActive(ctx, link.OwnerID)
	if err != nil {
		return nil, false, err
	}

	dec := Evaluate(link, ownerActive, viewerKey, now)

	if dec.StartViewerSession {
		var inserted bool
		err := s.withRetry(ctx, func() error {
			var err error
			inserted, err = s.links.InsertViewerSession(ctx, link.ID, viewerKey, now)
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if !inserted {
			return nil, true, nil
		}
	}

	if dec.CountOpen {
		// Once the session insert above lands, the viewer's clock is running
		// even if this increment exhausts its retries; the next successful
		// open counts against that original clock. Counting before the
		// insert would double-count every lost insert race instead.
		if err := s.withRetry(ctx, func() error {
			return s.links.RegisterOpen(ctx, link.ID, now)
		}); err != nil {
			return nil, false, err
		}
	}

	if dec.PersistExpiry {
		var flipped bool
		err := s.withRetry(ctx, func() error {
			var err error
			flipped, err = s.links.MarkExpired(ctx, link.ID, now)
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if flipped {
			s.logger.Info("link expired on access",
				zap.String("link_id", link.ID),
				zap.String("reason", dec.Verdict.Reason))
		}
	}

	s.observe(link, dec.Verdict)
	return &AccessResult{Verdict: dec.Verdict, Link: link}, false, nil
}

func (s *AccessService) ownerActive(ctx context.Context, ownerID string) (bool, error) {
	var owner *model.User
	err := s.withRetry(ctx, func() error {
		var err error
		owner, err = s.users.GetByID(ctx, ownerID)
		return err
	})
	if errors.Is(err, repository.ErrUserNotFound) {
		// Orphaned owner reads as inactive; the viewer just sees expired.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner.SubscriptionIsActive(), nil
}

// withRetry runs fn up to storageAttempts times with linear backoff. Lookup
// misses are not transient and pass through immediately.
func (s *AccessService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < storageAttempts; attempt++ {
		if attempt > 0 {
			storageRetryCounter.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(storageBackoff * time.Duration(attempt)):
			}
		}
		err = fn()
		if err == nil ||
			errors.Is(err, repository.ErrLinkNotFound) ||
			errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		s.logger.Warn("storage call failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func (s *AccessService) observe(link *model.Link, verdict Verdict) {
	verdictCounter.WithLabelValues(string(verdict.Outcome), verdict.Reason).Inc()

	// Stored terminal states are monotonic, so caching them can never serve
	// a stale active link. Per-viewer countdown expiry is deliberately not
	// cached: it is local to one viewer identity.
	if s.cache == nil {
		return
	}
	if verdict.Reason == ReasonRevoked || verdict.Reason == ReasonAlreadyExpired || verdict.Reason == ReasonFixedElapsed {
		payload, err := json.Marshal(terminalEntry{
			Outcome:     verdict.Outcome,
			RedirectURL: verdict.RedirectURL,
			Message:     verdict.Message,
		})
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, terminalCachePrefix+link.Token, payload, terminalCacheTTL).Err(); err != nil {
			s.logger.Debug("terminal verdict cache write failed", zap.Error(err))
		}
	}
}

type terminalEntry struct {
	Outcome     Outcome `json:"outcome"`
	RedirectURL string  `json:"redirect_url,omitempty"`
	Message     string  `json:"message,omitempty"`
}

func (s *AccessService) terminalFromCache(ctx context.Context, token string) *AccessResult {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, terminalCachePrefix+token).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("terminal verdict cache read failed", zap.Error(err))
		}
		return nil
	}
	var entry terminalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}
	reason := ReasonAlreadyExpired
	if entry.Outcome == OutcomeRevoked {
		reason = ReasonRevoked
	}
	verdictCounter.WithLabelValues(string(entry.Outcome), reason).Inc()
	return &AccessResult{Verdict: Verdict{
		Outcome:     entry.Outcome,
		Reason:      reason,
		RedirectURL: entry.RedirectURL,
		Message:     entry.Message,
	}}
}
