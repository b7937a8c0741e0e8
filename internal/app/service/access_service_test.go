package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
)

type mockOwnerLookup struct {
	getFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockOwnerLookup) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.User{ID: id, Subscription: model.SubscriptionActive}, nil
}

type staticFilter struct {
	allow bool
}

func (f staticFilter) Test(string) bool { return f.allow }

func newTestAccess(links repository.LinkStore, users OwnerLookup) *AccessService {
	if users == nil {
		users = &mockOwnerLookup{}
	}
	return NewAccessService(AccessDeps{Links: links, Users: users})
}

func seedLink(t *testing.T, store repository.LinkStore, link *model.Link) {
	t.Helper()
	if link.ViewerSessions == nil {
		link.ViewerSessions = model.ViewerSessions{}
	}
	if link.Status == "" {
		link.Status = model.StatusActive
	}
	if err := store.Create(context.Background(), link); err != nil {
		t.Fatalf("seed link: %v", err)
	}
}

func TestAccessService_CountdownFirstOpen(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 60,
	})
	svc := newTestAccess(store, nil)

	result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active, got %s", result.Verdict.Outcome)
	}

	stored, _ := store.GetByID(context.Background(), "link_1")
	if stored.OpenCount != 1 {
		t.Fatalf("expected open_count 1, got %d", stored.OpenCount)
	}
	if stored.FirstOpenedAt == nil {
		t.Fatal("expected first_opened_at to be stamped")
	}
	session, ok := stored.ViewerSessions["viewer-a"]
	if !ok {
		t.Fatal("expected viewer session to be created")
	}
	if !session.FirstOpenedAt.Equal(baseTime) {
		t.Fatalf("session clock %v, want %v", session.FirstOpenedAt, baseTime)
	}
}

func TestAccessService_TerminalLinkIsUntouched(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryManual, Status: model.StatusRevoked,
		OpenCount: 7,
	})
	svc := newTestAccess(store, nil)

	for i := 0; i < 3; i++ {
		result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
		if err != nil {
			t.Fatalf("EvaluateAccess error: %v", err)
		}
		if result.Verdict.Outcome != OutcomeRevoked {
			t.Fatalf("expected revoked, got %s", result.Verdict.Outcome)
		}
	}

	stored, _ := store.GetByID(context.Background(), "link_1")
	if stored.OpenCount != 7 {
		t.Fatalf("terminal access mutated open_count: %d", stored.OpenCount)
	}
	if len(stored.ViewerSessions) != 0 {
		t.Fatal("terminal access created a viewer session")
	}
}

func TestAccessService_FixedExpiryPersistsOnce(t *testing.T) {
	expires := baseTime.Add(-time.Minute)
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryFixed, FixedExpiresAt: &expires,
	})
	svc := newTestAccess(store, nil)

	result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired, got %s", result.Verdict.Outcome)
	}

	stored, _ := store.GetByID(context.Background(), "link_1")
	if stored.Status != model.StatusExpired {
		t.Fatalf("expected stored expired, got %s", stored.Status)
	}

	// Second access hits the stored terminal state; still expired, still no
	// side effects.
	result, err = svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired, got %s", result.Verdict.Outcome)
	}
	if stored, _ = store.GetByID(context.Background(), "link_1"); stored.OpenCount != 0 {
		t.Fatalf("expired access counted opens: %d", stored.OpenCount)
	}
}

func TestAccessService_ConcurrentFixedBoundary(t *testing.T) {
	expires := baseTime.Add(-time.Second)
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryFixed, FixedExpiresAt: &expires,
	})
	svc := newTestAccess(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer", baseTime)
			if err != nil {
				t.Errorf("EvaluateAccess error: %v", err)
				return
			}
			if result.Verdict.Outcome != OutcomeExpired {
				t.Errorf("expected expired, got %s", result.Verdict.Outcome)
			}
		}()
	}
	wg.Wait()

	stored, _ := store.GetByID(context.Background(), "link_1")
	if stored.Status != model.StatusExpired {
		t.Fatalf("expected stored expired, got %s", stored.Status)
	}
}

func TestAccessService_ConcurrentDistinctViewers(t *testing.T) {
	const viewers = 50

	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 3600,
	})
	svc := newTestAccess(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("viewer-%d", n)
			result, err := svc.EvaluateAccess(context.Background(), "tok1", key, baseTime)
			if err != nil {
				t.Errorf("EvaluateAccess error: %v", err)
				return
			}
			if result.Verdict.Outcome != OutcomeActive {
				t.Errorf("expected active, got %s", result.Verdict.Outcome)
			}
		}(i)
	}
	wg.Wait()

	stored, _ := store.GetByID(context.Background(), "link_1")
	if len(stored.ViewerSessions) != viewers {
		t.Fatalf("expected %d sessions, got %d", viewers, len(stored.ViewerSessions))
	}
	if stored.OpenCount != viewers {
		t.Fatalf("expected %d opens, got %d", viewers, stored.OpenCount)
	}
}

func TestAccessService_ConcurrentSameViewerSingleSession(t *testing.T) {
	const attempts = 50

	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 3600,
	})
	svc := newTestAccess(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
			if err != nil {
				t.Errorf("EvaluateAccess error: %v", err)
				return
			}
			if result.Verdict.Outcome != OutcomeActive {
				t.Errorf("expected active, got %s", result.Verdict.Outcome)
			}
		}()
	}
	wg.Wait()

	stored, _ := store.GetByID(context.Background(), "link_1")
	if len(stored.ViewerSessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(stored.ViewerSessions))
	}
	// Everyone shares the winner's clock.
	session := stored.ViewerSessions["viewer-a"]
	if !session.FirstOpenedAt.Equal(baseTime) {
		t.Fatalf("session clock %v, want %v", session.FirstOpenedAt, baseTime)
	}
	if stored.OpenCount != attempts {
		t.Fatalf("expected %d opens, got %d", attempts, stored.OpenCount)
	}
}

func TestAccessService_CheckAccessDoesNotMutate(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 60,
	})
	svc := newTestAccess(store, nil)

	// One mutating evaluation issues the verdict; the byte fetch then
	// re-checks it read-only, possibly several times if the grant is reused.
	if _, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime); err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	for i := 0; i < 3; i++ {
		result, err := svc.CheckAccess(context.Background(), "tok1", "viewer-a", baseTime.Add(10*time.Second))
		if err != nil {
			t.Fatalf("CheckAccess error: %v", err)
		}
		if result.Verdict.Outcome != OutcomeActive {
			t.Fatalf("expected active, got %s", result.Verdict.Outcome)
		}
		// The check reads the clock started by the evaluation.
		if result.Verdict.RemainingSeconds == nil || *result.Verdict.RemainingSeconds != 50 {
			t.Fatalf("expected 50 seconds remaining, got %v", result.Verdict.RemainingSeconds)
		}
	}

	stored, _ := store.GetByID(context.Background(), "link_1")
	if stored.OpenCount != 1 {
		t.Fatalf("read-only checks mutated open_count: %d", stored.OpenCount)
	}
	if len(stored.ViewerSessions) != 1 {
		t.Fatalf("read-only checks touched sessions: %d", len(stored.ViewerSessions))
	}
}

func TestAccessService_CheckAccessStartsNoSession(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 60,
	})
	svc := newTestAccess(store, nil)

	result, err := svc.CheckAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if err != nil {
		t.Fatalf("CheckAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active, got %s", result.Verdict.Outcome)
	}

	stored, _ := store.GetByID(context.Background(), "link_1")
	if len(stored.ViewerSessions) != 0 || stored.OpenCount != 0 {
		t.Fatal("read-only check must not start a session or count an open")
	}
}

func TestAccessService_OwnerInactiveDoesNotMutate(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 60,
	})
	users := &mockOwnerLookup{
		getFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Subscription: model.SubscriptionInactive}, nil
		},
	}
	svc := newTestAccess(store, users)

	result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired, got %s", result.Verdict.Outcome)
	}

	stored, _ := store.GetByID(context.Background(), "link_1")
	if stored.Status != model.StatusActive {
		t.Fatalf("override must not change stored status, got %s", stored.Status)
	}
	if stored.OpenCount != 0 || len(stored.ViewerSessions) != 0 {
		t.Fatal("override must not record opens or sessions")
	}
}

func TestAccessService_MissingOwnerReadsAsExpired(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_gone",
		ExpiryMode: model.ExpiryManual,
	})
	users := &mockOwnerLookup{
		getFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, repository.ErrUserNotFound
		},
	}
	svc := newTestAccess(store, users)

	result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired, got %s", result.Verdict.Outcome)
	}
}

func TestAccessService_UnknownTokenNotFound(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	svc := newTestAccess(store, nil)

	_, err := svc.EvaluateAccess(context.Background(), "missing", "viewer-a", baseTime)
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestAccessService_FilterShedsUnknownTokens(t *testing.T) {
	store := repository.NewMemoryLinkStore()
	seedLink(t, store, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryManual,
	})
	svc := NewAccessService(AccessDeps{
		Links:  store,
		Users:  &mockOwnerLookup{},
		Filter: staticFilter{allow: false},
	})

	_, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound from filter, got %v", err)
	}
}

type failingLinkStore struct {
	*repository.MemoryLinkStore
	failures int
	calls    int
	mu       sync.Mutex
}

func (f *failingLinkStore) GetByToken(ctx context.Context, token string) (*model.Link, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return f.MemoryLinkStore.GetByToken(ctx, token)
}

func TestAccessService_RetriesTransientStorageErrors(t *testing.T) {
	inner := repository.NewMemoryLinkStore()
	seedLink(t, inner, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryManual,
	})
	store := &failingLinkStore{MemoryLinkStore: inner, failures: 2}
	svc := newTestAccess(store, nil)

	result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if result.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active, got %s", result.Verdict.Outcome)
	}
}

type openFailingLinkStore struct {
	*repository.MemoryLinkStore
	mu   sync.Mutex
	fail bool
}

func (f *openFailingLinkStore) RegisterOpen(ctx context.Context, id string, now time.Time) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.MemoryLinkStore.RegisterOpen(ctx, id, now)
}

func TestAccessService_CountdownClockSurvivesFailedOpenRegistration(t *testing.T) {
	inner := repository.NewMemoryLinkStore()
	seedLink(t, inner, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryCountdown, DurationSeconds: 60,
	})
	store := &openFailingLinkStore{MemoryLinkStore: inner, fail: true}
	svc := newTestAccess(store, nil)

	if _, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	// The session insert landed before the increment gave up: the clock is
	// running with the open not yet counted.
	stored, _ := inner.GetByID(context.Background(), "link_1")
	if len(stored.ViewerSessions) != 1 {
		t.Fatalf("expected the session to exist, got %d", len(stored.ViewerSessions))
	}
	if stored.OpenCount != 0 {
		t.Fatalf("failed registration must not count an open, got %d", stored.OpenCount)
	}

	// The next successful open counts once, against the original clock.
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()

	result, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime.Add(30*time.Second))
	if err != nil {
		t.Fatalf("EvaluateAccess error: %v", err)
	}
	if result.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active, got %s", result.Verdict.Outcome)
	}
	if result.Verdict.RemainingSeconds == nil || *result.Verdict.RemainingSeconds != 30 {
		t.Fatalf("expected 30 seconds remaining, got %v", result.Verdict.RemainingSeconds)
	}

	stored, _ = inner.GetByID(context.Background(), "link_1")
	if stored.OpenCount != 1 {
		t.Fatalf("expected exactly one counted open, got %d", stored.OpenCount)
	}
	if !stored.ViewerSessions["viewer-a"].FirstOpenedAt.Equal(baseTime) {
		t.Fatalf("session clock moved: %v", stored.ViewerSessions["viewer-a"].FirstOpenedAt)
	}
}

func TestAccessService_ExhaustedRetriesSurfaceAsUnavailable(t *testing.T) {
	inner := repository.NewMemoryLinkStore()
	seedLink(t, inner, &model.Link{
		ID: "link_1", Token: "tok1", OwnerID: "user_1",
		ExpiryMode: model.ExpiryManual,
	})
	store := &failingLinkStore{MemoryLinkStore: inner, failures: 100}
	svc := newTestAccess(store, nil)

	_, err := svc.EvaluateAccess(context.Background(), "tok1", "viewer-a", baseTime)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
