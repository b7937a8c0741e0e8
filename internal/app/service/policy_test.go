package service

import (
	"testing"
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func activeLink(mode model.ExpiryMode) *model.Link {
	return &model.Link{
		ID:             "link_1",
		Token:          "tok1",
		OwnerID:        "user_1",
		DocumentID:     "doc_1",
		ExpiryMode:     mode,
		Status:         model.StatusActive,
		ViewerSessions: model.ViewerSessions{},
	}
}

func TestEvaluate_RevokedWinsOverEverything(t *testing.T) {
	link := activeLink(model.ExpiryManual)
	link.Status = model.StatusRevoked
	link.ExpiredMessage = "gone for good"

	dec := Evaluate(link, false, "viewer", baseTime)
	if dec.Verdict.Outcome != OutcomeRevoked {
		t.Fatalf("expected revoked, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.Message != "gone for good" {
		t.Fatalf("expected custom message, got %q", dec.Verdict.Message)
	}
	if dec.CountOpen || dec.StartViewerSession || dec.PersistExpiry {
		t.Fatal("terminal verdict must carry no side effects")
	}
}

func TestEvaluate_StoredExpiredShortCircuits(t *testing.T) {
	link := activeLink(model.ExpiryFixed)
	link.Status = model.StatusExpired

	dec := Evaluate(link, true, "viewer", baseTime)
	if dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.Message != defaultExpiredMessage {
		t.Fatalf("expected default message, got %q", dec.Verdict.Message)
	}
	if dec.PersistExpiry {
		t.Fatal("stored expired must not re-persist")
	}
}

func TestEvaluate_OwnerInactiveReadsAsExpired(t *testing.T) {
	link := activeLink(model.ExpiryManual)

	dec := Evaluate(link, false, "viewer", baseTime)
	if dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.Reason != ReasonOwnerInactive {
		t.Fatalf("expected owner-inactive reason, got %q", dec.Verdict.Reason)
	}
	// The override is derived, never stored, and its rendering must be
	// indistinguishable from an ordinary expiry.
	if dec.PersistExpiry {
		t.Fatal("owner-inactive override must not persist a transition")
	}
	if dec.Verdict.Message != defaultExpiredMessage {
		t.Fatalf("expected generic expired message, got %q", dec.Verdict.Message)
	}
	if link.Status != model.StatusActive {
		t.Fatalf("stored status must stay active, got %s", link.Status)
	}
}

func TestEvaluate_OwnerReactivationRestoresAccess(t *testing.T) {
	link := activeLink(model.ExpiryManual)

	if dec := Evaluate(link, false, "viewer", baseTime); dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired while inactive, got %s", dec.Verdict.Outcome)
	}
	if dec := Evaluate(link, true, "viewer", baseTime); dec.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active after reactivation, got %s", dec.Verdict.Outcome)
	}
}

func TestEvaluate_ManualMode(t *testing.T) {
	link := activeLink(model.ExpiryManual)

	dec := Evaluate(link, true, "viewer", baseTime)
	if dec.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.RemainingSeconds != nil {
		t.Fatal("manual mode must not report remaining time")
	}
	if !dec.CountOpen {
		t.Fatal("active verdict must count the open")
	}
	if dec.StartViewerSession {
		t.Fatal("manual mode has no viewer sessions")
	}
}

func TestEvaluate_FixedMode_Boundary(t *testing.T) {
	expires := baseTime.Add(time.Hour)

	link := activeLink(model.ExpiryFixed)
	link.FixedExpiresAt = &expires

	// One second before the instant the link is still active.
	dec := Evaluate(link, true, "viewer", expires.Add(-time.Second))
	if dec.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active just before the instant, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.RemainingSeconds == nil || *dec.Verdict.RemainingSeconds != 1 {
		t.Fatalf("expected 1 second remaining, got %v", dec.Verdict.RemainingSeconds)
	}

	// At the instant itself the link is expired and the transition persists.
	dec = Evaluate(link, true, "viewer", expires)
	if dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired at the instant, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.Reason != ReasonFixedElapsed {
		t.Fatalf("unexpected reason %q", dec.Verdict.Reason)
	}
	if !dec.PersistExpiry {
		t.Fatal("fixed boundary crossing must persist")
	}
	if dec.CountOpen {
		t.Fatal("expired access must not count an open")
	}
}

func TestEvaluate_CountdownFirstOpenStartsSession(t *testing.T) {
	link := activeLink(model.ExpiryCountdown)
	link.DurationSeconds = 60

	dec := Evaluate(link, true, "viewer-a", baseTime)
	if dec.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active, got %s", dec.Verdict.Outcome)
	}
	if !dec.StartViewerSession || !dec.CountOpen {
		t.Fatal("first open must start the session and count the open")
	}
	if dec.Verdict.RemainingSeconds == nil || *dec.Verdict.RemainingSeconds != 60 {
		t.Fatalf("expected full duration remaining, got %v", dec.Verdict.RemainingSeconds)
	}
	if want := baseTime.Add(60 * time.Second); !dec.Verdict.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry at %v, got %v", want, dec.Verdict.ExpiresAt)
	}
}

func TestEvaluate_CountdownClockScenario(t *testing.T) {
	// First open at t=1000 with a 60 second window: active at t=1050 with 10
	// seconds left, expired at t=1065.
	t0 := time.Unix(1000, 0).UTC()
	link := activeLink(model.ExpiryCountdown)
	link.DurationSeconds = 60
	link.ViewerSessions["viewer-a"] = model.ViewerSession{FirstOpenedAt: t0}

	dec := Evaluate(link, true, "viewer-a", time.Unix(1050, 0).UTC())
	if dec.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active at t=1050, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.RemainingSeconds == nil || *dec.Verdict.RemainingSeconds != 10 {
		t.Fatalf("expected 10 seconds remaining, got %v", dec.Verdict.RemainingSeconds)
	}
	if dec.StartViewerSession {
		t.Fatal("existing session must not restart")
	}

	dec = Evaluate(link, true, "viewer-a", time.Unix(1065, 0).UTC())
	if dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired at t=1065, got %s", dec.Verdict.Outcome)
	}
	if dec.Verdict.Reason != ReasonViewerElapsed {
		t.Fatalf("unexpected reason %q", dec.Verdict.Reason)
	}
	// A lapsed per-viewer clock never flips the stored status.
	if dec.PersistExpiry {
		t.Fatal("viewer countdown expiry must not persist")
	}
	if dec.Verdict.Message != defaultSessionMessage {
		t.Fatalf("expected session message, got %q", dec.Verdict.Message)
	}
}

func TestEvaluate_CountdownBoundaryIsExclusive(t *testing.T) {
	link := activeLink(model.ExpiryCountdown)
	link.DurationSeconds = 60
	link.ViewerSessions["viewer-a"] = model.ViewerSession{FirstOpenedAt: baseTime}

	deadline := baseTime.Add(60 * time.Second)
	if dec := Evaluate(link, true, "viewer-a", deadline.Add(-time.Second)); dec.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected active one second before the deadline, got %s", dec.Verdict.Outcome)
	}
	if dec := Evaluate(link, true, "viewer-a", deadline); dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired at the deadline, got %s", dec.Verdict.Outcome)
	}
}

func TestEvaluate_CountdownViewersAreIndependent(t *testing.T) {
	link := activeLink(model.ExpiryCountdown)
	link.DurationSeconds = 3600
	link.ViewerSessions["viewer-a"] = model.ViewerSession{FirstOpenedAt: baseTime}

	// Half an hour later viewer A is mid-window and viewer B has never
	// opened the link: B gets a fresh full clock.
	later := baseTime.Add(30 * time.Minute)

	decA := Evaluate(link, true, "viewer-a", later)
	if decA.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected viewer A active, got %s", decA.Verdict.Outcome)
	}
	if *decA.Verdict.RemainingSeconds != 1800 {
		t.Fatalf("expected 1800 seconds left for A, got %d", *decA.Verdict.RemainingSeconds)
	}

	decB := Evaluate(link, true, "viewer-b", later)
	if decB.Verdict.Outcome != OutcomeActive {
		t.Fatalf("expected viewer B active, got %s", decB.Verdict.Outcome)
	}
	if *decB.Verdict.RemainingSeconds != 3600 {
		t.Fatalf("expected full window for B, got %d", *decB.Verdict.RemainingSeconds)
	}
	if !decB.StartViewerSession {
		t.Fatal("viewer B's first open must start a session")
	}

	// A's expiry does not touch B.
	decA = Evaluate(link, true, "viewer-a", baseTime.Add(2*time.Hour))
	if decA.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected viewer A expired, got %s", decA.Verdict.Outcome)
	}
}

func TestEvaluate_UnknownModeFailsClosed(t *testing.T) {
	link := activeLink(model.ExpiryMode("weird"))

	dec := Evaluate(link, true, "viewer", baseTime)
	if dec.Verdict.Outcome != OutcomeExpired {
		t.Fatalf("expected expired for unknown mode, got %s", dec.Verdict.Outcome)
	}
	if dec.CountOpen || dec.StartViewerSession || dec.PersistExpiry {
		t.Fatal("unknown mode must carry no side effects")
	}
}
