package service

import (
	"time"

	"github.com/kvasserman/fadelink/internal/app/model"
)

// Evaluate maps (link, owner subscription state, viewer identity, now) to a
// Decision. It is a pure function: all persistence happens afterwards, in
// the access service, driven by the Decision's effect flags.
//
// Order matters: stored terminal states win, then the derived
// owner-inactive override, then the mode-specific clock.
func Evaluate(link *model.Link, ownerActive bool, viewerKey string, now time.Time) Decision {
	switch link.Status {
	case model.StatusRevoked:
		return Decision{Verdict: Verdict{
			Outcome:     OutcomeRevoked,
			Reason:      ReasonRevoked,
			RedirectURL: link.ExpiredRedirectURL,
			Message:     messageOr(link.ExpiredMessage, defaultRevokedMessage),
		}}
	case model.StatusExpired:
		return Decision{Verdict: Verdict{
			Outcome:     OutcomeExpired,
			Reason:      ReasonAlreadyExpired,
			RedirectURL: link.ExpiredRedirectURL,
			Message:     messageOr(link.ExpiredMessage, defaultExpiredMessage),
		}}
	}

	// Derived condition, never persisted: the link reads as expired to every
	// viewer while the owner's subscription is inactive, and comes back on
	// its own if the subscription is reactivated.
	if !ownerActive {
		return Decision{Verdict: Verdict{
			Outcome:     OutcomeExpired,
			Reason:      ReasonOwnerInactive,
			RedirectURL: link.ExpiredRedirectURL,
			Message:     messageOr(link.ExpiredMessage, defaultExpiredMessage),
		}}
	}

	switch link.ExpiryMode {
	case model.ExpiryManual:
		// Only a revoke or an admin action ends a manual link; there is no
		// time-based transition and no remaining-time telemetry.
		return Decision{
			Verdict:   Verdict{Outcome: OutcomeActive},
			CountOpen: true,
		}

	case model.ExpiryFixed:
		if link.FixedExpiresAt == nil {
			// Creation rejects fixed links without an instant; one that
			// slipped through has nothing to expire on.
			return Decision{
				Verdict:   Verdict{Outcome: OutcomeActive},
				CountOpen: true,
			}
		}
		expiresAt := link.FixedExpiresAt.UTC()
		if !now.Before(expiresAt) {
			return Decision{
				Verdict: Verdict{
					Outcome:     OutcomeExpired,
					Reason:      ReasonFixedElapsed,
					RedirectURL: link.ExpiredRedirectURL,
					Message:     messageOr(link.ExpiredMessage, defaultExpiredMessage),
				},
				// Make the boundary crossing durable so future lookups
				// short-circuit on stored status.
				PersistExpiry: true,
			}
		}
		return Decision{
			Verdict: Verdict{
				Outcome:          OutcomeActive,
				RemainingSeconds: remaining(expiresAt.Sub(now)),
				ExpiresAt:        &expiresAt,
			},
			CountOpen: true,
		}

	case model.ExpiryCountdown:
		session, seen := link.ViewerSessions[viewerKey]
		if !seen {
			expiresAt := now.Add(time.Duration(link.DurationSeconds) * time.Second).UTC()
			return Decision{
				Verdict: Verdict{
					Outcome:          OutcomeActive,
					RemainingSeconds: &link.DurationSeconds,
					ExpiresAt:        &expiresAt,
				},
				CountOpen:          true,
				StartViewerSession: true,
			}
		}
		expiresAt := session.FirstOpenedAt.Add(time.Duration(link.DurationSeconds) * time.Second).UTC()
		if !now.Before(expiresAt) {
			// Local to this viewer identity: other viewers keep their own
			// clocks and the stored status stays active.
			return Decision{Verdict: Verdict{
				Outcome:     OutcomeExpired,
				Reason:      ReasonViewerElapsed,
				RedirectURL: link.ExpiredRedirectURL,
				Message:     messageOr(link.ExpiredMessage, defaultSessionMessage),
			}}
		}
		return Decision{
			Verdict: Verdict{
				Outcome:          OutcomeActive,
				RemainingSeconds: remaining(expiresAt.Sub(now)),
				ExpiresAt:        &expiresAt,
			},
			CountOpen: true,
		}
	}

	// Unknown mode: creation validates modes, so this is unreachable in
	// practice; fail closed rather than leak the document.
	return Decision{Verdict: Verdict{
		Outcome: OutcomeExpired,
		Reason:  "unknown expiry mode",
		Message: defaultExpiredMessage,
	}}
}

func messageOr(custom, fallback string) string {
	if custom != "" {
		return custom
	}
	return fallback
}
