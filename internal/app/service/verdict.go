package service

import "time"

// Outcome is the result of evaluating a link's accessibility.
type Outcome string

const (
	OutcomeActive  Outcome = "active"
	OutcomeExpired Outcome = "expired"
	OutcomeRevoked Outcome = "revoked"
)

// Reasons attached to verdicts for logging and metrics. They never reach
// the viewer: billing-derived expiry must be indistinguishable from any
// other expiry on the wire.
const (
	ReasonRevoked        = "revoked"
	ReasonAlreadyExpired = "already expired"
	ReasonOwnerInactive  = "owner subscription inactive"
	ReasonFixedElapsed   = "fixed expiry instant passed"
	ReasonViewerElapsed  = "viewer countdown elapsed"
)

// Verdict is what the presentation layer consumes: the outcome plus
// remaining-time telemetry and the owner's custom terminal rendering.
type Verdict struct {
	Outcome          Outcome    `json:"outcome"`
	RemainingSeconds *int64     `json:"remaining_seconds,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`

	// Reason is internal; handlers log it but never serialize it.
	Reason string `json:"-"`

	RedirectURL string `json:"custom_expired_redirect_url,omitempty"`
	Message     string `json:"custom_expired_message,omitempty"`
}

// Decision couples a verdict with the side effects the state mutator must
// apply. Evaluation itself stays pure; nothing is persisted until the
// access service acts on these flags.
type Decision struct {
	Verdict Verdict

	// CountOpen: increment open_count and stamp the link-level first open.
	CountOpen bool
	// StartViewerSession: insert this viewer's countdown entry (first open
	// of a countdown link by this viewer identity).
	StartViewerSession bool
	// PersistExpiry: durably flip active->expired (fixed-date boundary
	// crossing only; a lapsed per-viewer countdown never flips the link).
	PersistExpiry bool
}

const (
	defaultExpiredMessage = "This link has expired"
	defaultRevokedMessage = "This link has been revoked"
	defaultSessionMessage = "Your viewing session has expired"
)

func remaining(d time.Duration) *int64 {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return &secs
}
