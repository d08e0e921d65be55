package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordMeta captures identifiers and audit fields shared across entities.
type RecordMeta struct {
	ID        uuid.UUID `bun:",pk,type:uuid" json:"id"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// EnsureID assigns a UUID when the struct is about to be persisted.
func (m *RecordMeta) EnsureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// FlagStatus is the submission state of a stored flag.
type FlagStatus string

const (
	FlagStatusPending   FlagStatus = "pending"
	FlagStatusAccepted  FlagStatus = "accepted"
	FlagStatusRejected  FlagStatus = "rejected"
	FlagStatusDuplicate FlagStatus = "duplicate"
	FlagStatusError     FlagStatus = "error"
)

// FlagStatuses lists every status in display order.
var FlagStatuses = []FlagStatus{
	FlagStatusPending,
	FlagStatusAccepted,
	FlagStatusRejected,
	FlagStatusDuplicate,
	FlagStatusError,
}

// TerminalStatuses are never submitted again.
var TerminalStatuses = []FlagStatus{
	FlagStatusAccepted,
	FlagStatusRejected,
	FlagStatusDuplicate,
}

// IsTerminal reports whether no further submission may happen.
func (s FlagStatus) IsTerminal() bool {
	switch s {
	case FlagStatusAccepted, FlagStatusRejected, FlagStatusDuplicate:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s FlagStatus) Valid() bool {
	for _, known := range FlagStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s FlagStatus) String() string { return string(s) }

// Flag is a captured token together with its submission history.
type Flag struct {
	bun.BaseModel `bun:"table:flags"`
	RecordMeta

	Value         string     `bun:",unique,notnull" json:"value"`
	Group         string     `bun:",nullzero" json:"group,omitempty"`
	Status        FlagStatus `bun:",notnull" json:"status"`
	FirstSeen     time.Time  `bun:",notnull" json:"first_seen"`
	LastAttempt   time.Time  `bun:",nullzero" json:"last_attempt,omitempty"`
	Attempts      int        `bun:",notnull,default:0" json:"attempts"`
	ServerMessage string     `bun:",nullzero" json:"server_message,omitempty"`
}

// NewFlag returns a pending flag first seen at now.
func NewFlag(value, group string, now time.Time) *Flag {
	return &Flag{
		Value:     strings.TrimSpace(value),
		Group:     strings.TrimSpace(group),
		Status:    FlagStatusPending,
		FirstSeen: now.UTC(),
	}
}

// Outcome classifies a single response from the scoring endpoint.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeRejected         Outcome = "rejected"
	OutcomeAlreadySubmitted Outcome = "already_submitted"
	OutcomeRateLimited      Outcome = "rate_limited"
	OutcomeTransportError   Outcome = "transport_error"
)

// Outcomes lists every outcome the classifier may produce.
var Outcomes = []Outcome{
	OutcomeAccepted,
	OutcomeRejected,
	OutcomeAlreadySubmitted,
	OutcomeRateLimited,
	OutcomeTransportError,
}

// ParseOutcome accepts the canonical names plus a few aliases used in config files.
func ParseOutcome(raw string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted", "ok", "success":
		return OutcomeAccepted, true
	case "rejected", "invalid":
		return OutcomeRejected, true
	case "already_submitted", "duplicate", "already-submitted":
		return OutcomeAlreadySubmitted, true
	case "rate_limited", "rate-limited", "ratelimited":
		return OutcomeRateLimited, true
	case "transport_error", "transport-error", "error":
		return OutcomeTransportError, true
	default:
		return "", false
	}
}

// Retryable reports whether the flag stays pending after this outcome.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransportError
}

func (o Outcome) String() string { return string(o) }

// StatusForOutcome maps an outcome onto the flag state machine. Retryable
// outcomes keep the flag pending.
func StatusForOutcome(o Outcome) FlagStatus {
	switch o {
	case OutcomeAccepted:
		return FlagStatusAccepted
	case OutcomeRejected:
		return FlagStatusRejected
	case OutcomeAlreadySubmitted:
		return FlagStatusDuplicate
	default:
		return FlagStatusPending
	}
}

// SubmissionResult is the classified response for one submission call.
type SubmissionResult struct {
	Outcome    Outcome
	Message    string
	StatusCode int
	Latency    time.Duration
	Err        error
}

// SubmissionAttempt is the audit row written for every submission call.
type SubmissionAttempt struct {
	bun.BaseModel `bun:"table:submission_attempts"`
	RecordMeta

	FlagID     uuid.UUID `bun:"type:uuid,nullzero" json:"flag_id"`
	FlagValue  string    `bun:",notnull" json:"flag_value"`
	Outcome    Outcome   `bun:",notnull" json:"outcome"`
	StatusCode int       `bun:",nullzero" json:"status_code,omitempty"`
	Message    string    `bun:",nullzero" json:"message,omitempty"`
	LatencyMS  int64     `bun:",nullzero" json:"latency_ms,omitempty"`
}
