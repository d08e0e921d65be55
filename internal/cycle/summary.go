package cycle

import (
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
)

// Result is the per-flag entry of a cycle report. Status is empty when the
// store update failed or the flag was already finalized.
type Result struct {
	Value    string
	Outcome  domain.Outcome
	Status   domain.FlagStatus
	Attempts int
	Message  string
	Err      error
}

// Summary reports one pass over the pending flags.
type Summary struct {
	Total           int
	Accepted        int
	Rejected        int
	Duplicate       int
	Retrying        int
	RateLimited     int
	TransportErrors int
	Errored         int
	Skipped         int
	StorageErrors   int
	Aborted         bool
	Interrupted     bool
	Duration        time.Duration
	Results         []Result
}

// Submitted counts flags that reached the endpoint.
func (s Summary) Submitted() int {
	return len(s.Results)
}

// Failed reports whether anything in the pass needs operator attention.
func (s Summary) Failed() bool {
	return s.StorageErrors > 0 || s.Aborted || s.Errored > 0
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() []logger.Field {
	return []logger.Field{
		logger.F("total", s.Total),
		logger.F("accepted", s.Accepted),
		logger.F("rejected", s.Rejected),
		logger.F("duplicate", s.Duplicate),
		logger.F("retrying", s.Retrying),
		logger.F("rate_limited", s.RateLimited),
		logger.F("transport_errors", s.TransportErrors),
		logger.F("errored", s.Errored),
		logger.F("skipped", s.Skipped),
		logger.F("storage_errors", s.StorageErrors),
		logger.F("aborted", s.Aborted),
		logger.F("interrupted", s.Interrupted),
		logger.F("duration", s.Duration.Round(time.Millisecond)),
	}
}

func (s *Summary) tally(outcome domain.Outcome, status domain.FlagStatus) {
	switch outcome {
	case domain.OutcomeAccepted:
		s.Accepted++
	case domain.OutcomeRejected:
		s.Rejected++
	case domain.OutcomeAlreadySubmitted:
		s.Duplicate++
	case domain.OutcomeRateLimited:
		s.RateLimited++
	case domain.OutcomeTransportError:
		s.TransportErrors++
	}
	switch status {
	case domain.FlagStatusPending:
		s.Retrying++
	case domain.FlagStatusError:
		s.Errored++
	}
}
