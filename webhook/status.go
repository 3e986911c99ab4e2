package webhook

import "fmt"

/* Status represents the processing state of a received webhook
 * Follows the lifecycle:
 * Received -> VerificationFailed/InvalidJSON (gateway, terminal)
 * Received -> Verified -> Processing -> Completed/Duplicate/NoHandler/Failed
 * Processing <-> RetryScheduled (bounded by max retries)
 */
type Status int

const (
	Received Status = iota + 1
	VerificationFailed
	InvalidJSON
	Verified
	Processing
	Completed
	Duplicate
	NoHandler
	RetryScheduled
	Failed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Received:
		return "received"
	case VerificationFailed:
		return "verification_failed"
	case InvalidJSON:
		return "invalid_json"
	case Verified:
		return "verified"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Duplicate:
		return "duplicate"
	case NoHandler:
		return "no_handler"
	case RetryScheduled:
		return "retry_scheduled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "received":
		return Received
	case "verification_failed":
		return VerificationFailed
	case "invalid_json":
		return InvalidJSON
	case "verified":
		return Verified
	case "processing":
		return Processing
	case "completed":
		return Completed
	case "duplicate":
		return Duplicate
	case "no_handler":
		return NoHandler
	case "retry_scheduled":
		return RetryScheduled
	case "failed":
		return Failed
	default:
		return Received
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Received || s > Failed {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	switch s {
	case VerificationFailed, InvalidJSON, Completed, Duplicate, NoHandler, Failed:
		return true
	}
	return false
}

/* transitions is the forward-only state machine table
 * A status missing from the map is terminal and rejects every transition
 */
var transitions = map[Status][]Status{
	Received:       {VerificationFailed, InvalidJSON, Verified},
	Verified:       {Processing},
	Processing:     {Completed, Duplicate, NoHandler, RetryScheduled, Failed},
	RetryScheduled: {Processing},
}

// CanTransition reports whether moving from s to next is a legal transition
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// TransitionSources returns every status that may legally transition into next.
// The storage layer uses this to enforce transitions atomically.
func TransitionSources(next Status) []Status {
	var sources []Status
	for from, targets := range transitions {
		for _, to := range targets {
			if to == next {
				sources = append(sources, from)
			}
		}
	}
	return sources
}
