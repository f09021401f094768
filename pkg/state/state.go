package state

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the terminal status of the most recent apply attempt.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ParseOutcome converts a string to an Outcome. The empty string is
// taken to mean OutcomeNone.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case "", OutcomeNone:
		return OutcomeNone, nil
	case OutcomeSucceeded:
		return OutcomeSucceeded, nil
	case OutcomeFailed:
		return OutcomeFailed, nil
	default:
		return OutcomeNone, fmt.Errorf("%q is not a valid outcome", s)
	}
}

// Record is what we remember between cycles. Outcome applies to
// LastAttemptedVersion specifically. LastGoodVersion is the most
// recent version that applied successfully, and is carried forward
// unchanged when an attempt fails.
type Record struct {
	LastAttemptedVersion string    `json:"lastAttemptedVersion"`
	Outcome              Outcome   `json:"outcome"`
	LastGoodVersion      string    `json:"lastGoodVersion,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt,omitempty"`
}

// Empty is the record you get when nothing has been attempted yet.
func Empty() Record {
	return Record{Outcome: OutcomeNone}
}

// Succeeded reports whether version is recorded as successfully
// applied.
func (r Record) Succeeded(version string) bool {
	return r.LastAttemptedVersion == version && r.Outcome == OutcomeSucceeded
}

// Failed reports whether version is recorded as having failed to
// apply.
func (r Record) Failed(version string) bool {
	return r.LastAttemptedVersion == version && r.Outcome == OutcomeFailed
}

// Success returns the record that should be written after version
// applied successfully.
func (r Record) Success(version string, now time.Time) Record {
	return Record{
		LastAttemptedVersion: version,
		Outcome:              OutcomeSucceeded,
		LastGoodVersion:      version,
		UpdatedAt:            now,
	}
}

// Failure returns the record that should be written after version
// failed to apply.
func (r Record) Failure(version string, now time.Time) Record {
	return Record{
		LastAttemptedVersion: version,
		Outcome:              OutcomeFailed,
		LastGoodVersion:      r.LastGoodVersion,
		UpdatedAt:            now,
	}
}

type Store interface {
	// Read fetches the record. An absent or unreadable record is
	// reported as Empty(); it is never an error.
	Read(ctx context.Context) Record
	// Write replaces the record. Either the old or the new record
	// is observable afterwards, never a mixture.
	Write(ctx context.Context, r Record) error
	// String returns a string representation of where the state is
	// recorded (e.g., for referring to it in logs)
	String() string
}
