package sync

import (
	"fmt"
	"time"
)

// Stats is a snapshot of the most recent pass or poll outcome. Only the
// latest values are kept; run history lives in the snapshot store.
type Stats struct {
	// LastRun is when the most recent pass finished (zero = never ran).
	LastRun time.Time
	// New/Changed/Unchanged are the detector counts of the last pass.
	New       int
	Changed   int
	Unchanged int
	// Uploaded is how many records the backend accepted in the last pass.
	Uploaded int
	// Failed is the backend's failed count for the last pass.
	Failed int
	// Passes counts completed pass attempts since the loop started.
	Passes int
	// LastError is the truncated error of the last failed pass, empty on
	// success.
	LastError string
	// NeedsCredentials is set when the last failure was an authentication
	// rejection; the operator must fix credentials, retrying won't help.
	NeedsCredentials bool
}

// String renders the operator-facing one-liner shown by the status command
// and the dashboard. It always reflects the latest pass, success or not.
func (s Stats) String() string {
	if s.LastRun.IsZero() {
		return "never synced"
	}
	when := s.LastRun.Format("15:04:05")
	if s.NeedsCredentials {
		return fmt.Sprintf("auth required (last attempt %s)", when)
	}
	if s.LastError != "" {
		return fmt.Sprintf("failed at %s: %s", when, truncateErr(s.LastError))
	}
	if s.New == 0 && s.Changed == 0 {
		return fmt.Sprintf("no changes at %s (%d unchanged)", when, s.Unchanged)
	}
	return fmt.Sprintf("synced %d at %s (%d new, %d changed, %d failed)",
		s.Uploaded, when, s.New, s.Changed, s.Failed)
}

func truncateErr(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
