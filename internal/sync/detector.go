// Package sync implements the change-detection and synchronization engine:
// classifying fetched records against the last-uploaded snapshot, uploading
// only the delta in bounded batches, and running the two background loops
// (auto-sync scheduler and inbound update poller).
package sync

import (
	"log"

	"github.com/rajlabs/tallybridge/internal/record"
)

// Classification is the result of diffing a current fetch against the
// previous snapshot. Every current record lands in exactly one bucket:
// New, Changed, or (counted only) unchanged.
type Classification struct {
	// New holds records whose key was absent from the previous snapshot.
	New []record.Record
	// Changed holds records whose fingerprint differs from the snapshot.
	Changed []record.Record
	// Unchanged counts records that matched and were dropped.
	Unchanged int

	// Fingerprints maps every current record key to its fresh digest.
	// This becomes the next snapshot after a successful upload.
	Fingerprints map[string]string
}

// Empty reports whether the pass has nothing to upload.
func (c *Classification) Empty() bool {
	return len(c.New) == 0 && len(c.Changed) == 0
}

// Detect classifies current records against the previous key→digest
// mapping. Records are processed in input order; when two records collapse
// to the same key (duplicate name, no GUID) the last one wins the
// fingerprint slot, preserving the source system's behavior. Records in
// previous but absent from current are ignored — no delete events.
func Detect(current []record.Record, previous map[string]string, logger *log.Logger) Classification {
	out := Classification{
		Fingerprints: make(map[string]string, len(current)),
	}

	for i := range current {
		r := &current[i]
		key := r.Key()
		if key == "" {
			if logger != nil {
				logger.Printf("Warning: skipping record with no guid and no name")
			}
			continue
		}

		digest := record.Fingerprint(r)
		if _, dup := out.Fingerprints[key]; dup && logger != nil {
			logger.Printf("Warning: duplicate record key %q, last occurrence wins", key)
		}
		out.Fingerprints[key] = digest

		prev, seen := previous[key]
		switch {
		case !seen:
			out.New = append(out.New, *r)
		case prev != digest:
			out.Changed = append(out.Changed, *r)
		default:
			out.Unchanged++
		}
	}

	return out
}
