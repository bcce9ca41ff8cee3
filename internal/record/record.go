// Package record defines the ledger record model shared by the Tally client,
// the change detector and the backend uploader.
//
// A Record is an immutable snapshot of one ledger master as fetched from
// Tally. Records are produced fresh on every fetch and are never mutated
// after fingerprinting; enrichment (geocoding) happens before a record
// enters the detection pipeline.
package record

// Record is one ledger-like entity fetched from the accounting system.
//
// GUID is Tally's globally unique identifier. Older data sometimes lacks a
// GUID, in which case Name serves as the identity fallback (see Key).
type Record struct {
	GUID   string `json:"guid"`
	Name   string `json:"name"`
	Parent string `json:"parent"`

	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Pincode string `json:"pincode"`

	OpeningBalance float64 `json:"opening_balance"`
	ClosingBalance float64 `json:"closing_balance"`

	// Enrichment fields, populated by the geocoder when enabled.
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	LocationSource string   `json:"location_source,omitempty"`
}

// Key returns the identity used for snapshot lookups: the GUID when present,
// otherwise the display name. Two records without GUIDs that share a name
// collapse to the same key; the change detector documents that behavior.
func (r *Record) Key() string {
	if r.GUID != "" {
		return r.GUID
	}
	return r.Name
}

// UploadPayload is the backend's client-record shape for one Record.
//
// The field names follow the backend's sync API contract: Tally identifiers
// are prefixed with tally_, the source is always "tally" and status is
// always "active" (the middleware never deactivates clients).
type UploadPayload struct {
	TallyGUID string   `json:"tally_guid"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Address   string   `json:"address"`
	Pincode   string   `json:"pincode"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Status    string   `json:"status"`
	Source    string   `json:"source"`
}

// ForUpload converts a Record to the backend payload shape.
func (r *Record) ForUpload() UploadPayload {
	return UploadPayload{
		TallyGUID: r.GUID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   r.Address,
		Pincode:   r.Pincode,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Status:    "active",
		Source:    "tally",
	}
}

// FilterByParents returns the records whose parent group is in groups.
// An empty groups list means no filtering: all records pass through.
// The input slice is never modified.
func FilterByParents(records []Record, groups []string) []Record {
	if len(groups) == 0 {
		return records
	}

	allowed := make(map[string]bool, len(groups))
	for _, g := range groups {
		allowed[g] = true
	}

	var out []Record
	for _, r := range records {
		if allowed[r.Parent] {
			out = append(out, r)
		}
	}
	return out
}
