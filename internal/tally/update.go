package tally

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
)

// UpdateResult is the outcome of one update-protocol exchange. The protocol
// never lets an error escape as a Go error: the poller needs a reportable
// per-item result even when Tally is unreachable.
type UpdateResult struct {
	// Success is true only when Tally explicitly confirmed the alteration.
	Success bool
	// Err is a human-readable failure description, empty on success.
	Err string
	// RawResponse is a truncated copy of Tally's response body, forwarded
	// to the backend for diagnostics. Empty when no response was received.
	RawResponse string
}

// Response body truncation limits, matching what the backend stores.
const (
	rawSuccessLimit = 300
	rawFailureLimit = 500
)

// Updater replays backend-originated edits into Tally using a two-step
// fetch-then-alter exchange:
//
//  1. Fetch the ledger by GUID. This confirms the target is addressable and
//     yields the exact current name, which the Alter action matches on in
//     addition to the GUID.
//  2. Submit an Import Data envelope altering only the changed fields, then
//     require an explicit positive status (ALTERED/CREATED count) in the
//     response. A rejection marker, or the absence of any positive status,
//     is a failure.
type Updater struct {
	client   *Client
	company  string
	username string
	password string
}

// NewUpdater creates an Updater bound to one company.
func NewUpdater(client *Client, company, username, password string) *Updater {
	return &Updater{
		client:   client,
		company:  company,
		username: username,
		password: password,
	}
}

// ReplaceAddress replaces the address lines of the ledger identified by
// guid with newAddress (comma-separated lines).
func (u *Updater) ReplaceAddress(ctx context.Context, guid, newAddress string) UpdateResult {
	// Step 1: confirm the ledger exists and learn its exact name.
	ledger, err := u.client.FetchLedgerByGUID(ctx, u.company, u.username, u.password, guid)
	if err != nil {
		return UpdateResult{Err: fmt.Sprintf("fetch before alter failed: %v", err)}
	}
	if ledger == nil {
		return UpdateResult{Err: fmt.Sprintf("no ledger with GUID %s", guid)}
	}

	// Step 2: submit the alteration.
	envelope := alterAddressEnvelope(u.company, u.username, u.password, guid, ledger.Name, newAddress)
	body, status, err := u.client.post(ctx, envelope, importTimeout)
	if err != nil && body == "" {
		return UpdateResult{Err: fmt.Sprintf("alter request failed: %v", err)}
	}

	return interpretImportResponse(body, status)
}

// importResponseXML mirrors the counters Tally returns for an Import Data
// request. The counters live under BODY/DATA/IMPORTRESULT in recent
// releases; the decoder below finds them wherever they appear.
type importResponseXML struct {
	Created   int
	Altered   int
	Errors    int
	LineError string
}

// interpretImportResponse decides success or failure for an import exchange.
// Only an explicit positive indicator (CREATED or ALTERED count) inside a
// 2xx response is success; an error marker or a missing indicator fails.
func interpretImportResponse(body string, status int) UpdateResult {
	result := parseImportCounters(body)

	if result.Errors > 0 || result.LineError != "" {
		msg := "tally reported import errors"
		if result.LineError != "" {
			msg = result.LineError
		}
		return UpdateResult{Err: msg, RawResponse: truncate(body, rawFailureLimit)}
	}

	if status != http.StatusOK {
		return UpdateResult{
			Err:         fmt.Sprintf("HTTP %d", status),
			RawResponse: truncate(body, rawFailureLimit),
		}
	}

	if result.Created+result.Altered == 0 {
		// No counters at all: a rejection in free text, or an unexpected
		// document. Either way there is no positive confirmation.
		err := "tally did not confirm the update"
		lower := strings.ToLower(body)
		if strings.Contains(lower, "failed") || strings.Contains(lower, "unknown request") {
			err = "tally rejected the update"
		}
		return UpdateResult{Err: err, RawResponse: truncate(body, rawFailureLimit)}
	}

	return UpdateResult{Success: true, RawResponse: truncate(body, rawSuccessLimit)}
}

// parseImportCounters scans the response for CREATED/ALTERED/ERRORS
// counters and the first LINEERROR, wherever they appear in the document.
func parseImportCounters(body string) importResponseXML {
	var out importResponseXML

	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "CREATED":
			var n int
			if dec.DecodeElement(&n, &start) == nil {
				out.Created += n
			}
		case "ALTERED":
			var n int
			if dec.DecodeElement(&n, &start) == nil {
				out.Altered += n
			}
		case "ERRORS":
			var n int
			if dec.DecodeElement(&n, &start) == nil {
				out.Errors += n
			}
		case "LINEERROR":
			var s string
			if dec.DecodeElement(&s, &start) == nil && out.LineError == "" {
				out.LineError = strings.TrimSpace(s)
			}
		}
	}

	return out
}

// truncate clips s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
