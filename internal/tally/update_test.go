package tally

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInterpretImportResponse(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		status      int
		wantSuccess bool
		wantErrPart string
	}{
		{
			name:        "altered",
			body:        "<RESPONSE><CREATED>0</CREATED><ALTERED>1</ALTERED><ERRORS>0</ERRORS></RESPONSE>",
			status:      200,
			wantSuccess: true,
		},
		{
			name:        "created counts too",
			body:        "<RESPONSE><CREATED>1</CREATED><ALTERED>0</ALTERED><ERRORS>0</ERRORS></RESPONSE>",
			status:      200,
			wantSuccess: true,
		},
		{
			name:        "errors counter",
			body:        "<RESPONSE><CREATED>0</CREATED><ALTERED>0</ALTERED><ERRORS>1</ERRORS></RESPONSE>",
			status:      200,
			wantErrPart: "import errors",
		},
		{
			name:        "line error preferred",
			body:        "<RESPONSE><ERRORS>1</ERRORS><LINEERROR>Ledger does not exist</LINEERROR></RESPONSE>",
			status:      200,
			wantErrPart: "Ledger does not exist",
		},
		{
			name:        "no confirmation",
			body:        "<RESPONSE><CREATED>0</CREATED><ALTERED>0</ALTERED><ERRORS>0</ERRORS></RESPONSE>",
			status:      200,
			wantErrPart: "did not confirm",
		},
		{
			name:        "free text rejection",
			body:        "Unknown Request, cannot be processed",
			status:      200,
			wantErrPart: "rejected",
		},
		{
			name:        "non-200 even with counters",
			body:        "<RESPONSE><ALTERED>1</ALTERED></RESPONSE>",
			status:      500,
			wantErrPart: "HTTP 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interpretImportResponse(tt.body, tt.status)
			if got.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (err=%q)", got.Success, tt.wantSuccess, got.Err)
			}
			if tt.wantErrPart != "" && !strings.Contains(got.Err, tt.wantErrPart) {
				t.Errorf("Err = %q, want substring %q", got.Err, tt.wantErrPart)
			}
			if !tt.wantSuccess && got.Err == "" {
				t.Error("failure result carries no error text")
			}
		})
	}
}

func TestInterpretImportResponseZeroErrorsCounterIsNotFailure(t *testing.T) {
	// Every import response carries an ERRORS element; a zero count must not
	// be mistaken for a rejection.
	got := interpretImportResponse(
		"<RESPONSE><CREATED>0</CREATED><ALTERED>2</ALTERED><ERRORS>0</ERRORS></RESPONSE>", 200)
	if !got.Success {
		t.Errorf("zero ERRORS counter treated as failure: %q", got.Err)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 1000)
	if got := truncate(long, 300); len(got) != 300 {
		t.Errorf("truncate length = %d, want 300", len(got))
	}
	if got := truncate("short", 300); got != "short" {
		t.Errorf("truncate modified a short string: %q", got)
	}
}

// tallyStub answers the fetch-by-GUID probe and the subsequent alter import
// with canned bodies, capturing what the updater sends.
func tallyStub(t *testing.T, fetchBody, alterBody string, alterStatus int) (*httptest.Server, *[]string) {
	t.Helper()

	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, string(body))

		if strings.Contains(string(body), "Import Data") {
			w.WriteHeader(alterStatus)
			_, _ = w.Write([]byte(alterBody))
			return
		}
		_, _ = w.Write([]byte(fetchBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

const singleLedgerXML = `<ENVELOPE><BODY><DATA><COLLECTION>
<LEDGER NAME="Acme Traders"><GUID>guid-1</GUID><PARENT>Sundry Debtors</PARENT></LEDGER>
</COLLECTION></DATA></BODY></ENVELOPE>`

func TestReplaceAddressSuccess(t *testing.T) {
	srv, requests := tallyStub(t, singleLedgerXML,
		"<RESPONSE><CREATED>0</CREATED><ALTERED>1</ALTERED><ERRORS>0</ERRORS></RESPONSE>", 200)

	client := NewClient(srv.URL, log.New(io.Discard, "", 0))
	updater := NewUpdater(client, "Raj Traders", "", "")

	result := updater.ReplaceAddress(context.Background(), "guid-1", "5 New Lane, Pune 411002")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Err)
	}
	if result.RawResponse == "" {
		t.Error("success result should carry the raw response")
	}

	if len(*requests) != 2 {
		t.Fatalf("expected fetch + alter, got %d requests", len(*requests))
	}
	alter := (*requests)[1]
	if !strings.Contains(alter, `LEDGER NAME="Acme Traders" ACTION="Alter"`) {
		t.Errorf("alter envelope missing exact fetched name:\n%s", alter)
	}
	if !strings.Contains(alter, "<ADDRESS>5 New Lane</ADDRESS><ADDRESS>Pune 411002</ADDRESS>") {
		t.Errorf("address not split on commas:\n%s", alter)
	}
}

func TestReplaceAddressMissingLedger(t *testing.T) {
	srv, requests := tallyStub(t,
		"<ENVELOPE><BODY><DATA><COLLECTION></COLLECTION></DATA></BODY></ENVELOPE>",
		"", 200)

	client := NewClient(srv.URL, log.New(io.Discard, "", 0))
	updater := NewUpdater(client, "Raj Traders", "", "")

	result := updater.ReplaceAddress(context.Background(), "missing-guid", "5 New Lane")
	if result.Success {
		t.Fatal("expected failure for unknown GUID")
	}
	if !strings.Contains(result.Err, "missing-guid") {
		t.Errorf("error does not name the GUID: %q", result.Err)
	}
	// No alter must be attempted when the fetch finds nothing.
	if len(*requests) != 1 {
		t.Errorf("expected only the fetch request, got %d", len(*requests))
	}
}

func TestReplaceAddressUnreachableTally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // reject all connections

	client := NewClient(srv.URL, log.New(io.Discard, "", 0))
	updater := NewUpdater(client, "Raj Traders", "", "")

	result := updater.ReplaceAddress(context.Background(), "guid-1", "5 New Lane")
	if result.Success {
		t.Fatal("expected failure when Tally is unreachable")
	}
	if result.Err == "" {
		t.Error("unreachable Tally must still produce a result with an error")
	}
}

func TestReplaceAddressRejectedImport(t *testing.T) {
	srv, _ := tallyStub(t, singleLedgerXML,
		"<RESPONSE><ERRORS>1</ERRORS><LINEERROR>Invalid address</LINEERROR></RESPONSE>", 200)

	client := NewClient(srv.URL, log.New(io.Discard, "", 0))
	updater := NewUpdater(client, "Raj Traders", "", "")

	result := updater.ReplaceAddress(context.Background(), "guid-1", "5 New Lane")
	if result.Success {
		t.Fatal("expected failure for rejected import")
	}
	if !strings.Contains(result.Err, "Invalid address") {
		t.Errorf("line error not surfaced: %q", result.Err)
	}
}
