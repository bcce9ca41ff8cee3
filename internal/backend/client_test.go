package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", log.New(io.Discard, "", 0))
}

func TestUploadBatch(t *testing.T) {
	var gotToken, gotCompany string
	var gotBody map[string]json.RawMessage

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync/tally-clients" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotToken = r.Header.Get("x-middleware-token")
		gotCompany = r.Header.Get("x-company-id")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_, _ = w.Write([]byte(`{
			"summary": {"new": 3, "updated": 2, "failed": 1},
			"geocoding": {"geocodedDuringSync": 4}
		}`))
	})

	clients := []map[string]string{{"name": "Acme"}}
	summary, err := client.UploadBatch(context.Background(), "company-1", clients)
	if err != nil {
		t.Fatalf("UploadBatch failed: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("x-middleware-token = %q", gotToken)
	}
	if gotCompany != "company-1" {
		t.Errorf("x-company-id = %q", gotCompany)
	}
	if _, ok := gotBody["clients"]; !ok {
		t.Error("request body missing clients array")
	}
	var companyID string
	_ = json.Unmarshal(gotBody["companyId"], &companyID)
	if companyID != "company-1" {
		t.Errorf("companyId in body = %q", companyID)
	}

	if summary.New != 3 || summary.Updated != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Geocoded != 4 {
		t.Errorf("geocoding count not merged: %+v", summary)
	}
}

func TestUploadBatchUnauthorized(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.UploadBatch(context.Background(), "company-1", []string{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUploadBatchServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.UploadBatch(context.Background(), "company-1", []string{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d", statusErr.Status)
	}
	if statusErr.Body != "upstream down" {
		t.Errorf("Body = %q", statusErr.Body)
	}
}

func TestFetchPending(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tally-sync/pending-for-middleware" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("companyId") != "company-1" || q.Get("limit") != "25" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"items": [
			{"id": "u1", "client_name": "Acme", "operation": "update_address",
			 "tally_guid": "guid-1", "new_data": {"address": "5 New Lane"}}
		]}`))
	})

	items, err := client.FetchPending(context.Background(), "company-1", 25)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.ID != "u1" || item.Operation != "update_address" || item.TallyGUID != "guid-1" {
		t.Errorf("item = %+v", item)
	}
	if item.NewData["address"] != "5 New Lane" {
		t.Errorf("new_data = %v", item.NewData)
	}
}

func TestFetchPendingEmpty(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": []}`))
	})

	items, err := client.FetchPending(context.Background(), "company-1", 50)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestCompleteItem(t *testing.T) {
	var gotPath string
	var gotCompletion Completion

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotCompletion)
		_, _ = w.Write([]byte(`{}`))
	})

	msg := "tally rejected the update"
	err := client.CompleteItem(context.Background(), "item-1", Completion{
		Success: false,
		Error:   &msg,
	})
	if err != nil {
		t.Fatalf("CompleteItem failed: %v", err)
	}

	if gotPath != "/api/tally-sync/complete-from-middleware/item-1" {
		t.Errorf("unexpected completion path: %s", gotPath)
	}
	if gotCompletion.Success || gotCompletion.Error == nil || *gotCompletion.Error != msg {
		t.Errorf("completion = %+v", gotCompletion)
	}
}

func TestHealthy(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if !client.Healthy(context.Background()) {
		t.Error("Healthy = false against a 200 server")
	}
}

func TestHealthyDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "t", log.New(io.Discard, "", 0))
	if client.Healthy(context.Background()) {
		t.Error("Healthy = true against a closed server")
	}
}

func TestBatchSummaryAdd(t *testing.T) {
	var total BatchSummary
	total.Add(BatchSummary{New: 1, Updated: 2, Failed: 3, Geocoded: 4})
	total.Add(BatchSummary{New: 10, Updated: 20, Failed: 30, Geocoded: 40})

	if total.New != 11 || total.Updated != 22 || total.Failed != 33 || total.Geocoded != 44 {
		t.Errorf("total = %+v", total)
	}
	if total.Total() != 66 {
		t.Errorf("Total() = %d, want 66", total.Total())
	}
}
