package geocode

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rajlabs/tallybridge/internal/record"
)

func testGeocoder(t *testing.T, handler http.HandlerFunc) *Geocoder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := New("test-key", 2, log.New(io.Discard, "", 0))
	g.SetEndpoint(srv.URL)
	return g
}

func okResponse(lat, lng float64) string {
	return fmt.Sprintf(`{
		"status": "OK",
		"results": [{"geometry": {"location": {"lat": %f, "lng": %f}}}]
	}`, lat, lng)
}

func TestLookup(t *testing.T) {
	g := testGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not sent: %v", r.URL.Query())
		}
		if r.URL.Query().Get("address") == "" {
			t.Error("address param missing")
		}
		_, _ = w.Write([]byte(okResponse(18.52, 73.85)))
	})

	lat, lng, ok, err := g.Lookup(context.Background(), "12 Market Road, Pune")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !ok {
		t.Fatal("Lookup found no match")
	}
	if lat != 18.52 || lng != 73.85 {
		t.Errorf("coords = %v, %v", lat, lng)
	}
}

func TestLookupZeroResults(t *testing.T) {
	g := testGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	})

	_, _, ok, err := g.Lookup(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("Lookup errored on ZERO_RESULTS: %v", err)
	}
	if ok {
		t.Error("ZERO_RESULTS reported as a match")
	}
}

func TestEnrich(t *testing.T) {
	var calls atomic.Int32
	g := testGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(okResponse(18.52, 73.85)))
	})

	records := []record.Record{
		{Name: "A", Address: "12 Market Road"},
		{Name: "B", Address: ""}, // skipped: no address
		{Name: "C", Address: "99 Estate"},
	}

	got := g.Enrich(context.Background(), records)

	if got[0].Latitude == nil || *got[0].Latitude != 18.52 {
		t.Errorf("record A not enriched: %+v", got[0])
	}
	if got[0].LocationSource != "geocoded" {
		t.Errorf("LocationSource = %q", got[0].LocationSource)
	}
	if got[1].Latitude != nil {
		t.Error("record without address was geocoded")
	}
	if got[2].Latitude == nil {
		t.Error("record C not enriched")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("made %d API calls, want 2", n)
	}
}

func TestEnrichSkipsAlreadyLocated(t *testing.T) {
	var calls atomic.Int32
	g := testGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(okResponse(1, 1)))
	})

	lat, lng := 18.52, 73.85
	records := []record.Record{
		{Name: "A", Address: "x", Latitude: &lat, Longitude: &lng},
	}

	got := g.Enrich(context.Background(), records)
	if calls.Load() != 0 {
		t.Error("already-located record was re-geocoded")
	}
	if *got[0].Latitude != 18.52 {
		t.Error("existing coordinates overwritten")
	}
}

func TestEnrichFailuresDoNotAbort(t *testing.T) {
	g := testGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	records := []record.Record{
		{Name: "A", Address: "x"},
		{Name: "B", Address: "y"},
	}

	// Enrich must return the full slice with records un-enriched.
	got := g.Enrich(context.Background(), records)
	if len(got) != 2 {
		t.Fatalf("Enrich returned %d records, want 2", len(got))
	}
	for _, r := range got {
		if r.Latitude != nil {
			t.Errorf("record %s got coordinates from a failing API", r.Name)
		}
	}
}
