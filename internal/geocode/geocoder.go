// Package geocode resolves record addresses to coordinates via the Google
// Geocoding API. Enrichment is strictly best-effort: a record whose address
// cannot be resolved keeps nil coordinates and the caller proceeds.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rajlabs/tallybridge/internal/record"
)

const (
	defaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	requestTimeout  = 10 * time.Second
	defaultWorkers  = 8
)

// Geocoder resolves addresses concurrently with a bounded worker pool.
type Geocoder struct {
	endpoint string
	apiKey   string
	workers  int
	http     *http.Client
	logger   *log.Logger
}

// New creates a geocoder using apiKey. A workers value <= 0 falls back to
// the default pool size.
func New(apiKey string, workers int, logger *log.Logger) *Geocoder {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[geocode] ", log.LstdFlags)
	}
	return &Geocoder{
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		workers:  workers,
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

// SetEndpoint overrides the API endpoint. Used by tests.
func (g *Geocoder) SetEndpoint(endpoint string) { g.endpoint = endpoint }

// geocodeResponse is the slice of the API response we care about.
type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Lookup resolves a single address. Returns ok=false when the API has no
// match; an error only for transport or decode failures.
func (g *Geocoder) Lookup(ctx context.Context, address string) (lat, lng float64, ok bool, err error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to build geocode request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, 0, false, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read geocode response: %w", err)
	}

	var decoded geocodeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, 0, false, fmt.Errorf("failed to decode geocode response: %w", err)
	}

	if decoded.Status != "OK" || len(decoded.Results) == 0 {
		return 0, 0, false, nil
	}

	loc := decoded.Results[0].Geometry.Location
	return loc.Lat, loc.Lng, true, nil
}

// Enrich fills Latitude/Longitude/LocationSource for records with a usable
// address, fanning lookups across the worker pool. Records that already
// carry coordinates are left alone. The input slice is mutated and returned.
func (g *Geocoder) Enrich(ctx context.Context, records []record.Record) []record.Record {
	jobs := make(chan int)
	var wg sync.WaitGroup

	var resolvedMu sync.Mutex
	resolved, failed := 0, 0

	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := &records[i]
				lat, lng, ok, err := g.Lookup(ctx, r.Address)

				resolvedMu.Lock()
				switch {
				case err != nil:
					failed++
					g.logger.Printf("Warning: geocode failed for %q: %v", r.Name, err)
				case !ok:
					failed++
				default:
					r.Latitude = &lat
					r.Longitude = &lng
					r.LocationSource = "geocoded"
					resolved++
				}
				resolvedMu.Unlock()
			}
		}()
	}

	for i := range records {
		if ctx.Err() != nil {
			break
		}
		r := &records[i]
		if r.Latitude != nil && r.Longitude != nil {
			continue
		}
		if strings.TrimSpace(r.Address) == "" {
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if resolved > 0 || failed > 0 {
		g.logger.Printf("Geocoded %d addresses (%d unresolved)", resolved, failed)
	}
	return records
}
