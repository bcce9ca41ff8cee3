// Package backend implements the REST client for the cloud backend: batch
// client uploads, the pending-update queue and completion reporting.
//
// All authenticated calls carry the shared middleware token in the
// x-middleware-token header; the upload call additionally repeats the
// company id as both a payload field and the x-company-id header, because
// the backend accepts either.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized indicates the backend rejected the middleware token.
// Retrying without operator intervention is pointless.
var ErrUnauthorized = errors.New("backend: invalid middleware token")

// Timeouts per call class: control calls fail fast, uploads of a full batch
// can take a while on slow links.
const (
	healthTimeout   = 5 * time.Second
	queueTimeout    = 10 * time.Second
	uploadTimeout   = 60 * time.Second
	completeTimeout = 10 * time.Second
)

// BatchSummary aggregates the backend's per-batch upsert breakdown.
type BatchSummary struct {
	New      int `json:"new"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
	Geocoded int `json:"geocodedDuringSync"`
}

// Add merges another summary into s.
func (s *BatchSummary) Add(other BatchSummary) {
	s.New += other.New
	s.Updated += other.Updated
	s.Failed += other.Failed
	s.Geocoded += other.Geocoded
}

// Total returns the number of records the summary accounts for.
func (s BatchSummary) Total() int {
	return s.New + s.Updated + s.Failed
}

// PendingItem is one queued edit awaiting replay into Tally.
type PendingItem struct {
	ID         string            `json:"id"`
	ClientName string            `json:"client_name"`
	Operation  string            `json:"operation"`
	TallyGUID  string            `json:"tally_guid"`
	NewData    map[string]string `json:"new_data"`
}

// Completion is the per-item report sent back after a replay attempt.
type Completion struct {
	Success       bool    `json:"success"`
	Error         *string `json:"error"`
	TallyResponse *string `json:"tallyResponse"`
}

// Client talks to one backend instance with one middleware token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a backend client.
// If logger is nil, a default stderr logger is used.
func NewClient(baseURL, token string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[backend] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		logger:  logger,
	}
}

// Healthy reports whether the backend answers its root endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// uploadRequest is the batch upload payload. The company id rides along in
// the body as well as the x-company-id header.
type uploadRequest struct {
	Clients   json.RawMessage `json:"clients"`
	CompanyID string          `json:"companyId"`
}

// uploadResponse is the backend's answer to one batch.
type uploadResponse struct {
	Summary   BatchSummary `json:"summary"`
	Geocoding struct {
		GeocodedDuringSync int `json:"geocodedDuringSync"`
	} `json:"geocoding"`
}

// UploadBatch sends one batch of client payloads and returns the backend's
// summary for it. clients must marshal to a JSON array.
func (c *Client) UploadBatch(ctx context.Context, companyID string, clients any) (BatchSummary, error) {
	body, err := json.Marshal(clients)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to marshal batch: %w", err)
	}
	payload, err := json.Marshal(uploadRequest{Clients: body, CompanyID: companyID})
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to marshal upload request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sync/tally-clients", bytes.NewReader(payload))
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-middleware-token", c.token)
	req.Header.Set("x-company-id", companyID)

	resp, err := c.http.Do(req)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to read upload response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return BatchSummary{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return BatchSummary{}, &StatusError{
			Status: resp.StatusCode,
			Body:   truncateBody(respBody),
		}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return BatchSummary{}, fmt.Errorf("malformed upload response: %w", err)
	}

	summary := parsed.Summary
	summary.Geocoded += parsed.Geocoding.GeocodedDuringSync
	return summary, nil
}

// pendingResponse wraps the queue fetch answer.
type pendingResponse struct {
	Items []PendingItem `json:"items"`
}

// FetchPending returns up to limit queued edits for the company.
func (c *Client) FetchPending(ctx context.Context, companyID string, limit int) ([]PendingItem, error) {
	ctx, cancel := context.WithTimeout(ctx, queueTimeout)
	defer cancel()

	endpoint := c.baseURL + "/api/tally-sync/pending-for-middleware?" + url.Values{
		"companyId": {companyID},
		"limit":     {strconv.Itoa(limit)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pending request: %w", err)
	}
	req.Header.Set("x-middleware-token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pending request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Status: resp.StatusCode, Body: truncateBody(body)}
	}

	var parsed pendingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed pending response: %w", err)
	}
	return parsed.Items, nil
}

// CompleteItem reports the outcome of one replayed edit so the backend can
// dequeue or retry it. Callers treat failures as best-effort: log, don't
// retry, never abort the tick.
func (c *Client) CompleteItem(ctx context.Context, itemID string, completion Completion) error {
	payload, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("failed to marshal completion: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, completeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/tally-sync/complete-from-middleware/"+url.PathEscape(itemID),
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-middleware-token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Status: resp.StatusCode, Body: truncateBody(body)}
	}
	return nil
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// truncateBody clips response bodies used in error messages.
func truncateBody(b []byte) string {
	const limit = 500
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
