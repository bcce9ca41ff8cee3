// Package tally implements the XML-over-HTTP client for a locally running
// Tally instance, plus the fetch-then-alter update protocol used to replay
// backend edits into Tally.
//
// Tally exposes a single HTTP endpoint (usually http://localhost:9000) that
// accepts request envelopes and returns XML documents. Responses are not
// always well-formed: they can contain raw control characters and, for
// secured companies, free-text authentication errors instead of data. The
// client sanitizes responses before parsing and converts the auth texts
// into ErrAuth so callers can prompt for credentials instead of retrying
// forever.
package tally

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rajlabs/tallybridge/internal/record"
)

// ErrAuth indicates Tally rejected the request because the company is
// secured and the supplied credentials were missing or wrong. Callers must
// treat this differently from connectivity errors: prompting the operator,
// not silently retrying.
var ErrAuth = errors.New("tally: authentication rejected")

// authMarkers are the phrases Tally embeds in responses when a secured
// company rejects a request. Matched case-insensitively.
var authMarkers = []string{
	"security", "authentication", "password", "login", "unauthorised", "unauthorized",
}

// Timeouts per call class. Control calls (probe, company list) must fail
// fast; a full ledger dump on a large company can legitimately take minutes.
const (
	controlTimeout = 5 * time.Second
	listTimeout    = 30 * time.Second
	dumpTimeout    = 180 * time.Second
	importTimeout  = 30 * time.Second
)

// Client talks to one Tally endpoint.
type Client struct {
	url    string
	http   *http.Client
	logger *log.Logger
}

// NewClient creates a client for the given Tally URL.
// If logger is nil, a default stderr logger is used.
func NewClient(url string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[tally] ", log.LstdFlags)
	}
	return &Client{
		url:    strings.TrimRight(url, "/"),
		http:   &http.Client{},
		logger: logger,
	}
}

// post sends an envelope and returns the sanitized response body.
// A non-200 status is an error; the body is still returned for diagnostics.
func (c *Client) post(ctx context.Context, envelope string, timeout time.Duration) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader([]byte(envelope)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("tally request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read tally response: %w", err)
	}

	text := sanitizeXML(string(body))
	if resp.StatusCode != http.StatusOK {
		return text, resp.StatusCode, fmt.Errorf("tally returned status %d", resp.StatusCode)
	}
	return text, resp.StatusCode, nil
}

// TestConnection checks that Tally is reachable and answering.
func (c *Client) TestConnection(ctx context.Context) error {
	if _, _, err := c.post(ctx, versionEnvelope(), controlTimeout); err != nil {
		return err
	}
	return nil
}

// Companies returns the names of all companies currently open in Tally.
func (c *Client) Companies(ctx context.Context) ([]string, error) {
	body, _, err := c.post(ctx, companiesEnvelope(), listTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch companies: %w", err)
	}
	return parseCompanies(body)
}

// Groups returns the sorted ledger group names for a company.
func (c *Client) Groups(ctx context.Context, company, username, password string) ([]string, error) {
	body, _, err := c.post(ctx, groupsEnvelope(company, username, password), listTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}
	if isAuthError(body) {
		return nil, ErrAuth
	}
	return parseGroups(body)
}

// CompanySecured reports whether a company requires credentials: a secured
// company answers the anonymous probe with an auth rejection instead of data.
func (c *Client) CompanySecured(ctx context.Context, company string) (bool, error) {
	body, _, err := c.post(ctx, securityCheckEnvelope(company), listTimeout)
	if err != nil && body == "" {
		return false, err
	}
	return isAuthError(body), nil
}

// FetchLedgers fetches and parses every ledger master for a company.
// Returns ErrAuth when the company is secured and the credentials are
// missing or rejected.
func (c *Client) FetchLedgers(ctx context.Context, company, username, password string) ([]record.Record, error) {
	body, _, err := c.post(ctx, ledgerDumpEnvelope(company, username, password), dumpTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledgers: %w", err)
	}
	if isAuthError(body) {
		return nil, ErrAuth
	}

	ledgers, err := parseLedgers(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger dump: %w", err)
	}
	c.logger.Printf("Fetched %d ledgers for company %q", len(ledgers), company)
	return ledgers, nil
}

// FetchLedgerByGUID fetches one ledger by its GUID.
// Returns (nil, nil) when the GUID does not resolve to any ledger.
func (c *Client) FetchLedgerByGUID(ctx context.Context, company, username, password, guid string) (*record.Record, error) {
	body, _, err := c.post(ctx, ledgerByGUIDEnvelope(company, username, password, guid), listTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger %s: %w", guid, err)
	}
	if isAuthError(body) {
		return nil, ErrAuth
	}

	ledgers, err := parseLedgers(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger response: %w", err)
	}
	if len(ledgers) == 0 {
		return nil, nil
	}
	return &ledgers[0], nil
}

// isAuthError reports whether a Tally response body is an authentication
// rejection rather than data. Tally returns these as 200s with free text.
func isAuthError(body string) bool {
	lower := strings.ToLower(body)
	// Data responses contain ledger/company elements; auth rejections don't.
	if strings.Contains(lower, "<ledger") || strings.Contains(lower, "<company") || strings.Contains(lower, "<group") {
		return false
	}
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
