package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "conti/internal/sheets"
)

const postedAtLayout = "2006-01-02 15:04:05"

// Ensure interface conformance
var _ ports.Report = (*Client)(nil)

// Config selects the spreadsheet and credentials for the report client.
type Config struct {
	SpreadsheetID string
	// SheetName is the base tab name; the target year is prefixed to it.
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	RetryMax        int
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// New creates a Sheets client authenticated with a service account.
// Requests go through a retrying transport so transient 429/5xx answers
// from the API do not fail a report row.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetBase := strings.TrimSpace(cfg.SheetName)
	if sheetBase == "" {
		sheetBase = "Carryforward"
	}

	credentialsJSON, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpClient, err := newHTTPClient(ctx, credentialsJSON, cfg.RetryMax)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully",
		"spreadsheet_id", spreadsheetID,
		"sheet_base", sheetBase,
		"retry_max", cfg.RetryMax)

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}, nil
}

// NewWithService wraps an existing service, for tests against a fake API.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}
}

func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClient layers oauth2 on top of a retryablehttp transport. Token
// refreshes use the same retrying client.
func newHTTPClient(ctx context.Context, credentialsJSON []byte, retryMax int) (*http.Client, error) {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = newHTTPClientWithPooling()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = slog.Default().With("component", "sheets")

	// The token source outlives the constructor's context
	authCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, rc.StandardClient())

	creds, err := googleauth.CredentialsFromJSON(authCtx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return oauth2.NewClient(authCtx, creds.TokenSource), nil
}

// newHTTPClientWithPooling creates the base HTTP client for the Sheets API
// with connection pooling and timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// AppendCarryforward appends the row to the report tab of the target
// month's year and returns the updated A1 range.
func (c *Client) AppendCarryforward(ctx context.Context, row ports.CarryforwardRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.IdempotencyKey == "" {
		return "", fmt.Errorf("report row for %s has no idempotency key", row.SourceMonth)
	}

	sheet := c.sheetName(row.TargetMonth.Year)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(row)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1Range(sheet, "A:F"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// HasCarryforward scans the idempotency key column of the report tab.
func (c *Client) HasCarryforward(ctx context.Context, row ports.CarryforwardRow) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}
	sheet := c.sheetName(row.TargetMonth.Year)
	rng := a1Range(sheet, "F:F")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	return containsKey(resp.Values, row.IdempotencyKey), nil
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// rowValues lays a row out as posted_at, source, target, amount, notes, key.
func rowValues(row ports.CarryforwardRow) []any {
	return []any{
		row.PostedAt.UTC().Format(postedAtLayout),
		row.SourceMonth.String(),
		row.TargetMonth.String(),
		row.Amount.String(),
		row.Notes,
		row.IdempotencyKey,
	}
}

func containsKey(values [][]any, key string) bool {
	for _, r := range values {
		if len(r) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(r[0])) == key {
			return true
		}
	}
	return false
}

// a1Range quotes the sheet name, which may contain spaces.
func a1Range(sheet, cols string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cols)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
