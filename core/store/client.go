package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned by lookup helpers when no row matches.
var ErrNotFound = errors.New("store: not found")

// Client defines the operations the reconciliation engine needs from the
// clinical database. All statements travel through the HTTP SQL proxy as
// parameterized queries; values are never interpolated into SQL text.
type Client interface {
	// ExecuteSQL runs one parameterized statement and returns the proxy result.
	ExecuteSQL(ctx context.Context, query string, params map[string]any) (*QueryResult, error)

	// Upsert inserts or updates a row; insert is implied when the search
	// fields match nothing.
	Upsert(ctx context.Context, req UpsertRequest) (*UpsertResult, error)

	// QueryExaminationsByDate returns every examination row recorded for the date.
	QueryExaminationsByDate(ctx context.Context, date time.Time) ([]Examination, error)

	// QueryPatientByCode finds a patient by the strong identifier.
	// Returns ErrNotFound when absent.
	QueryPatientByCode(ctx context.Context, code string) (*Patient, error)

	// QueryPatientByName finds a patient by surname, given name and birth date.
	// Returns ErrNotFound when absent.
	QueryPatientByName(ctx context.Context, surname, givenName, birthDate string) (*Patient, error)

	// MaxPatientCode returns the highest numeric patient code in the registry.
	MaxPatientCode(ctx context.Context) (int, error)

	// InsertPatient provisions a new patient row.
	InsertPatient(ctx context.Context, p NewPatient) error

	// LoadExaminationTypes returns the examination-type metadata rows that
	// declare external Source codes.
	LoadExaminationTypes(ctx context.Context) ([]ExaminationType, error)

	// InsertExamination creates a new examination row with the fixed
	// administrative defaults.
	InsertExamination(ctx context.Context, e Examination) error

	// UpdateExamination updates the mutable fields (time, notes) of an
	// existing row, keyed on its own identifier.
	UpdateExamination(ctx context.Context, id int, time, notes string) error

	// DeleteExamination removes one examination row by identifier.
	DeleteExamination(ctx context.Context, id int) error
}

// NewClient creates a proxy client from the configuration.
func NewClient(cfg Config) Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	return &httpClient{
		baseURL:  cfg.BaseURL,
		database: cfg.Database,
		retries:  retries,
		http: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

type httpClient struct {
	baseURL  string
	database string
	retries  int
	http     *http.Client
}

func (c *httpClient) ExecuteSQL(ctx context.Context, query string, params map[string]any) (*QueryResult, error) {
	payload := map[string]any{
		"sql":      query,
		"database": c.database,
	}
	if len(params) > 0 {
		payload["params"] = params
	}

	var result QueryResult
	if err := c.post(ctx, "/tools/execute_sql", payload, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("store: statement rejected: %s", result.Error)
	}
	return &result, nil
}

func (c *httpClient) Upsert(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	if req.Database == "" {
		req.Database = c.database
	}

	var result UpsertResult
	if err := c.post(ctx, "/upsert_data", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("store: upsert rejected: %s", result.Error)
	}
	return &result, nil
}

// post sends a JSON payload with a bounded number of connection attempts.
// Only transport failures are retried; a response from the proxy, whatever
// its status, ends the loop.
func (c *httpClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: encode payload: %w", err)
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("store: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, lastErr = c.http.Do(req)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("store: %w", ctx.Err())
		}
	}
	if lastErr != nil {
		return fmt.Errorf("store: proxy unreachable after %d attempts: %w", c.retries, lastErr)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("store: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("store: proxy returned status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("store: decode response: %w", err)
	}
	return nil
}
