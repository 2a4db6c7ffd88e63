package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotFound is returned when the Source knows no record for the identifier.
var ErrNotFound = errors.New("source: not found")

// Client reads appointment and patient data from the scheduling system.
type Client interface {
	// SearchAppointments returns the appointments matching the query.
	SearchAppointments(ctx context.Context, q SearchQuery) ([]Appointment, error)

	// GetPatient looks a patient up by the strong code.
	// Returns ErrNotFound when the Source does not know the code.
	GetPatient(ctx context.Context, code string) (*Patient, error)
}

// NewClient creates a Source API client from the configuration.
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
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		retries: retries,
		http: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

type httpClient struct {
	baseURL string
	token   string
	retries int
	http    *http.Client
}

func (c *httpClient) SearchAppointments(ctx context.Context, q SearchQuery) ([]Appointment, error) {
	day := q.Date.Format("2006-01-02")
	params := url.Values{}
	params.Set("from_date", day)
	params.Set("to_date", day)
	params.Set("appointment_type_id", strconv.Itoa(q.TypeID))
	if q.Status != "" {
		params.Set("status", q.Status)
	}

	var payload struct {
		Data []Appointment `json:"data"`
	}
	if err := c.get(ctx, "/appointment_search/?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

func (c *httpClient) GetPatient(ctx context.Context, code string) (*Patient, error) {
	var payload struct {
		Data []Patient `json:"data"`
	}
	params := url.Values{}
	params.Set("patient_code", code)
	if err := c.get(ctx, "/patient_search/?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, ErrNotFound
	}
	return &payload.Data[0], nil
}

// get performs a GET with a bounded number of connection attempts. Only
// transport failures are retried.
func (c *httpClient) get(ctx context.Context, path string, out any) error {
	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("source: build request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, lastErr = c.http.Do(req)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("source: %w", ctx.Err())
		}
	}
	if lastErr != nil {
		return fmt.Errorf("source: unreachable after %d attempts: %w", c.retries, lastErr)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("source: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source: status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("source: decode response: %w", err)
	}
	return nil
}
