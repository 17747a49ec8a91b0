/**
 * @description
 * This package provides a client for the simulator's HTTP API. simctl uses it to
 * trigger bank outages and system issues, override partner bank status and read
 * the bank directory of a running simulator.
 */
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

// APIError is returned for any response with a 4xx or 5xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("simulator returned error status %d", e.StatusCode)
	}
	return fmt.Sprintf("simulator returned error status %d: %s", e.StatusCode, e.Message)
}

// Client is a client for the simulator API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new simulator client. token is sent as a bearer token on every request.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type outageRequest struct {
	BankID     string `json:"bank_id"`
	DurationMS int64  `json:"duration_ms"`
}

type systemIssueRequest struct {
	DurationMS int64 `json:"duration_ms"`
}

type bankStatusRequest struct {
	Status domain.PartnerBankStatus `json:"status"`
}

// TriggerOutage forces bankID DOWN for d.
func (c *Client) TriggerOutage(ctx context.Context, bankID string, d time.Duration) error {
	return c.do(ctx, http.MethodPost, "/ops/outages", outageRequest{BankID: bankID, DurationMS: d.Milliseconds()}, nil)
}

// TriggerSystemIssue raises the failure rate for d.
func (c *Client) TriggerSystemIssue(ctx context.Context, d time.Duration) error {
	return c.do(ctx, http.MethodPost, "/ops/system-issues", systemIssueRequest{DurationMS: d.Milliseconds()}, nil)
}

func (c *Client) SetBankStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error) {
	var bank domain.PartnerBank
	if err := c.do(ctx, http.MethodPut, "/ops/banks/"+bankID+"/status", bankStatusRequest{Status: status}, &bank); err != nil {
		return nil, err
	}
	return &bank, nil
}

func (c *Client) ListBanks(ctx context.Context) ([]domain.PartnerBank, error) {
	var banks []domain.PartnerBank
	if err := c.do(ctx, http.MethodGet, "/banks", nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("simulator base url is empty")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to simulator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
