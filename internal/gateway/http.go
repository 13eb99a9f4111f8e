package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds each gateway call. A timeout is treated identically
// to a declined response by billing: failure, move to the next instrument.
const DefaultTimeout = 15 * time.Second

// HTTPClient implements Client against the gateway's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a gateway client with a bounded per-call timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Charge executes a one-time charge against a stored instrument.
func (c *HTTPClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	return c.postCharge(ctx, "/v1/charges", req)
}

// CreateRecurringPayment executes a subscription renewal charge.
func (c *HTTPClient) CreateRecurringPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	return c.postCharge(ctx, "/v1/recurring-payments", req)
}

// SubmitApplication submits a merchant application for underwriting.
func (c *HTTPClient) SubmitApplication(ctx context.Context, externalApplicationID string) error {
	url := c.baseURL + "/v1/applications/" + externalApplicationID + "/submit"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build submit request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("gateway submit call failed", "application_id", externalApplicationID, "error", err)
		return ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway rejected submission: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) postCharge(ctx context.Context, path string, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and timeouts collapse into ErrGatewayUnavailable;
		// the orchestrator does not distinguish them from declines.
		c.logger.Warn("gateway charge call failed", "path", path, "error", err)
		return nil, ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	return &result, nil
}
