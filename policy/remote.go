package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEngineUnavailable is an exported constant or variable used by the tunnel gateway.
var ErrEngineUnavailable = errors.New("policy engine unavailable")

// DefaultEngineTimeout is an exported constant or variable used by the tunnel gateway.
const DefaultEngineTimeout = 3 * time.Second

// EngineClient defines a public type used by ztgate APIs.
//
// EngineClient instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EngineClient struct {
	baseURL    string
	policyPath string
	timeout    time.Duration
	httpClient *http.Client
}

// NewEngineClient creates a client for an OPA-style policy engine. policyPath
// is the slash-separated document path under /v1/data.
func NewEngineClient(baseURL, policyPath string, timeout time.Duration) (*EngineClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("policy engine base URL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("bad policy engine URL: %w", err)
	}
	policyPath = strings.Trim(strings.TrimSpace(policyPath), "/")
	if policyPath == "" {
		return nil, errors.New("policy path required")
	}
	if timeout <= 0 {
		timeout = DefaultEngineTimeout
	}
	return &EngineClient{
		baseURL:    baseURL,
		policyPath: policyPath,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Evaluate posts input to the engine and returns the decision document.
// Every failure mode (transport, status, decode, missing result) maps to
// [ErrEngineUnavailable] so callers can treat the engine as absent.
func (c *EngineClient) Evaluate(ctx context.Context, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("%w: encode input: %v", ErrEngineUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/data/"+c.policyPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrEngineUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var decoded struct {
		Result map[string]any `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEngineUnavailable, err)
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("%w: decision missing result", ErrEngineUnavailable)
	}
	return decoded.Result, nil
}
