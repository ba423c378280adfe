package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/config"
)

const (
	apiClientTimeout = 30 * time.Second
	apiKeyEnv        = envPrefix + "_API_KEY"
	apiKeyFileEnv    = envPrefix + "_API_KEY_FILE"
)

// APIClient talks to the HTTP API of a running node.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// apiErrorBody mirrors the server's error response.
type apiErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// APIError represents an API error response.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("API error (status %d, request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// NewAPIClient creates a client for server, or for the configured API
// address when server is empty.
func NewAPIClient(cfg *config.Config, server string) *APIClient {
	if server == "" {
		server = "http://" + cfg.API.Address()
	}
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}

	apiKey := getAPIKeyFromSources()
	if apiKey == "" && len(cfg.API.APIKeys) > 0 {
		apiKey = cfg.API.APIKeys[0]
	}

	return &APIClient{
		baseURL:    strings.TrimRight(server, "/") + "/api/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: apiClientTimeout},
		userAgent:  "reconnode-cli/" + version,
	}
}

// getAPIKeyFromSources reads the key from the environment or a key file.
func getAPIKeyFromSources() string {
	if key := os.Getenv(apiKeyEnv); key != "" {
		return key
	}
	if keyFile := os.Getenv(apiKeyFileEnv); keyFile != "" && !strings.Contains(keyFile, "..") {
		// #nosec G304 - operator-supplied key file
		if data, err := os.ReadFile(keyFile); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// Get performs a GET request and decodes the JSON body into out.
func (c *APIClient) Get(ctx context.Context, endpoint string, out interface{}) error {
	return c.request(ctx, http.MethodGet, endpoint, out)
}

// Post performs a body-less POST request and decodes the JSON body into out.
func (c *APIClient) Post(ctx context.Context, endpoint string, out interface{}) error {
	return c.request(ctx, http.MethodPost, endpoint, out)
}

func (c *APIClient) request(ctx context.Context, method, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb apiErrorBody
		if json.Unmarshal(body, &eb) == nil {
			if eb.Message != "" {
				apiErr.Message = eb.Message
			}
			apiErr.RequestID = eb.RequestID
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// describeAPIError adds a hint for the common failures.
func describeAPIError(err error, operation string) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		return fmt.Errorf("%s failed: %w", operation, err)
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: authentication failed, set %s: %w", operation, apiKeyEnv, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: rate limit exceeded, try again shortly: %w", operation, err)
	default:
		return fmt.Errorf("%s failed: %w", operation, err)
	}
}
