package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mops/backend/internal/domain/integration"
)

// maxResponseSize limits response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// credentialKeys are probed in order for the bearer token when the provider
// uses token auth. Providers with richer auth put the token under one of these.
var credentialKeys = []string{"api_key", "client_secret", "service_account_json", "password"}

// HTTPConnectorConfig holds the transport settings for one provider family
type HTTPConnectorConfig struct {
	// DefaultBaseURL is used when the integration config carries no BaseURL
	DefaultBaseURL string
	// TimeoutSeconds bounds every provider call
	TimeoutSeconds int
}

// Validate checks the connector configuration
func (c *HTTPConnectorConfig) Validate() error {
	if c.DefaultBaseURL == "" {
		return fmt.Errorf("connector: default base URL is required")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("connector: timeout must be positive")
	}
	return nil
}

// HTTPConnector implements the Connector port over a provider's REST API.
// One instance serves a whole family; per-integration parameters arrive
// with each call in the ConnectionConfig.
type HTTPConnector struct {
	config     HTTPConnectorConfig
	httpClient *http.Client
}

// NewHTTPConnector creates an HTTP connector with the given configuration
func NewHTTPConnector(config HTTPConnectorConfig) (*HTTPConnector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPConnector{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Test verifies the connection parameters against the provider.
// A 401/403 means the provider rejected the credentials: false with nil error.
func (c *HTTPConnector) Test(ctx context.Context, config integration.ConnectionConfig) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/ping", config, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	case resp.StatusCode >= 400:
		return false, classifyStatus(resp.StatusCode, "connection test failed")
	default:
		return true, nil
	}
}

// Introspect retrieves the remote object/table catalog
func (c *HTTPConnector) Introspect(ctx context.Context, config integration.ConnectionConfig) (*integration.SchemaSnapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/schema", config, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, "schema introspection failed")
	}

	var snapshot integration.SchemaSnapshot
	if err := decodeBody(resp.Body, &snapshot); err != nil {
		return nil, integration.NewSyncError(integration.ErrorKindSchema, "malformed schema response", err)
	}
	if snapshot.TakenAt.IsZero() {
		snapshot.TakenAt = time.Now()
	}
	return &snapshot, nil
}

// Execute runs one synchronization pass for the given mapping
func (c *HTTPConnector) Execute(ctx context.Context, config integration.ConnectionConfig, mapping integration.DataMapping) (*integration.SyncResult, error) {
	body, err := json.Marshal(mapping)
	if err != nil {
		return nil, integration.NewSyncError(integration.ErrorKindPermanent, "mapping not serializable", err)
	}

	started := time.Now()
	resp, err := c.do(ctx, http.MethodPost, "/v1/sync", config, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, "sync execution failed")
	}

	var result integration.SyncResult
	if err := decodeBody(resp.Body, &result); err != nil {
		return nil, integration.NewSyncError(integration.ErrorKindTransient, "malformed sync response", err)
	}
	if result.Duration == 0 {
		result.Duration = time.Since(started)
	}
	return &result, nil
}

// do issues one authenticated request. Transport failures come back as
// connection-kind sync errors so the caller can branch on retryability.
func (c *HTTPConnector) do(ctx context.Context, method, path string, config integration.ConnectionConfig, body io.Reader) (*http.Response, error) {
	base := config.BaseURL
	if base == "" {
		base = c.config.DefaultBaseURL
	}
	url := strings.TrimSuffix(base, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, integration.NewSyncError(integration.ErrorKindConfiguration, "invalid provider URL", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := bearerToken(config); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, integration.NewSyncError(integration.ErrorKindConnection, "provider unreachable", err)
	}
	return resp, nil
}

// bearerToken picks the credential used for token auth
func bearerToken(config integration.ConnectionConfig) string {
	for _, key := range credentialKeys {
		if v, ok := config.Credentials[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// classifyStatus maps an HTTP status to the sync error taxonomy
func classifyStatus(status int, message string) *integration.SyncError {
	detail := fmt.Errorf("provider returned status %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return integration.NewSyncError(integration.ErrorKindRateLimited, message, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return integration.NewSyncError(integration.ErrorKindConnection, message, detail)
	case status >= 500:
		return integration.NewSyncError(integration.ErrorKindTransient, message, detail)
	default:
		return integration.NewSyncError(integration.ErrorKindPermanent, message, detail)
	}
}

// decodeBody decodes a JSON body with the size cap applied
func decodeBody(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseSize))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Ensure HTTPConnector implements Connector
var _ integration.Connector = (*HTTPConnector)(nil)
