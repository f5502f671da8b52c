package crs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRegistryURL is the public EPSG registry serving proj4 definitions.
const DefaultRegistryURL = "https://epsg.io"

// RegistryClient fetches proj4 definitions from an EPSG-style registry that
// serves them at {base}/{code}.proj4.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient builds a client from the CRS_REGISTRY_URL env var,
// falling back to the public registry.
func NewRegistryClient() *RegistryClient {
	base := strings.TrimRight(os.Getenv("CRS_REGISTRY_URL"), "/")
	if base == "" {
		base = DefaultRegistryURL
	}
	return &RegistryClient{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// FetchDefinition retrieves the proj4 definition for a numeric EPSG code,
// retrying transient failures with exponential backoff.
func (c *RegistryClient) FetchDefinition(ctx context.Context, code int) (string, error) {
	u := fmt.Sprintf("%s/%d.proj4", c.baseURL, code)

	var def string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("registry request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("registry has no definition for EPSG:%d", code))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("registry returned HTTP %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		if err != nil {
			return fmt.Errorf("reading registry response: %w", err)
		}
		def = strings.TrimSpace(string(body))
		if def == "" {
			return backoff.Permanent(fmt.Errorf("registry returned empty definition for EPSG:%d", code))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return def, nil
}
