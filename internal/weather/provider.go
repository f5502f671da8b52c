package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Provider fetches current weather for a coordinate. Implementations must be
// safe for concurrent use; the sampler fans out across regions.
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (json.RawMessage, error)
}

// Config holds weather provider settings.
//
// Environment variables:
//   - WEATHER_API_URL: endpoint base (default: the OpenWeatherMap current-weather API)
//   - WEATHER_API_KEY: provider API key (required)
//   - WEATHER_UNITS: unit system passed through to the provider (default "metric")
//   - WEATHER_RPS: max requests per second against the provider (default 10)
type Config struct {
	BaseURL string
	APIKey  string
	Units   string
	RPS     float64
}

// DefaultProviderURL is the OpenWeatherMap current-weather endpoint base.
const DefaultProviderURL = "https://api.openweathermap.org/data/2.5"

var ErrMissingWeatherKey = errors.New("WEATHER_API_KEY environment variable is required")

// LoadFromEnv loads provider configuration from environment variables.
func LoadFromEnv() Config {
	base := os.Getenv("WEATHER_API_URL")
	if base == "" {
		base = DefaultProviderURL
	}
	units := os.Getenv("WEATHER_UNITS")
	if units == "" {
		units = "metric"
	}
	rps := 10.0
	if v := os.Getenv("WEATHER_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	return Config{
		BaseURL: base,
		APIKey:  os.Getenv("WEATHER_API_KEY"),
		Units:   units,
		RPS:     rps,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingWeatherKey
	}
	return nil
}

// Client is an HTTP weather provider. Calls are paced with a shared rate
// limiter so the bounded fan-out cannot exceed the provider's acceptable
// request rate even across overlapping runs.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a provider client from config.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}, nil
}

// Current fetches the current weather payload for a coordinate. The payload
// is returned opaquely; callers interpret named fields only.
func (c *Client) Current(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("units", c.cfg.Units)
	q.Set("appid", c.cfg.APIKey)
	u := c.cfg.BaseURL + "/weather?" + q.Encode()

	var payload json.RawMessage
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("weather request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("reading weather response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("weather provider returned HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("weather provider returned HTTP %d: %s", resp.StatusCode, body))
		}
		if !json.Valid(body) {
			return backoff.Permanent(errors.New("weather provider returned invalid JSON"))
		}
		payload = json.RawMessage(body)
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return payload, nil
}
