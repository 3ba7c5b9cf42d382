package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/logging"
)

const (
	defaultIPInfoURL = "https://ipinfo.io"
	defaultTimeout   = 15 * time.Second
	defaultVersion   = "dev"
)

// IPInfoClient looks up addresses with the ipinfo.io API
type IPInfoClient struct {
	httpClient *http.Client
	url        string
	token      string
	version    string
	logger     *zap.SugaredLogger
}

// IPInfoOption is a function that configures an IPInfoClient
type IPInfoOption func(*IPInfoClient)

// WithURL sets a custom API base URL
func WithURL(url string) IPInfoOption {
	return func(c *IPInfoClient) {
		c.url = strings.TrimRight(url, "/")
	}
}

// WithToken sets the API access token
func WithToken(token string) IPInfoOption {
	return func(c *IPInfoClient) {
		c.token = token
	}
}

// WithTimeout sets a custom timeout for HTTP requests
func WithTimeout(timeout time.Duration) IPInfoOption {
	return func(c *IPInfoClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithVersion sets the version string for the User-Agent header
func WithVersion(version string) IPInfoOption {
	return func(c *IPInfoClient) {
		c.version = version
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *zap.SugaredLogger) IPInfoOption {
	return func(c *IPInfoClient) {
		c.logger = logger
	}
}

// NewIPInfoClient creates a new ipinfo.io client with the given options
func NewIPInfoClient(opts ...IPInfoOption) *IPInfoClient {
	client := &IPInfoClient{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		url:     defaultIPInfoURL,
		version: defaultVersion,
	}

	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.OrNop(client.logger)

	return client
}

// ipInfoResponse is the subset of the ipinfo.io response geoping uses
type ipInfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Bogon   bool   `json:"bogon"`
}

// Lookup performs a single request for addr. Failures are not retried.
func (c *IPInfoClient) Lookup(ctx context.Context, addr string) (Record, error) {
	endpoint := fmt.Sprintf("%s/%s/json", c.url, url.PathEscape(addr))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, &Error{
			Retriable: false,
			Err:       fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("User-Agent", fmt.Sprintf("geoping/%s", c.version))
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debugw("Sending geolocation request", "address", addr)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Record{}, &Error{
			Retriable: true,
			Err:       fmt.Errorf("failed to query %s: %w", addr, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debugw("Received geolocation response", "address", addr, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return Record{}, &Error{
			StatusCode: resp.StatusCode,
			Retriable:  isRetriableStatusCode(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status code %d", resp.StatusCode),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return Record{}, &Error{
			Retriable: false,
			Err:       fmt.Errorf("unexpected content-type: %s (expected application/json)", contentType),
		}
	}

	var body ipInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Record{}, &Error{
			Retriable: false,
			Err:       fmt.Errorf("failed to parse response: %w", err),
		}
	}

	if body.Bogon {
		return Record{}, &Error{
			Retriable: false,
			Err:       fmt.Errorf("%s is a bogon address", addr),
		}
	}
	if body.Country == "" {
		return Record{}, &Error{
			Retriable: false,
			Err:       fmt.Errorf("no country in response for %s", addr),
		}
	}

	return Record{
		Country: strings.ToUpper(body.Country),
		City:    body.City,
	}, nil
}
