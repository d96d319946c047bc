package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/resilience"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
	stateOpen      = 2
)

// Config holds collaborator service URLs
type Config struct {
	OrderServiceURL   string
	QualityServiceURL string
	LaborServiceURL   string
	Timeout           time.Duration
}

// serviceClient performs JSON requests against one collaborator through its
// own circuit breaker. Transport errors and 5xx responses count as failures.
type serviceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     *logging.Logger
}

// response is a completed call that did not trip the breaker
type response struct {
	status int
	body   []byte
}

func newServiceClient(name, baseURL string, timeout time.Duration, m *metrics.Metrics, logger *logging.Logger) *serviceClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cbConfig := resilience.DefaultCircuitBreakerConfig(name)
	cbConfig.OnStateChange = func(name string, state int) {
		m.SetCircuitBreakerState(name, state)
		if state == stateOpen {
			m.RecordCircuitBreakerTrip(name)
		}
	}

	return &serviceClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: resilience.NewCircuitBreaker(cbConfig, logger.Logger),
		logger:  logger.WithComponent(name),
	}
}

// get issues a GET and returns the response for any status below 500
func (c *serviceClient) get(ctx context.Context, path string, query url.Values) (*response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", c.name, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", c.name, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, truncate(body))
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		c.logger.WithError(err).Warn("Collaborator call failed", "path", path)
		return nil, err
	}
	return result.(*response), nil
}

// getJSON decodes a 200 response into result and reports whether the
// resource exists. Other 4xx statuses are errors.
func (c *serviceClient) getJSON(ctx context.Context, path string, query url.Values, result any) (bool, error) {
	resp, err := c.get(ctx, path, query)
	if err != nil {
		return false, err
	}

	switch {
	case resp.status == http.StatusNotFound:
		return false, nil
	case resp.status != http.StatusOK:
		return false, fmt.Errorf("%s returned status %d: %s", c.name, resp.status, truncate(resp.body))
	}

	if err := json.Unmarshal(resp.body, result); err != nil {
		return false, fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return true, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
