// Package clients provides the HTTP client used to read the HubSpot API
package clients

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/metrics"
)

// maxSnippet bounds the response body quoted in protocol errors
const maxSnippet = 512

// HTTPConfig configures the API client
type HTTPConfig struct {
	BaseURL   string
	UserAgent string

	// MaxRetries bounds retries per request; a request is attempted at
	// most MaxRetries+1 times
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	RequestTimeout time.Duration

	// RateLimit paces attempts in requests per second; 0 disables pacing
	RateLimit float64
	RateBurst int

	EnableHTTP2 bool
}

// DefaultHTTPConfig returns the default client configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		BaseURL:        "https://api.hubapi.com/",
		UserAgent:      "nebula-hubspot",
		MaxRetries:     10,
		BackoffInitial: 300 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		RequestTimeout: 30 * time.Second,
		RateLimit:      10,
		RateBurst:      10,
		EnableHTTP2:    true,
	}
}

// APIClient performs authenticated GET requests with bounded retries
type APIClient struct {
	config  *HTTPConfig
	logger  *zap.Logger
	http    *resty.Client
	auth    Authenticator
	limiter *rate.Limiter
}

// NewAPIClient creates a client for config. A nil auth sends no
// credentials.
func NewAPIClient(config *HTTPConfig, auth Authenticator, logger *zap.Logger) *APIClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_client"))

	client := &APIClient{
		config: config,
		logger: logger,
		auth:   auth,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	client.http = resty.New().
		SetBaseURL(config.BaseURL).
		SetTransport(transport).
		SetTimeout(config.RequestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", config.UserAgent).
		SetLogger(logger.Sugar())

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return client
}

// SetAuthenticator replaces the client's authenticator
func (c *APIClient) SetAuthenticator(auth Authenticator) {
	c.auth = auth
}

// HTTPClient returns the underlying *http.Client
func (c *APIClient) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// Get requests path with params and returns the body of the first 2xx
// response.
//
// Network errors and status 429, 500, 502, 503 and 504 are retried with
// exponential backoff; when retries are exhausted the last failure is
// returned wrapped as ErrorTypeTransient. Status 401 and 403 fail at once
// with ErrorTypeAuthentication, any other non-2xx status with
// ErrorTypeProtocol.
func (c *APIClient) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var (
		body     []byte
		attempts int
	)

	operation := func() error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		req := c.http.R().SetContext(ctx)
		for key, values := range params {
			for _, v := range values {
				req.QueryParam.Add(key, v)
			}
		}
		if c.auth != nil {
			if err := c.auth.Apply(ctx, req); err != nil {
				return backoff.Permanent(err)
			}
		}

		start := time.Now()
		resp, err := req.Get(path)
		metrics.RequestLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.HTTPRequests.WithLabelValues(path, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			errType := errors.ErrorTypeConnection
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				errType = errors.ErrorTypeTimeout
			}
			return errors.Wrap(err, errType, "request failed").
				WithDetail("path", path)
		}

		code := resp.StatusCode()
		metrics.HTTPRequests.WithLabelValues(path, strconv.Itoa(code)).Inc()
		if err := classifyStatus(path, code, resp.Body()); err != nil {
			if errors.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		body = resp.Body()
		return nil
	}

	notify := func(err error, wait time.Duration) {
		reason := "connection"
		var e *errors.Error
		if stderrors.As(err, &e) {
			reason = string(e.Type)
		}
		metrics.HTTPRetries.WithLabelValues(path, reason).Inc()
		c.logger.Warn("retrying request",
			zap.String("path", path),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackoff(), ctx), notify)
	if err == nil {
		return body, nil
	}

	if errors.IsRetryable(err) {
		return nil, errors.Wrap(err, errors.ErrorTypeTransient, "giving up after "+strconv.Itoa(attempts)+" attempts").
			WithDetail("path", path).
			WithDetail("attempts", attempts)
	}
	return nil, err
}

// newBackoff returns the retry schedule: exponential from BackoffInitial
// doubling up to BackoffMax with 25% jitter, stopping after MaxRetries.
func (c *APIClient) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.BackoffInitial
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxInterval = c.config.BackoffMax
	b.MaxElapsedTime = 0 // bounded by retries only
	b.Reset()

	retries := c.config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func classifyStatus(path string, code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.Newf(errors.ErrorTypeAuthentication, "request rejected with status %d", code).
			WithDetail("path", path).
			WithDetail("status", code)
	case code == http.StatusTooManyRequests:
		return errors.New(errors.ErrorTypeRateLimit, "rate limited").
			WithDetail("path", path).
			WithDetail("status", code)
	case code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return errors.Newf(errors.ErrorTypeConnection, "server error %d", code).
			WithDetail("path", path).
			WithDetail("status", code)
	default:
		return errors.Newf(errors.ErrorTypeProtocol, "unexpected status %d: %s", code, snippet(body)).
			WithDetail("path", path).
			WithDetail("status", code)
	}
}

func snippet(body []byte) string {
	if len(body) > maxSnippet {
		return string(body[:maxSnippet]) + "..."
	}
	return string(body)
}
