package downstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/composite-service/middleware"
)

// ErrTimeout is wrapped into an Unavailable error when a call runs out of time.
var ErrTimeout = errors.New("downstream timeout")

type ClientConfig struct {
	// ReadTimeout is used for GET requests
	ReadTimeout time.Duration
	// WriteTimeout is used for POST, PUT, PATCH, DELETE requests
	WriteTimeout time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Client is the shared HTTP wrapper for every downstream call. It
// forwards X-Request-ID and X-group, enforces a per-method timeout, maps transport
// failures to Unavailable and logs/measures each call.
type Client struct {
	baseClient *http.Client
	config     ClientConfig
}

func NewClient(config ClientConfig) *Client {
	return &Client{
		baseClient: &http.Client{
			// per-request timeouts come from context
			Timeout:   0,
			Transport: &middleware.TracingTransport{Base: http.DefaultTransport},
		},
		config: config,
	}
}

// Do executes req. On success the caller owns resp.Body; closing it releases
// the per-request timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	middleware.ForwardHeaders(ctx, req.Header)

	timeout := c.config.ReadTimeout
	if isWriteMethod(req.Method) {
		timeout = c.config.WriteTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	req = req.WithContext(ctx)

	log := logger.Log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("group", middleware.GetGroup(ctx)).
		Logger()

	start := time.Now()
	resp, err := c.baseClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		cancel()
		metrics.RecordDownstreamRequest(req.Method, req.URL.Host, "error", duration)
		log.Warn().
			Err(err).
			Dur("duration", duration).
			Msg("downstream_request_failed")
		return nil, c.mapError(err)
	}

	metrics.RecordDownstreamRequest(req.Method, req.URL.Host, http.StatusText(resp.StatusCode), duration)
	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("downstream_request_completed")

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// mapError converts low-level errors to domain errors
func (c *Client) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewUnavailable("downstream call timed out", ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewUnavailable("downstream call canceled", err)
	}
	// connection refused, DNS errors, resets
	return domain.NewUnavailable("downstream unreachable", err)
}

// Get is a convenience method for GET requests
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewUnknown("build request", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.Do(ctx, req)
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
