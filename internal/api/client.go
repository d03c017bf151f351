package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/structured-notes/notes-go/internal/metrics"
)

// Request constants.
const (
	DefaultUserAgent = "notes-go/dev"
	jsonContentType  = "application/json; charset=UTF-8"
	requestIDHeader  = "X-Request-Id"
)

// Client is an HTTP client for the structured-notes API. Credentials travel
// as cookies through the http.Client's jar; the client never sets an
// Authorization header. An expired access token is refreshed once through
// the shared Session and the original call is re-issued exactly once.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	metrics    *metrics.Metrics
	session    *Session
}

// NewClient creates an API client. baseURL is the API root, e.g.
// "https://notes.example.com/api"; a trailing slash is dropped. httpClient
// should carry a cookie jar, otherwise no credentials are sent. m may be nil.
func NewClient(
	baseURL string, httpClient *http.Client, logger *slog.Logger, userAgent string, m *metrics.Metrics,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
		metrics:    m,
	}
	c.session = newSession(c, logger, m)

	return c
}

// Session returns the credential session shared by every request made
// through this client.
func (c *Client) Session() *Session {
	return c.session
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Request performs one logical API call. It never returns a Go error:
// transport failures, logical failures and authentication failures all come
// back as a Result whose OK() is false.
//
// On a 401 carrying one of the expired-token messages, Request waits for the
// shared credential refresh and re-issues the call once. The retried call's
// outcome is returned as-is, even if it fails again.
func (c *Client) Request(ctx context.Context, route, method string, body any) Result {
	start := time.Now()
	res := c.request(ctx, route, method, body)

	c.metrics.RecordRequest(method, outcome(res), time.Since(start).Seconds())

	return res
}

func (c *Client) request(ctx context.Context, route, method string, body any) Result {
	res, err := c.send(ctx, route, method, body)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("method", method),
			slog.String("route", route),
			slog.String("error", err.Error()),
		)

		return transportResult(err)
	}

	if res.OK() || !res.AuthExpired() {
		return res
	}

	c.logger.Info("access token expired, waiting for refresh",
		slog.String("method", method),
		slog.String("route", route),
		slog.String("message", res.Message),
	)

	if err := c.session.Refresh(ctx); err != nil {
		return authFailedResult()
	}

	c.metrics.RecordAuthRetry()

	retry, err := c.send(ctx, route, method, body)
	if err != nil {
		c.logger.Warn("retry after refresh failed",
			slog.String("method", method),
			slog.String("route", route),
			slog.String("error", err.Error()),
		)

		return transportResult(err)
	}

	return retry
}

// send executes a single HTTP exchange and decodes the envelope. It does
// not inspect the envelope; that is request's job.
func (c *Client) send(ctx context.Context, route, method string, body any) (Result, error) {
	reader, contentType, err := encodeBody(method, body)
	if err != nil {
		return Result{}, err
	}

	url := c.url(route)

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Result{}, fmt.Errorf("api: creating request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("api: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("api: reading %s %s response: %w", method, route, err)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("api: decoding %s %s response (HTTP %d): %w",
			method, route, resp.StatusCode, err)
	}

	res.StatusCode = resp.StatusCode

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("route", route),
		slog.Int("status", resp.StatusCode),
		slog.String("envelope_status", string(res.Status)),
		slog.String("request_id", reqID),
	)

	return res, nil
}

// url joins the base URL and the route, dropping one trailing slash from
// the route.
func (c *Client) url(route string) string {
	return c.baseURL + "/" + strings.TrimSuffix(route, "/")
}

// encodeBody renders a request body. GET and DELETE never carry one; a
// *Form is sent as multipart with its own boundary; anything else non-nil
// is JSON.
func encodeBody(method string, body any) (io.Reader, string, error) {
	if method == http.MethodGet || method == http.MethodDelete || body == nil {
		return nil, "", nil
	}

	if form, ok := body.(*Form); ok {
		return form.encode()
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("api: encoding request body: %w", err)
	}

	return bytes.NewReader(data), jsonContentType, nil
}

func outcome(r Result) string {
	switch {
	case r.OK():
		return metrics.OutcomeSuccess
	case r.kind == kindTransport:
		return metrics.OutcomeTransport
	case r.kind == kindAuthFailed:
		return metrics.OutcomeAuth
	default:
		return metrics.OutcomeError
	}
}
