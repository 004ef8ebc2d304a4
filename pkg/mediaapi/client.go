package mediaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/fgp-bot/fgpbot/pkg/logging"
	"github.com/fgp-bot/fgpbot/pkg/models"
	"github.com/fgp-bot/fgpbot/pkg/ratelimit"
	"github.com/fgp-bot/fgpbot/pkg/retry"
)

var (
	// ErrRateLimited is returned when the API answers 429 or 503.
	ErrRateLimited = errors.New("API rate limit exceeded")
	// ErrClosed is returned for requests made after Close.
	ErrClosed = errors.New("media API client closed")
	// ErrUnexpectedResponse is returned when the body has the wrong shape.
	ErrUnexpectedResponse = errors.New("unexpected API response")
	// ErrNoBaseURL is returned by endpoint calls when no base URL is set.
	ErrNoBaseURL = errors.New("media API base URL not configured")
)

// APIError is a non-success answer from the API.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d %s: %s", e.Status, http.StatusText(e.Status), e.Reason)
}

// Recorder observes finished requests. status is the HTTP code, or "error"
// when no response arrived.
type Recorder interface {
	MediaRequest(status string)
}

type noopRecorder struct{}

func (noopRecorder) MediaRequest(string) {}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRecorder reports each request to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l.Named("MediaAPI") }
}

type request struct {
	ctx    context.Context
	url    string
	params url.Values
	result chan response
}

type response struct {
	status int
	json   bool
	body   []byte
	err    error
}

// Client talks to the media API through a fixed pool of workers that share
// one rate limiter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	recorder   Recorder
	logger     *logging.Logger
	header     http.Header

	queue  chan *request
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewClient validates cfg and starts cfg.MaxWorkers workers.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid media API config: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    ratelimit.Every(cfg.Interval, cfg.MaxRequests),
		recorder:   noopRecorder{},
		logger:     logging.Discard(),
		queue:      make(chan *request),
	}
	for _, opt := range opts {
		opt(c)
	}

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth(cfg.Username, cfg.APIKey)
	c.header = http.Header{
		"User-Agent":    {cfg.UserAgent},
		"Authorization": req.Header["Authorization"],
	}

	c.wg.Add(cfg.MaxWorkers)
	for range cfg.MaxWorkers {
		go c.worker()
	}
	c.logger.Debug("API client initialized", map[string]interface{}{"workers": cfg.MaxWorkers})
	return c, nil
}

func (c *Client) worker() {
	defer c.wg.Done()
	for req := range c.queue {
		req.result <- c.process(req)
	}
}

func (c *Client) process(req *request) response {
	var resp response
	err := retry.Do(req.ctx, c.cfg.Retry, func() error {
		if err := c.limiter.Wait(req.ctx, "api"); err != nil {
			return retry.Permanent(err)
		}
		var err error
		resp, err = c.fetch(req)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrRateLimited), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return retry.Permanent(err)
		case isTransient(err):
			c.logger.Warn("Transient request failure", map[string]interface{}{"url": req.url, "error": err.Error()})
			return err
		default:
			return retry.Permanent(err)
		}
	})
	if err != nil {
		return response{err: err}
	}
	return resp
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusBadGateway || apiErr.Status == http.StatusGatewayTimeout
	}
	return retry.IsRetryable(err)
}

func (c *Client) fetch(req *request) (response, error) {
	target := req.url
	if len(req.params) > 0 {
		target += "?" + req.params.Encode()
	}
	c.logger.Debug("Processing request", map[string]interface{}{"url": target})

	httpReq, err := http.NewRequestWithContext(req.ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range c.header {
		httpReq.Header[k] = v
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recorder.MediaRequest("error")
		return response{}, fmt.Errorf("request %s failed: %w", req.url, err)
	}
	defer resp.Body.Close()
	c.recorder.MediaRequest(strconv.Itoa(resp.StatusCode))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return response{}, ErrRateLimited
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read response from %s: %w", req.url, err)
	}
	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "application/json")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return response{}, &APIError{Status: resp.StatusCode, Reason: reason(body, isJSON)}
	}
	return response{status: resp.StatusCode, json: isJSON, body: body}, nil
}

func reason(body []byte, isJSON bool) string {
	if isJSON {
		var payload struct {
			Reason string `json:"reason"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Reason != "" {
			return payload.Reason
		}
	}
	return "Unknown error"
}

// enqueue hands the request to a worker and waits for its answer.
func (c *Client) enqueue(ctx context.Context, target string, params url.Values) (response, error) {
	req := &request{ctx: ctx, url: target, params: params, result: make(chan response, 1)}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return response{}, ErrClosed
	}
	select {
	case c.queue <- req:
		c.mu.RUnlock()
	case <-ctx.Done():
		c.mu.RUnlock()
		return response{}, ctx.Err()
	}

	// The worker always answers, even when ctx is cancelled mid request.
	resp := <-req.result
	return resp, resp.err
}

func (c *Client) endpoint(name string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", ErrNoBaseURL
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + name, nil
}

// GetContent fetches one page of posts. limit is capped at MaxLimit and page
// may be a number or a cursor such as "b1234".
func (c *Client) GetContent(ctx context.Context, limit int, params ContentParams, page string) (*models.ContentResponse, error) {
	target, err := c.endpoint("posts.json")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(min(limit, MaxLimit)))
	q.Set("tags", params.BuildTags())
	if page != "" {
		q.Set("page", page)
	}

	resp, err := c.enqueue(ctx, target, q)
	if err != nil {
		return nil, err
	}
	if !resp.json {
		return nil, fmt.Errorf("%w: posts response is not JSON", ErrUnexpectedResponse)
	}
	var out models.ContentResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	c.logger.Debug("Fetched posts", map[string]interface{}{"count": len(out.Posts)})
	return &out, nil
}

// GetTags searches tags, most used first unless q.Order says otherwise.
func (c *Client) GetTags(ctx context.Context, tq TagQuery) (*models.TagResponse, error) {
	target, err := c.endpoint("tags.json")
	if err != nil {
		return nil, err
	}
	order := tq.Order
	if order == "" {
		order = "count"
	}
	limit := tq.Limit
	if limit <= 0 {
		limit = 75
	}

	q := url.Values{}
	q.Set("search[order]", order)
	q.Set("search[hide_empty]", "true")
	q.Set("limit", strconv.Itoa(min(limit, MaxLimit)))
	if tq.Search != "" {
		q.Set("search[name_matches]", tq.Search)
	}
	if tq.Category != nil {
		q.Set("search[category]", strconv.Itoa(int(*tq.Category)))
	}

	resp, err := c.enqueue(ctx, target, q)
	if err != nil {
		return nil, err
	}
	if !resp.json {
		return nil, fmt.Errorf("%w: tags response is not JSON", ErrUnexpectedResponse)
	}
	var out models.TagResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return &out, nil
}

// DownloadFile fetches the raw bytes behind rawURL.
func (c *Client) DownloadFile(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.enqueue(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if resp.json {
		return nil, fmt.Errorf("%w: expected file data, got JSON", ErrUnexpectedResponse)
	}
	return resp.body, nil
}

// Close waits for queued requests to finish and stops the workers. It is
// safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
	c.httpClient.CloseIdleConnections()
	c.logger.Debug("API client closed")
}
