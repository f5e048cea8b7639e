package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kdimtricp/ecosort/internal/models"
)

const DefaultBaseURL = "http://localhost:5050"

// Client talks to the classification backend. Zero timeout means calls wait
// for as long as the backend takes.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	evaluateRetries uint64
	retryBase       time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithEvaluateRetries retries failed predictions with Fibonacci backoff
// starting at base. Notifications are never retried.
func WithEvaluateRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.evaluateRetries = n
		if base > 0 {
			c.retryBase = base
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retryBase:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SystemStart(ctx context.Context) error {
	return c.do(ctx, "system start", http.MethodPost, "/home/system_start", nil, nil)
}

func (c *Client) SystemStop(ctx context.Context) error {
	return c.do(ctx, "system stop", http.MethodPost, "/home/system_stop", nil, nil)
}

// Evaluate asks the backend to capture and classify one item.
func (c *Client) Evaluate(ctx context.Context) (*models.PredictionResult, error) {
	var result *models.PredictionResult
	backoff := retry.WithMaxRetries(c.evaluateRetries, retry.NewFibonacci(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var resp evaluateResponse
		if err := c.do(ctx, "evaluate", http.MethodPost, "/home/evaluate", nil, &resp); err != nil {
			if isTemporary(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		r, err := resp.toModel()
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveCorrection stores the operator's class next to the system prediction.
func (c *Client) SaveCorrection(ctx context.Context, id, trueClass, systemAnalysis string) error {
	return c.UpdateResult(ctx, id, trueClass, systemAnalysis, nil)
}

// UpdateResult is the edit-screen variant of SaveCorrection that can also
// set the success flag.
func (c *Client) UpdateResult(ctx context.Context, id, trueClass, systemAnalysis string, success *bool) error {
	body := correctionRequest{TrueClass: trueClass, SystemAnalysis: systemAnalysis, Success: success}
	return c.do(ctx, "update result", http.MethodPut, "/dashboard/results/"+url.PathEscape(id), body, nil)
}

func (c *Client) ServoPush(ctx context.Context, trueClass string) error {
	return c.do(ctx, "servo push", http.MethodPost, "/home/servo_push", trueClassRequest{TrueClass: trueClass}, nil)
}

// CopyUncertain flags a stored sample for the next retraining round.
func (c *Client) CopyUncertain(ctx context.Context, id, trueClass string) error {
	return c.do(ctx, "copy uncertain", http.MethodPost, "/dashboard/copy_uncertain/"+url.PathEscape(id), trueClassRequest{TrueClass: trueClass}, nil)
}

func (c *Client) ListResults(ctx context.Context) ([]models.ResultRecord, error) {
	var resp []resultResponse
	if err := c.do(ctx, "list results", http.MethodGet, "/dashboard/results", nil, &resp); err != nil {
		return nil, err
	}
	results := make([]models.ResultRecord, 0, len(resp))
	for _, r := range resp {
		results = append(results, r.toModel())
	}
	return results, nil
}

// GetResult fetches one stored result. The backend answers with the record
// wrapped in a "sample" object.
func (c *Client) GetResult(ctx context.Context, id string) (*models.ResultRecord, error) {
	var resp sampleResponse
	if err := c.do(ctx, "get result", http.MethodGet, "/dashboard/results/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Sample == nil {
		return nil, &StatusError{Op: "get result", Code: http.StatusNotFound, Message: "result " + id + " not found"}
	}
	rec := resp.Sample.toModel()
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

func (c *Client) ClassificationMetrics(ctx context.Context) (*models.ClassificationMetrics, error) {
	var m models.ClassificationMetrics
	if err := c.do(ctx, "classification metrics", http.MethodGet, "/metrics/classification", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FetchImage streams a captured image. The caller closes the reader.
func (c *Client) FetchImage(ctx context.Context, name string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ImageURL(name), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", newStatusError("fetch image", resp.StatusCode, body)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) ImageURL(name string) string {
	return c.baseURL + "/images/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(op, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal response: %w", op, err)
	}
	return nil
}

func isTemporary(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}
