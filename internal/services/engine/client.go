package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domsvc "TradeReview/internal/domain/service"
	xhttp "TradeReview/pkg/http"
)

// HTTPClient submits review attempts to the analysis engine over HTTP.
type HTTPClient struct {
	baseURL    string
	submitPath string
	attempts   int
	client     *xhttp.Client
}

// ClientConfig is the subset of engine settings the client needs.
type ClientConfig struct {
	BaseURL    string
	SubmitPath string
	Timeout    time.Duration
	Attempts   int
}

func NewHTTPClient(cfg ClientConfig, opts ...xhttp.ClientOption) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		submitPath: cfg.SubmitPath,
		attempts:   cfg.Attempts,
		client:     xhttp.NewClient(opts...),
	}
}

type submitResponse struct {
	Handle  string          `json:"handle"`
	Verdict json.RawMessage `json:"verdict,omitempty"`
}

// Submit hands the attempt to the engine. A verdict in the response is decoded and
// returned so the caller can complete the attempt without waiting for a callback.
func (c *HTTPClient) Submit(ctx context.Context, req *domsvc.AnalysisRequest) (*domsvc.Submission, error) {
	var resp submitResponse
	if err := c.postJSONWithRetry(ctx, c.submitPath, req, &resp); err != nil {
		return nil, fmt.Errorf("submit review: %w", err)
	}
	sub := &domsvc.Submission{Handle: resp.Handle}
	if len(resp.Verdict) > 0 && string(resp.Verdict) != "null" {
		v, err := DecodeVerdict(resp.Verdict)
		if err != nil {
			return nil, fmt.Errorf("inline verdict: %w", err)
		}
		sub.Verdict = v
	}
	return sub, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if c.baseURL == "" {
		return errors.New("engine base url not configured")
	}
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transport errors and 5xx/429 answers with linear backoff.
func (c *HTTPClient) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	attempts := c.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = c.postJSON(ctx, path, payload, dest)
		if err == nil || !retryable(err) || i == attempts {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}

var _ domsvc.AnalysisEngine = (*HTTPClient)(nil)
