// Package detector talks to the external inference service.
package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrMalformedResponse is returned when a 2xx body is not a JSON object with
// a boolean has_abnormal field.
var ErrMalformedResponse = errors.New("malformed detector response")

// Request is one detection call.
type Request struct {
	FilePath   string
	SourceType string
	UserID     uint
	RecordID   uint
}

// Client calls POST /detect and GET /health on the Detector. It never retries.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient returns a client for baseURL. A zero timeout means none.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	logger = logger.With(zap.String("component", "detector_client"))
	client := resty.New().
		SetLogger(logger.Sugar()).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// HTTPClient exposes the underlying resty client so tests can swap its transport.
func (c *Client) HTTPClient() *resty.Client { return c.httpClient }

// Detect uploads the media file and returns the verbatim response body with
// its parsed form. Any transport failure, non-2xx status or malformed body
// is an error.
func (c *Client) Detect(ctx context.Context, req Request) ([]byte, *Result, error) {
	f, err := os.Open(req.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	c.logger.Debug("calling detector",
		zap.Uint("record_id", req.RecordID),
		zap.Uint("user_id", req.UserID),
		zap.String("source_type", req.SourceType),
	)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(req.FilePath), f).
		SetMultipartFormData(map[string]string{
			"source_type":  req.SourceType,
			"user_id":      strconv.FormatUint(uint64(req.UserID), 10),
			"record_id":    strconv.FormatUint(uint64(req.RecordID), 10),
			"enable_alert": "true",
		}).
		Post("/detect")
	if err != nil {
		return nil, nil, fmt.Errorf("detector request failed: %w", err)
	}

	body := resp.Body()
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode(), truncate(body, 512))
	}

	result, err := ParseResult(body)
	if err != nil {
		return nil, nil, err
	}
	return body, result, nil
}

// Health reports whether the Detector answers GET /health with a 2xx status,
// together with the decoded body when it is JSON.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var body map[string]any
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("detector health check failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("detector health returned status %d", resp.StatusCode())
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
