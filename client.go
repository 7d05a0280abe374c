package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Backend endpoints
const (
	endpointAnalyze     = "/analyze"
	endpointDeepScan    = "/deep-scan"
	endpointReport      = "/generate-report"
	endpointBatchScan   = "/batch-scan"
	endpointGithubScan  = "/github-scan"
	endpointModelStats  = "/model-stats"
	endpointTrainStream = "/train-stream"
	endpointHealth      = "/health"
)

// maxErrorBody bounds how much of a failed response is quoted in errors
const maxErrorBody = 512

// Analyzer performs a single request/response analysis
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

// Client talks to the analysis backend over HTTP
type Client struct {
	baseURL      string
	httpClient   *http.Client // unary calls, honours the configured timeout
	streamClient *http.Client // streaming calls, never times out on its own
	limiter      *rate.Limiter
	metrics      *Metrics
	log          *logrus.Entry
	userAgent    string
}

// Ensure Client implements the collaborator interfaces
var (
	_ Analyzer       = (*Client)(nil)
	_ DeepScanSource = (*Client)(nil)
)

// NewClient creates a backend client from configuration
func NewClient(cfg *Config, metrics *Metrics, log *logrus.Logger) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.APIURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		streamClient: &http.Client{},
		metrics:      metrics,
		log:          componentLogger(log, "client"),
		userAgent:    "sentinel/" + Version,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze sends code to POST /analyze
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	if err := c.postJSON(ctx, endpointAnalyze, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenDeepScan starts POST /deep-scan and returns the event-stream body.
// The caller must close the returned reader.
func (c *Client) OpenDeepScan(ctx context.Context, req DeepScanRequest) (io.ReadCloser, error) {
	return c.openStream(ctx, http.MethodPost, endpointDeepScan, req)
}

// OpenTrainStream starts POST /train-stream and returns the log stream body
func (c *Client) OpenTrainStream(ctx context.Context) (io.ReadCloser, error) {
	return c.openStream(ctx, http.MethodPost, endpointTrainStream, nil)
}

// GenerateReport requests a PDF report and returns its bytes
func (c *Client) GenerateReport(ctx context.Context, req ReportRequest) ([]byte, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, endpointReport, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("backend returned an empty report")
	}
	return data, nil
}

// BatchScan submits several files to POST /batch-scan
func (c *Client) BatchScan(ctx context.Context, files []BatchFile) (*BatchResponse, error) {
	var out BatchResponse
	if err := c.postJSON(ctx, endpointBatchScan, BatchRequest{Files: files}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GithubScan asks the backend to clone and scan a repository
func (c *Client) GithubScan(ctx context.Context, repoURL, token string) (*BatchResponse, error) {
	var out BatchResponse
	req := GithubScanRequest{RepoURL: repoURL, AccessToken: token}
	if err := c.postJSON(ctx, endpointGithubScan, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelStats fetches GET /model-stats
func (c *Client) ModelStats(ctx context.Context) (*ModelStats, error) {
	var out ModelStats
	if err := c.getJSON(ctx, endpointModelStats, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches GET /health
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.getJSON(ctx, endpointHealth, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeJSON(resp.Body, endpoint, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeJSON(resp.Body, endpoint, out)
}

func (c *Client) openStream(ctx context.Context, method, endpoint string, body any) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.streamClient, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("%s: no response stream", endpoint)
	}
	return resp.Body, nil
}

// do sends a request and returns the response when the status is 2xx.
// On any other status the body is drained, closed and quoted in the error.
func (c *Client) do(ctx context.Context, hc *http.Client, method, endpoint string, body any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if endpoint == endpointDeepScan || endpoint == endpointTrainStream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := hc.Do(httpReq)
	c.metrics.observeRequest(endpoint, start)
	if err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Debug("request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.WithField("endpoint", endpoint).WithField("status", resp.StatusCode).Debug("backend error")
		return nil, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp, nil
}

func decodeJSON(r io.Reader, endpoint string, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}
