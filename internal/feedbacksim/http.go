package feedbacksim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crowdpulse/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON fetches url and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, url string, v interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, v)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

type submitOutcome int

const (
	outcomeFailed submitOutcome = iota
	outcomeAccepted
	outcomeDuplicate
)

// submitReports submits reports concurrently using a worker pool.
func submitReports(ctx context.Context, cfg *Config, log logger.Logger, eventID string, reports []Report, stats *Stats) {
	log.Info(ctx, "submitting reports",
		logger.Int("reports", len(reports)),
		logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.Timeout)
	url := cfg.BaseURL + "/events/" + eventID + "/feedback"

	var submitted, accepted, duplicate, failed atomic.Int64

	reportChan := make(chan Report, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range reportChan {
				if ctx.Err() != nil {
					continue
				}
				submitted.Add(1)
				switch submitSingleReport(ctx, client, url, r) {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "report rejected", logger.String("feedback_id", r.FeedbackID))
					}
				}
			}
		}()
	}

	go func() {
		defer close(reportChan)
		for _, r := range reports {
			select {
			case <-ctx.Done():
				return
			case reportChan <- r:
			}
		}
	}()

	wg.Wait()

	stats.ReportsSubmitted = int(submitted.Load())
	stats.ReportsAccepted = int(accepted.Load())
	stats.ReportsDuplicate = int(duplicate.Load())
	stats.ReportsFailed = int(failed.Load())

	log.Info(ctx, "report submission completed",
		logger.Int("accepted", stats.ReportsAccepted),
		logger.Int("duplicate", stats.ReportsDuplicate),
		logger.Int("failed", stats.ReportsFailed))
}

// submitSingleReport submits a single report and classifies the response.
func submitSingleReport(ctx context.Context, client *HTTPClient, url string, r Report) submitOutcome {
	resp, err := client.Post(ctx, url, r)
	if err != nil {
		return outcomeFailed
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return outcomeFailed
	}

	var ack AckResponse
	switch resp.StatusCode {
	case StatusAccepted:
		return outcomeAccepted
	case StatusOK:
		if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
			return outcomeDuplicate
		}
		return outcomeAccepted
	default:
		return outcomeFailed
	}
}
