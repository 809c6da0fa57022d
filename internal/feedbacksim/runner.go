package feedbacksim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crowdpulse/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run registers an event, replays the crowd curve against it and reads back
// the timeline and line estimate.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Result, error) {
	stats := Stats{StartTime: time.Now()}
	eventID := cfg.EventID
	if eventID == "" {
		eventID = "sim-" + uuid.NewString()
	}

	log.Info(ctx, "starting crowdpulse feedback simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("eventID", eventID),
		logger.Int("reports", cfg.Reports),
		logger.Int("workers", cfg.Workers),
		logger.Duration("span", cfg.Span))

	client := newHTTPClient(cfg.Timeout)

	if err := checkServiceHealth(ctx, client, cfg, log); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	if err := registerEvent(ctx, client, cfg, eventID); err != nil {
		return nil, fmt.Errorf("event registration failed: %w", err)
	}

	reports := Generate(cfg, time.Now())
	stats.ReportsGenerated = cfg.Reports
	stats.DuplicatesPlanned = len(reports) - cfg.Reports

	submitReports(ctx, cfg, log, eventID, reports, &stats)

	if cfg.Settle > 0 {
		log.Info(ctx, "waiting for recompute", logger.Duration("settle", cfg.Settle))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}

	res := &Result{EventID: eventID}
	if err := client.getJSON(ctx, cfg.BaseURL+"/events/"+eventID+"/timeline", &res.Timeline); err != nil {
		return nil, fmt.Errorf("timeline retrieval failed: %w", err)
	}
	if err := client.getJSON(ctx, cfg.BaseURL+"/events/"+eventID+"/line", &res.Line); err != nil {
		return nil, fmt.Errorf("line retrieval failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveReportsToFile(cfg.OutputFile, reports); err != nil {
			log.Warn(ctx, "failed to save reports to file", logger.Error(err))
		} else {
			log.Info(ctx, "reports saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	res.Stats = stats

	if err := verifyResults(res); err != nil {
		return res, fmt.Errorf("result verification failed: %w", err)
	}
	displayFinalStats(ctx, log, res)
	return res, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, cfg *Config, log logger.Logger) error {
	resp, err := client.Get(ctx, cfg.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return err
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	log.Info(ctx, "service is healthy")
	return nil
}

func registerEvent(ctx context.Context, client *HTTPClient, cfg *Config, eventID string) error {
	req := EventRequest{
		ID:      eventID,
		Name:    "simulated " + cfg.EventType,
		Type:    cfg.EventType,
		EndTime: time.Now().Add(cfg.EndsIn).UTC().Format(time.RFC3339),
	}
	resp, err := client.Post(ctx, cfg.BaseURL+"/events", req)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// saveReportsToFile writes the generated reports as a JSON array.
func saveReportsToFile(filename string, reports []Report) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, res *Result) {
	stats := res.Stats
	var acceptRate, reportsPerSecond float64
	if stats.ReportsSubmitted > 0 {
		acceptRate = float64(stats.ReportsAccepted) / float64(stats.ReportsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		reportsPerSecond = float64(stats.ReportsSubmitted) / stats.Duration.Seconds()
	}

	fields := []logger.Field{
		logger.String("eventID", res.EventID),
		logger.Int("reportsSubmitted", stats.ReportsSubmitted),
		logger.Int("reportsAccepted", stats.ReportsAccepted),
		logger.Int("reportsDuplicate", stats.ReportsDuplicate),
		logger.Int("reportsFailed", stats.ReportsFailed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("reportsPerSecond", reportsPerSecond),
		logger.String("stage", res.Timeline.Stage),
		logger.Float64("position", res.Timeline.Position),
		logger.String("movement", res.Timeline.Movement),
		logger.Int("feedbackCount", res.Timeline.FeedbackCount),
		logger.String("lineLabel", res.Line.Label),
	}
	if res.Line.Estimate != nil {
		fields = append(fields, logger.Int("lineMinutes", *res.Line.Estimate))
	}
	log.Info(ctx, "final statistics", fields...)
}
