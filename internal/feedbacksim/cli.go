package feedbacksim

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/okian/crowdpulse/pkg/logger"
)

// SetupLogging returns a logger writing to stdout and, when logFile is set,
// to that file as well. The returned closer releases the file.
func SetupLogging(logFile string, verbose bool) (logger.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if logFile == "" {
		return logger.NewWithWriter(os.Stdout, level), io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return logger.NewWithWriter(io.MultiWriter(os.Stdout, file), level), file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`crowdpulse feedback simulator
=============================

Registers an event, replays a ramp / peak / drain crowd curve as concurrent
feedback submissions, then reads back the timeline and line estimate.

Usage:
  go run ./cmd/feedback-sim [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -event string      Event id to register (default: generated)
  -type string       Event type; "pub" selects pub line labels (default "pub")
  -reports int       Distinct reports to submit (default 500)
  -dup float         Share of reports resubmitted with the same id (default 0.05)
  -span duration     How far back the curve starts (default 90m)
  -ends-in duration  Event end time relative to now (default 30m)
  -workers int       Concurrent submitters (default CPU cores * 2)
  -timeout duration  HTTP request timeout (default 10s)
  -settle duration   Wait before reading results (default 2s)
  -seed uint         Generator seed (default: current time)
  -output string     Write generated reports to this JSON file
  -log string        Also write logs to this file
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  go run ./cmd/feedback-sim -reports 2000 -workers 16
  go run ./cmd/feedback-sim -type club -span 2h -ends-in -10m
`)
}
