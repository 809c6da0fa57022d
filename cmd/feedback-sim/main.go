package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/crowdpulse/internal/feedbacksim"
	"github.com/okian/crowdpulse/pkg/logger"
)

// Default configuration constants.
const (
	defaultReports     = 500
	defaultDupRate     = 0.05
	defaultSpan        = 90 * time.Minute
	defaultEndsIn      = 30 * time.Minute
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		eventID   = flag.String("event", "", "Event id to register (default: generated)")
		eventType = flag.String("type", "pub", "Event type")
		reports   = flag.Int("reports", defaultReports, "Distinct reports to submit")
		dupRate   = flag.Float64("dup", defaultDupRate, "Share of reports resubmitted with the same id")
		span      = flag.Duration("span", defaultSpan, "How far back the curve starts")
		endsIn    = flag.Duration("ends-in", defaultEndsIn, "Event end time relative to now")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", feedbacksim.DefaultSettle, "Wait before reading results")
		seed      = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
		output    = flag.String("output", "", "Write generated reports to this JSON file")
		logFile   = flag.String("log", "", "Also write logs to this file")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedbacksim.ShowHelp()
		return
	}

	log, closer, err := feedbacksim.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &feedbacksim.Config{
		BaseURL:       *baseURL,
		EventID:       *eventID,
		EventType:     *eventType,
		Reports:       *reports,
		DuplicateRate: *dupRate,
		Span:          *span,
		EndsIn:        *endsIn,
		Workers:       max(*workers, 1),
		Timeout:       *timeout,
		Settle:        *settle,
		Seed:          *seed,
		OutputFile:    *output,
		Verbose:       *verbose,
	}

	if _, err := feedbacksim.Run(ctx, cfg, log); err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
