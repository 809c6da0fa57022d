package feedbacksim

import (
	"errors"
	"fmt"
)

// Verification errors.
var (
	ErrSubmissionMismatch = errors.New("submission counts do not add up")
	ErrSubmissionFailed   = errors.New("reports were rejected")
	ErrNoTimeline         = errors.New("timeline saw no feedback")
)

// verifyResults checks the run's counters against what the service reported.
func verifyResults(res *Result) error {
	s := res.Stats
	if s.ReportsAccepted+s.ReportsDuplicate+s.ReportsFailed != s.ReportsSubmitted {
		return fmt.Errorf("%w: %d accepted + %d duplicate + %d failed != %d submitted",
			ErrSubmissionMismatch, s.ReportsAccepted, s.ReportsDuplicate, s.ReportsFailed, s.ReportsSubmitted)
	}
	if s.ReportsFailed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrSubmissionFailed, s.ReportsFailed, s.ReportsSubmitted)
	}
	if s.ReportsSubmitted > 0 && res.Timeline.FeedbackCount == 0 {
		return ErrNoTimeline
	}
	return nil
}
