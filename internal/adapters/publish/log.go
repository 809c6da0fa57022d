package publish

import (
	"context"

	"github.com/okian/crowdpulse/internal/domain/transition"
	"github.com/okian/crowdpulse/pkg/logger"
)

// LogNotifier writes transitions to the log. It is the default when no
// broker is configured.
type LogNotifier struct {
	logger logger.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier logs through l.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Nop()
	}
	return &LogNotifier{logger: l}
}

// Name implements Notifier.
func (n *LogNotifier) Name() string { return "log" }

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, t transition.Transition) error {
	n.logger.Info(ctx, "stage transition",
		logger.String("event_id", t.EventID),
		logger.String("from", string(t.From)),
		logger.String("to", string(t.To)),
		logger.Float64("position", t.Result.Position),
		logger.Time("at", t.At))
	return nil
}

// Close implements Notifier.
func (n *LogNotifier) Close() error { return nil }
