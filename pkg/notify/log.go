package notify

import (
	"context"

	"linkgate/pkg/logging"
	"linkgate/pkg/scheduler"
)

// LogSink only logs deliveries. Used when no broker is configured.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Send(ctx context.Context, d scheduler.Delivery) error {
	l.logger.Info(ctx, "follow-up ready",
		"delivery_id", d.Key(),
		"rule_id", d.RuleID,
		"email", logging.MaskEmail(d.Email),
		"subject", d.Subject,
		"attachment_kind", string(d.Attachment.Kind),
		"attempt", d.Attempt,
	)
	return nil
}
