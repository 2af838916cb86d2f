package notify

import (
	"context"

	"github.com/auramed/opd-queue/pkg/logging"
)

// SMSSender delivers patient-facing text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSMSSender logs messages instead of sending them. Used in development
// and as the default until a gateway is wired in.
type LogSMSSender struct {
	logger *logging.Logger
}

// NewLogSMSSender creates a logging SMS sender.
func NewLogSMSSender(logger *logging.Logger) *LogSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSMSSender{logger: logger}
}

// SendSMS logs the message and reports success.
func (s *LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info("sms (log only)", "to", to, "body", body)
	return nil
}
