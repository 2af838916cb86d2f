// Package notify delivers patient and staff notifications. Patient
// notifications are strictly best-effort: a failed or unconfigured channel
// never propagates an error into queue operations.
package notify

import (
	"context"
	"strings"

	"github.com/auramed/opd-queue/internal/observability/metrics"
	"github.com/auramed/opd-queue/pkg/logging"
)

// Service fans a patient notification out to the outbox and the SMS
// channel, and sends staff alert emails. It satisfies the queue layer's
// Notifier interface.
type Service struct {
	sms     SMSSender
	email   EmailSender
	outbox  *Outbox
	staff   []string
	metrics *metrics.QueueMetrics
	logger  *logging.Logger
}

// ServiceConfig wires the notification channels. Any nil channel is
// skipped at send time.
type ServiceConfig struct {
	SMS         SMSSender
	Email       EmailSender
	Outbox      *Outbox
	StaffEmails []string
	Metrics     *metrics.QueueMetrics
	Logger      *logging.Logger
}

// NewService creates the notification service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SMS == nil {
		cfg.SMS = NewLogSMSSender(cfg.Logger)
	}
	return &Service{
		sms:     cfg.SMS,
		email:   cfg.Email,
		outbox:  cfg.Outbox,
		staff:   cfg.StaffEmails,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Notify records and sends one patient message. Failures are logged and
// counted, never returned.
func (s *Service) Notify(ctx context.Context, phone, kind, title, body string) {
	if strings.TrimSpace(phone) == "" {
		return
	}

	msg := &OutboundMessage{Phone: phone, Kind: kind, Title: title, Body: body}
	if s.outbox != nil {
		if err := s.outbox.Record(ctx, msg); err != nil {
			s.logger.Error("outbox record failed", "error", err, "kind", kind, "phone", phone)
		}
	}

	if err := s.sms.SendSMS(ctx, phone, body); err != nil {
		s.metrics.ObserveNotification(kind, "failed")
		s.logger.Error("sms send failed", "error", err, "kind", kind, "phone", phone)
		return
	}

	s.metrics.ObserveNotification(kind, "sent")
	if s.outbox != nil && msg.ID != 0 {
		if err := s.outbox.MarkDelivered(ctx, msg.ID); err != nil {
			s.logger.Error("outbox delivery flag failed", "error", err, "id", msg.ID)
		}
	}
}

// RedeliverPending retries outbox messages whose delivery was never
// confirmed, oldest first, and returns how many went out this sweep. A
// message that fails again stays undelivered for the next sweep.
func (s *Service) RedeliverPending(ctx context.Context, limit int) (int, error) {
	if s.outbox == nil {
		return 0, nil
	}
	pending, err := s.outbox.Undelivered(ctx, limit)
	if err != nil {
		return 0, err
	}

	redelivered := 0
	for _, m := range pending {
		if err := s.sms.SendSMS(ctx, m.Phone, m.Body); err != nil {
			s.metrics.ObserveNotification(m.Kind, "failed")
			s.logger.Error("sms redelivery failed", "error", err, "id", m.ID, "kind", m.Kind)
			continue
		}
		s.metrics.ObserveNotification(m.Kind, "sent")
		if err := s.outbox.MarkDelivered(ctx, m.ID); err != nil {
			s.logger.Error("outbox delivery flag failed", "error", err, "id", m.ID)
			continue
		}
		redelivered++
	}
	return redelivered, nil
}

// StaffAlert emails every configured staff address. Best-effort, like
// patient messages.
func (s *Service) StaffAlert(ctx context.Context, subject, body string) {
	if s.email == nil || len(s.staff) == 0 {
		return
	}
	for _, addr := range s.staff {
		if err := s.email.Send(ctx, EmailMessage{To: addr, Subject: subject, Body: body}); err != nil {
			s.logger.Error("staff alert failed", "error", err, "to", addr)
		}
	}
}
