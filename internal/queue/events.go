package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Replayable event types accepted from offline clients.
const (
	EventArrive    = "ARRIVE"
	EventServeNext = "SERVE_NEXT"
	EventSkip      = "SKIP"
	EventCancel    = "CANCEL"
	EventEmergency = "EMERGENCY"
)

const defaultEmergencyMinutes = 10

// ReplayEvent is one client-side action queued while offline.
type ReplayEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	TokenID int64  `json:"token_id,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
}

// ApplyBatch replays a client's offline event log in order. Each event is
// recorded before dispatch; an event ID already seen for this client is
// counted as a duplicate and not re-applied, so replaying the same batch
// any number of times changes state exactly once. A dispatch failure is
// logged and the batch continues: the event was accepted, and the client
// must not resend it.
func (s *Service) ApplyBatch(ctx context.Context, sessionID int64, clientID string, events []ReplayEvent) (accepted int, err error) {
	start := time.Now()
	defer func() { s.observe("apply_batch", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.apply_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("opd.session_id", sessionID),
		attribute.Int("opd.batch_size", len(events)),
	)

	clientID = strings.TrimSpace(clientID)

	for _, ev := range events {
		payload, _ := json.Marshal(ev)
		inserted, err := s.repo.InsertClientEvent(ctx, &ClientEvent{
			SessionID:   sessionID,
			ClientID:    clientID,
			EventID:     ev.EventID,
			EventType:   ev.Type,
			PayloadJSON: string(payload),
		})
		if err != nil {
			span.RecordError(err)
			return accepted, err
		}
		if !inserted {
			s.metrics.ObserveReplayEvent(true)
			continue
		}
		accepted++
		s.metrics.ObserveReplayEvent(false)

		if dispatchErr := s.dispatch(ctx, sessionID, ev); dispatchErr != nil {
			s.logger.Error("replay event dispatch failed",
				"session_id", sessionID, "client_id", clientID,
				"event_id", ev.EventID, "type", ev.Type, "error", dispatchErr)
		}
	}
	return accepted, nil
}

func (s *Service) dispatch(ctx context.Context, sessionID int64, ev ReplayEvent) error {
	switch ev.Type {
	case EventArrive:
		// The token must belong to the batch's session; a client cannot
		// arrive tokens it can only name by id.
		if _, err := s.sessionToken(ctx, sessionID, ev.TokenID); err != nil {
			return err
		}
		_, err := s.MarkArrived(ctx, ev.TokenID)
		return err
	case EventServeNext:
		_, err := s.ServeNext(ctx, sessionID)
		return err
	case EventSkip:
		_, err := s.Skip(ctx, sessionID, ev.TokenID)
		return err
	case EventCancel:
		_, err := s.Cancel(ctx, sessionID, ev.TokenID)
		return err
	case EventEmergency:
		minutes := ev.Minutes
		if minutes == 0 {
			minutes = defaultEmergencyMinutes
		}
		_, err := s.TriggerEmergency(ctx, sessionID, minutes)
		return err
	default:
		return ErrUnknownEventType
	}
}
