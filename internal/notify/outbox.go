package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OutboundMessage is one patient notification recorded for audit and
// delivery reconciliation.
type OutboundMessage struct {
	ID        int64
	Phone     string
	Kind      string
	Title     string
	Body      string
	Delivered bool
	CreatedAt time.Time
}

// Outbox persists every outbound patient message. Recording is best-effort
// from the caller's point of view; delivery state is reconciled separately.
type Outbox struct {
	db *sql.DB
}

// NewOutbox wraps a database handle. Open the handle with driver "postgres".
func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

// OpenOutbox connects to Postgres and returns an outbox over the pool.
func OpenOutbox(databaseURL string) (*Outbox, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("notify: open outbox db: %w", err)
	}
	return NewOutbox(db), nil
}

// Record inserts a message row and returns its id.
func (o *Outbox) Record(ctx context.Context, msg *OutboundMessage) error {
	err := o.db.QueryRowContext(ctx,
		`INSERT INTO message_outbox (phone, kind, title, body, delivered, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		msg.Phone, msg.Kind, msg.Title, msg.Body, msg.Delivered,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("notify: record outbound message: %w", err)
	}
	return nil
}

// MarkDelivered flags a recorded message as delivered.
func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	res, err := o.db.ExecContext(ctx,
		`UPDATE message_outbox SET delivered = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("notify: mark delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notify: message %d not found", id)
	}
	return nil
}

// Undelivered lists messages that have not been confirmed delivered,
// oldest first.
func (o *Outbox) Undelivered(ctx context.Context, limit int) ([]OutboundMessage, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, phone, kind, title, body, delivered, created_at
		 FROM message_outbox
		 WHERE delivered = FALSE
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list undelivered: %w", err)
	}
	defer rows.Close()

	var msgs []OutboundMessage
	for rows.Next() {
		var m OutboundMessage
		if err := rows.Scan(&m.ID, &m.Phone, &m.Kind, &m.Title, &m.Body, &m.Delivered, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbound message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
