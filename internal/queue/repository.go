package queue

import "context"

// Repository is the persistence capability consumed by the orchestrator.
// Get* methods return the package's not-found sentinels; Find* and First*
// lookups return (nil, nil) when nothing matches.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id int64) (*Session, error)
	GetSessionByDay(ctx context.Context, clinicID, doctorID, dateKey string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error

	CreateToken(ctx context.Context, t *Token) error
	GetToken(ctx context.Context, id int64) (*Token, error)
	UpdateToken(ctx context.Context, t *Token) error

	// FindActiveByPhone returns the session's active (BOOKED/ARRIVED/
	// SERVING/SKIPPED) token for a phone, the dedup key for booking.
	FindActiveByPhone(ctx context.Context, sessionID int64, phone string) (*Token, error)

	// MaxTokenNo returns the highest token number issued in the session,
	// 0 when none exist.
	MaxTokenNo(ctx context.Context, sessionID int64) (int, error)

	// IssuedTokenNos returns every token number the session has issued,
	// terminal tokens included. Numbers are never reused within a session.
	IssuedTokenNos(ctx context.Context, sessionID int64) ([]int, error)

	// FirstInStates returns the token with the smallest token number among
	// the given states.
	FirstInStates(ctx context.Context, sessionID int64, states []TokenState) (*Token, error)

	// ListInStates returns session tokens in the given states ordered by
	// token number. limit <= 0 means no limit.
	ListInStates(ctx context.Context, sessionID int64, states []TokenState, limit int) ([]*Token, error)

	// InsertClientEvent records a replay-log entry if its (client_id,
	// event_id) pair is new, atomically. It reports whether the event was
	// inserted; false means a duplicate that must be skipped entirely.
	InsertClientEvent(ctx context.Context, e *ClientEvent) (bool, error)
}
