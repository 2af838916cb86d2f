package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queueDB defines the database interface needed by PostgresRepository.
// pgxpool.Pool satisfies it in production; pgxmock satisfies it in tests.
type queueDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores sessions, tokens and client events in Postgres.
type PostgresRepository struct {
	db queueDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db queueDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, clinic_id, doctor_id, date_key, start_time_local, end_time_local,
	slot_minutes, micro_buffer_minutes, break_every_n, break_minutes,
	emergency_reserve_minutes, planned_leave, unplanned_closed,
	emergency_debt_minutes, created_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.ClinicID, &s.DoctorID, &s.DateKey, &s.StartTimeLocal, &s.EndTimeLocal,
		&s.SlotMinutes, &s.MicroBufferMinutes, &s.BreakEveryN, &s.BreakMinutes,
		&s.EmergencyReserveMinutes, &s.PlannedLeave, &s.UnplannedClosed,
		&s.EmergencyDebtMinutes, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new session row.
func (r *PostgresRepository) CreateSession(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (clinic_id, doctor_id, date_key, start_time_local, end_time_local,
			slot_minutes, micro_buffer_minutes, break_every_n, break_minutes,
			emergency_reserve_minutes, planned_leave, unplanned_closed, emergency_debt_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`
	if err := r.db.QueryRow(ctx, query,
		s.ClinicID, s.DoctorID, s.DateKey, s.StartTimeLocal, s.EndTimeLocal,
		s.SlotMinutes, s.MicroBufferMinutes, s.BreakEveryN, s.BreakMinutes,
		s.EmergencyReserveMinutes, s.PlannedLeave, s.UnplannedClosed, s.EmergencyDebtMinutes,
	).Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("queue: insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (r *PostgresRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: select session: %w", err)
	}
	return s, nil
}

// GetSessionByDay fetches the unique session for a clinic+doctor+day.
func (r *PostgresRepository) GetSessionByDay(ctx context.Context, clinicID, doctorID, dateKey string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE clinic_id = $1 AND doctor_id = $2 AND date_key = $3`,
		clinicID, doctorID, dateKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: select session by day: %w", err)
	}
	return s, nil
}

// UpdateSession persists the session's mutable fields.
func (r *PostgresRepository) UpdateSession(ctx context.Context, s *Session) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET planned_leave = $2, unplanned_closed = $3, emergency_debt_minutes = $4,
		    start_time_local = $5, end_time_local = $6
		WHERE id = $1`,
		s.ID, s.PlannedLeave, s.UnplannedClosed, s.EmergencyDebtMinutes,
		s.StartTimeLocal, s.EndTimeLocal)
	if err != nil {
		return fmt.Errorf("queue: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const tokenColumns = `id, session_id, token_no, slot_index, phone, name, urgency,
	complaint_text, intake_summary, state, booked_at, arrived_at, serving_at,
	completed_at, last_state_change_at`

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	var state string
	err := row.Scan(
		&t.ID, &t.SessionID, &t.TokenNo, &t.SlotIndex, &t.Phone, &t.Name, &t.Urgency,
		&t.ComplaintText, &t.IntakeSummary, &state, &t.BookedAt, &t.ArrivedAt, &t.ServingAt,
		&t.CompletedAt, &t.LastStateChangeAt,
	)
	if err != nil {
		return nil, err
	}
	t.State = TokenState(state)
	return &t, nil
}

// CreateToken inserts a new token row.
func (r *PostgresRepository) CreateToken(ctx context.Context, t *Token) error {
	query := `
		INSERT INTO tokens (session_id, token_no, slot_index, phone, name, urgency,
			complaint_text, intake_summary, state, booked_at, arrived_at, serving_at,
			completed_at, last_state_change_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	if err := r.db.QueryRow(ctx, query,
		t.SessionID, t.TokenNo, t.SlotIndex, t.Phone, t.Name, t.Urgency,
		t.ComplaintText, t.IntakeSummary, string(t.State), t.BookedAt, t.ArrivedAt,
		t.ServingAt, t.CompletedAt, t.LastStateChangeAt,
	).Scan(&t.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTokenNo
		}
		return fmt.Errorf("queue: insert token: %w", err)
	}
	return nil
}

// isUniqueViolation reports a Postgres 23505 error. The only unique
// constraint token writes can hit is (session_id, token_no).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetToken fetches a token by id.
func (r *PostgresRepository) GetToken(ctx context.Context, id int64) (*Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: select token: %w", err)
	}
	return t, nil
}

// UpdateToken persists the token's mutable fields.
func (r *PostgresRepository) UpdateToken(ctx context.Context, t *Token) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tokens
		SET token_no = $2, slot_index = $3, state = $4, arrived_at = $5,
		    serving_at = $6, completed_at = $7, last_state_change_at = $8
		WHERE id = $1`,
		t.ID, t.TokenNo, t.SlotIndex, string(t.State), t.ArrivedAt,
		t.ServingAt, t.CompletedAt, t.LastStateChangeAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTokenNo
		}
		return fmt.Errorf("queue: update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// FindActiveByPhone returns the active token for a phone within a session.
func (r *PostgresRepository) FindActiveByPhone(ctx context.Context, sessionID int64, phone string) (*Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens
		 WHERE session_id = $1 AND phone = $2 AND state = ANY($3)
		 ORDER BY token_no ASC LIMIT 1`,
		sessionID, phone, statesToStrings(ActiveStates)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: select active by phone: %w", err)
	}
	return t, nil
}

// MaxTokenNo returns the highest issued token number, 0 when none.
func (r *PostgresRepository) MaxTokenNo(ctx context.Context, sessionID int64) (int, error) {
	var max int
	if err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(token_no), 0) FROM tokens WHERE session_id = $1`,
		sessionID).Scan(&max); err != nil {
		return 0, fmt.Errorf("queue: max token no: %w", err)
	}
	return max, nil
}

// IssuedTokenNos returns every token number the session has issued.
func (r *PostgresRepository) IssuedTokenNos(ctx context.Context, sessionID int64) ([]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT token_no FROM tokens WHERE session_id = $1 ORDER BY token_no ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("queue: issued token nos: %w", err)
	}
	defer rows.Close()

	var nos []int
	for rows.Next() {
		var no int
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("queue: scan token no: %w", err)
		}
		nos = append(nos, no)
	}
	return nos, rows.Err()
}

// FirstInStates returns the lowest-numbered token among the given states.
func (r *PostgresRepository) FirstInStates(ctx context.Context, sessionID int64, states []TokenState) (*Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens
		 WHERE session_id = $1 AND state = ANY($2)
		 ORDER BY token_no ASC LIMIT 1`,
		sessionID, statesToStrings(states)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: select first in states: %w", err)
	}
	return t, nil
}

// ListInStates lists session tokens in the given states by token number.
func (r *PostgresRepository) ListInStates(ctx context.Context, sessionID int64, states []TokenState, limit int) ([]*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens
		 WHERE session_id = $1 AND state = ANY($2)
		 ORDER BY token_no ASC`
	args := []any{sessionID, statesToStrings(states)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: list tokens: %w", err)
	}
	defer rows.Close()

	out := []*Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertClientEvent records a replay-log entry unless its (client_id,
// event_id) pair already exists. The ON CONFLICT DO NOTHING form gives the
// atomic insert-if-new semantics the dedup contract requires.
func (r *PostgresRepository) InsertClientEvent(ctx context.Context, e *ClientEvent) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO client_events (session_id, client_id, event_id, event_type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, event_id) DO NOTHING`,
		e.SessionID, e.ClientID, e.EventID, e.EventType, e.PayloadJSON, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("queue: insert client event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func statesToStrings(states []TokenState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

var _ Repository = (*PostgresRepository)(nil)
