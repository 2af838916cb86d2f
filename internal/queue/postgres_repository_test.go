package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepositoryWithDB(mock), mock
}

func sessionRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "clinic_id", "doctor_id", "date_key", "start_time_local", "end_time_local",
		"slot_minutes", "micro_buffer_minutes", "break_every_n", "break_minutes",
		"emergency_reserve_minutes", "planned_leave", "unplanned_closed",
		"emergency_debt_minutes", "created_at",
	})
}

func tokenRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "session_id", "token_no", "slot_index", "phone", "name", "urgency",
		"complaint_text", "intake_summary", "state", "booked_at", "arrived_at",
		"serving_at", "completed_at", "last_state_change_at",
	})
}

func TestPostgresCreateSession(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs("clinic-1", "doc-1", "2026-03-02", "17:00", "20:00",
			9, 2, 6, 10, 20, false, false, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	s := &Session{
		ClinicID: "clinic-1", DoctorID: "doc-1", DateKey: "2026-03-02",
		StartTimeLocal: "17:00", EndTimeLocal: "20:00",
		SlotMinutes: 9, MicroBufferMinutes: 2, BreakEveryN: 6, BreakMinutes: 10,
		EmergencyReserveMinutes: 20,
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	assert.Equal(t, int64(1), s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSessionNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(sessionRows())

	_, err := repo.GetSession(context.Background(), 42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSessionByDay(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE clinic_id").
		WithArgs("clinic-1", "doc-1", "2026-03-02").
		WillReturnRows(sessionRows().AddRow(
			int64(1), "clinic-1", "doc-1", "2026-03-02", "17:00", "20:00",
			9, 2, 6, 10, 20, false, false, 0, now,
		))

	s, err := repo.GetSessionByDay(context.Background(), "clinic-1", "doc-1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.ID)
	assert.Equal(t, "17:00", s.StartTimeLocal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateSessionNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE sessions").
		WithArgs(int64(42), false, true, 0, "17:00", "20:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateSession(context.Background(), &Session{
		ID: 42, UnplannedClosed: true, StartTimeLocal: "17:00", EndTimeLocal: "20:00",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPostgresCreateToken(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO tokens").
		WithArgs(int64(1), 3, (*int)(nil), "+911", "pat", "low", "cough", "summary",
			"BOOKED", now, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))

	tok := &Token{
		SessionID: 1, TokenNo: 3, Phone: "+911", Name: "pat", Urgency: "low",
		ComplaintText: "cough", IntakeSummary: "summary",
		State: StateBooked, BookedAt: now, LastStateChangeAt: now,
	}
	require.NoError(t, repo.CreateToken(context.Background(), tok))
	assert.Equal(t, int64(9), tok.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateTokenDuplicateNumber(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO tokens").
		WithArgs(int64(1), 3, (*int)(nil), "+911", "", "", "", "",
			"BOOKED", now, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "tokens_session_id_token_no_key"})

	tok := &Token{SessionID: 1, TokenNo: 3, Phone: "+911", State: StateBooked, BookedAt: now, LastStateChangeAt: now}
	err := repo.CreateToken(context.Background(), tok)
	assert.ErrorIs(t, err, ErrDuplicateTokenNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIssuedTokenNos(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT token_no FROM tokens").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"token_no"}).AddRow(1).AddRow(4).AddRow(7))

	nos, err := repo.IssuedTokenNos(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 7}, nos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindActiveByPhoneAbsent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM tokens").
		WithArgs(int64(1), "+911", statesToStrings(ActiveStates)).
		WillReturnRows(tokenRows())

	tok, err := repo.FindActiveByPhone(context.Background(), 1, "+911")
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMaxTokenNo(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(7))

	max, err := repo.MaxTokenNo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 7, max)
}

func TestPostgresFirstInStates(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM tokens").
		WithArgs(int64(1), statesToStrings(EligibleStates)).
		WillReturnRows(tokenRows().AddRow(
			int64(5), int64(1), 2, nil, "+911", "", "low", "", "",
			"ARRIVED", now, &now, nil, nil, now,
		))

	tok, err := repo.FirstInStates(context.Background(), 1, EligibleStates)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, StateArrived, tok.State)
	assert.Equal(t, 2, tok.TokenNo)
}

func TestPostgresListInStatesLimit(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM tokens").
		WithArgs(int64(1), statesToStrings(EligibleStates), 12).
		WillReturnRows(tokenRows().AddRow(
			int64(5), int64(1), 1, nil, "+911", "", "low", "", "",
			"BOOKED", now, nil, nil, nil, now,
		))

	out, err := repo.ListInStates(context.Background(), 1, EligibleStates, 12)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].TokenNo)
}

func TestPostgresInsertClientEventDedup(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO client_events").
		WithArgs(int64(1), "client-a", "evt-1", "ARRIVE", `{"event_id":"evt-1"}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO client_events").
		WithArgs(int64(1), "client-a", "evt-1", "ARRIVE", `{"event_id":"evt-1"}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	evt := func() *ClientEvent {
		return &ClientEvent{
			SessionID: 1, ClientID: "client-a", EventID: "evt-1",
			EventType: "ARRIVE", PayloadJSON: `{"event_id":"evt-1"}`,
		}
	}

	inserted, err := repo.InsertClientEvent(context.Background(), evt())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertClientEvent(context.Background(), evt())
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}
