package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSMS struct {
	sent []string
	err  error
}

func (r *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, to)
	return nil
}

type recordingEmail struct {
	sent []EmailMessage
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return nil
}

func TestNotifySendsSMS(t *testing.T) {
	sms := &recordingSMS{}
	svc := NewService(ServiceConfig{SMS: sms})

	svc.Notify(context.Background(), "+15550100", "CONFIRMATION", "Token confirmed", "hello")
	assert.Equal(t, []string{"+15550100"}, sms.sent)
}

func TestNotifySkipsEmptyPhone(t *testing.T) {
	sms := &recordingSMS{}
	svc := NewService(ServiceConfig{SMS: sms})

	svc.Notify(context.Background(), "   ", "CONFIRMATION", "t", "b")
	assert.Empty(t, sms.sent)
}

func TestNotifySwallowsSendFailure(t *testing.T) {
	sms := &recordingSMS{err: errors.New("gateway down")}
	svc := NewService(ServiceConfig{SMS: sms})

	// Must not panic or propagate anything.
	svc.Notify(context.Background(), "+15550100", "DELAY", "t", "b")
	assert.Empty(t, sms.sent)
}

func TestRedeliverPendingRetriesUnconfirmed(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, phone, kind, title, body, delivered, created_at`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "kind", "title", "body", "delivered", "created_at"}).
			AddRow(int64(3), "+15550100", "CONFIRMATION", "t", "b", false, now).
			AddRow(int64(4), "+15550101", "DELAY", "t", "b", false, now))
	mock.ExpectExec(`UPDATE message_outbox SET delivered`).
		WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE message_outbox SET delivered`).
		WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))

	sms := &recordingSMS{}
	svc := NewService(ServiceConfig{SMS: sms, Outbox: NewOutbox(db)})

	n, err := svc.RedeliverPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"+15550100", "+15550101"}, sms.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeliverPendingKeepsFailedMessages(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, phone, kind, title, body, delivered, created_at`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "kind", "title", "body", "delivered", "created_at"}).
			AddRow(int64(9), "+15550100", "RESLOTTED", "t", "b", false, time.Now()))

	sms := &recordingSMS{err: errors.New("gateway down")}
	svc := NewService(ServiceConfig{SMS: sms, Outbox: NewOutbox(db)})

	// No MarkDelivered expected: the message stays for the next sweep.
	n, err := svc.RedeliverPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeliverPendingWithoutOutboxIsNoop(t *testing.T) {
	svc := NewService(ServiceConfig{})
	n, err := svc.RedeliverPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStaffAlertFansOut(t *testing.T) {
	email := &recordingEmail{}
	svc := NewService(ServiceConfig{
		Email:       email,
		StaffEmails: []string{"a@clinic.test", "b@clinic.test"},
	})

	svc.StaffAlert(context.Background(), "Session closed", "details")
	assert.Len(t, email.sent, 2)
	assert.Equal(t, "Session closed", email.sent[0].Subject)
}

func TestStaffAlertWithoutChannelIsNoop(t *testing.T) {
	svc := NewService(ServiceConfig{})
	svc.StaffAlert(context.Background(), "s", "b")
}
