package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBatchReplaysOnce(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	sess := mustSession(t, svc)
	ctx := context.Background()

	tok := mustBook(t, svc, sess.ID, "+911")

	batch := []ReplayEvent{{EventID: "evt-1", Type: EventArrive, TokenID: tok.ID}}

	accepted, err := svc.ApplyBatch(ctx, sess.ID, "client-a", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	arrived, err := svc.repo.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, StateArrived, arrived.State)
	firstArrival := arrived.ArrivedAt

	// Replaying the identical batch is a no-op.
	for i := 0; i < 3; i++ {
		accepted, err = svc.ApplyBatch(ctx, sess.ID, "client-a", batch)
		require.NoError(t, err)
		assert.Equal(t, 0, accepted)
	}

	same, err := svc.repo.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, firstArrival, same.ArrivedAt)
}

func TestApplyBatchDedupScopedToClient(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	sess := mustSession(t, svc)
	ctx := context.Background()

	tok := mustBook(t, svc, sess.ID, "+911")
	batch := []ReplayEvent{{EventID: "evt-1", Type: EventArrive, TokenID: tok.ID}}

	accepted, err := svc.ApplyBatch(ctx, sess.ID, "client-a", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	// A different client may reuse the same event id.
	accepted, err = svc.ApplyBatch(ctx, sess.ID, "client-b", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
}

func TestApplyBatchArriveIgnoresForeignSessionToken(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	ctx := context.Background()

	sessA := mustSession(t, svc)
	sessB, err := svc.GetOrCreateSession(ctx, "clinic-1", "doc-2", "2026-03-02")
	require.NoError(t, err)

	tok := mustBook(t, svc, sessA.ID, "+911")

	// The event is recorded against session B, but must not touch a
	// session A token.
	batch := []ReplayEvent{{EventID: "evt-x", Type: EventArrive, TokenID: tok.ID}}
	accepted, err := svc.ApplyBatch(ctx, sessB.ID, "client-a", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	same, err := svc.repo.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, StateBooked, same.State)
	assert.Nil(t, same.ArrivedAt)
}

func TestApplyBatchMixedDuplicates(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	sess := mustSession(t, svc)
	ctx := context.Background()

	tok := mustBook(t, svc, sess.ID, "+911")

	first := []ReplayEvent{{EventID: "evt-1", Type: EventArrive, TokenID: tok.ID}}
	accepted, err := svc.ApplyBatch(ctx, sess.ID, "client-a", first)
	require.NoError(t, err)
	require.Equal(t, 1, accepted)

	// Retry carries the old event plus a new one.
	retry := []ReplayEvent{
		{EventID: "evt-1", Type: EventArrive, TokenID: tok.ID},
		{EventID: "evt-2", Type: EventServeNext},
	}
	accepted, err = svc.ApplyBatch(ctx, sess.ID, "client-a", retry)
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	serving, err := svc.repo.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, StateServing, serving.State)
}

func TestApplyBatchDispatchFailureStillAccepts(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	sess := mustSession(t, svc)
	ctx := context.Background()

	// Unknown token: the event is recorded, dispatch fails, the batch goes on.
	batch := []ReplayEvent{
		{EventID: "evt-1", Type: EventArrive, TokenID: 9999},
		{EventID: "evt-2", Type: EventEmergency, Minutes: 15},
	}
	accepted, err := svc.ApplyBatch(ctx, sess.ID, "client-a", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)

	updated, err := svc.repo.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.EmergencyDebtMinutes)
}

func TestApplyBatchEmergencyDefaultMinutes(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	sess := mustSession(t, svc)
	ctx := context.Background()

	accepted, err := svc.ApplyBatch(ctx, sess.ID, "client-a", []ReplayEvent{
		{EventID: "evt-1", Type: EventEmergency},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	updated, err := svc.repo.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, defaultEmergencyMinutes, updated.EmergencyDebtMinutes)
}

func TestApplyBatchUnknownType(t *testing.T) {
	svc, _ := newTestService(t, eveningDefaults())
	sess := mustSession(t, svc)

	// Recorded and counted, dispatch logged as a failure.
	accepted, err := svc.ApplyBatch(context.Background(), sess.ID, "client-a", []ReplayEvent{
		{EventID: "evt-1", Type: "TELEPORT"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
}
