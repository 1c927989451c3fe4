package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-core/internal/reservation/domain"
	"reservation-core/internal/reservation/quota"
	"reservation-core/internal/reservation/store"
)

type fakeAssigner struct {
	releaseCalls []string
}

func (f *fakeAssigner) Release(_ context.Context, _ string, tableID string) error {
	f.releaseCalls = append(f.releaseCalls, tableID)
	return nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, _, eventType string, _ interface{}) error {
	f.published = append(f.published, eventType)
	return nil
}

func seedPending(t *testing.T, st *store.MemoryStore, q *quota.MemoryStore, deadline time.Time) domain.Reservation {
	t.Helper()
	tableID := "table-1"
	r := domain.Reservation{
		UserID: "u1", RestaurantID: "r1", TableID: &tableID,
		ReservationTime: deadline.Add(2 * time.Hour), DurationMinutes: 90, PartySize: 4,
		Status: domain.StatusPending, ConfirmationDeadline: deadline,
	}
	saved, err := st.Save(context.Background(), r)
	require.NoError(t, err)

	date, slot := domain.SlotKey(saved.ReservationTime)
	_, err = q.TryReserve(context.Background(), "r1", date, slot, saved.PartySize)
	require.NoError(t, err)

	return saved
}

func TestReconciler_ExpirePending_CancelsAndReleases(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	deadline := time.Now().UTC().Add(-time.Minute)
	r := seedPending(t, st, q, deadline)

	rec := New(st, q, a, pub, nil, time.Minute, time.Minute, 0, 0)
	rec.expirePending(context.Background())

	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, expiredReason, got.CancellationReason)
	assert.Nil(t, got.TableID)
	assert.Contains(t, a.releaseCalls, "table-1")
	assert.Contains(t, pub.published, "ReservationCancelled")

	date, slot := domain.SlotKey(r.ReservationTime)
	qu, ok, err := q.Get(context.Background(), "r1", date, slot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, qu.CurrentReservations)
}

func TestReconciler_ExpirePending_LeavesFuturePendingAlone(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	deadline := time.Now().UTC().Add(time.Hour)
	r := seedPending(t, st, q, deadline)

	rec := New(st, q, a, pub, nil, time.Minute, time.Minute, 0, 0)
	rec.expirePending(context.Background())

	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestReconciler_ExpirePending_IsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	deadline := time.Now().UTC().Add(-time.Minute)
	r := seedPending(t, st, q, deadline)

	rec := New(st, q, a, pub, nil, time.Minute, time.Minute, 0, 0)
	rec.expirePending(context.Background())
	rec.expirePending(context.Background())

	assert.Len(t, a.releaseCalls, 1)
	assert.Len(t, pub.published, 1)

	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestReconciler_CompletePast_DefaultPolicyCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	tableID := "table-1"
	past := time.Now().UTC().Add(-3 * time.Hour)
	r, err := st.Save(context.Background(), domain.Reservation{
		UserID: "u1", RestaurantID: "r1", TableID: &tableID,
		ReservationTime: past, DurationMinutes: 60,
		Status: domain.StatusConfirmed,
	})
	require.NoError(t, err)

	rec := New(st, q, a, pub, DefaultCompletionPolicy, time.Minute, time.Minute, 0, 0)
	rec.completePast(context.Background())

	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Nil(t, got.TableID)
	assert.NotNil(t, got.CompletedAt)
	assert.Contains(t, a.releaseCalls, "table-1")
}

func TestReconciler_CompletePast_CustomPolicyCanMarkNoShow(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	past := time.Now().UTC().Add(-3 * time.Hour)
	r, err := st.Save(context.Background(), domain.Reservation{
		UserID: "u1", RestaurantID: "r1",
		ReservationTime: past, DurationMinutes: 60,
		Status: domain.StatusConfirmed,
	})
	require.NoError(t, err)

	noShowPolicy := func(domain.Reservation) domain.Status { return domain.StatusNoShow }
	rec := New(st, q, a, pub, noShowPolicy, time.Minute, time.Minute, 0, 0)
	rec.completePast(context.Background())

	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoShow, got.Status)
}

func TestReconciler_CompletePast_IgnoresNonConfirmed(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	past := time.Now().UTC().Add(-3 * time.Hour)
	r, err := st.Save(context.Background(), domain.Reservation{
		UserID: "u1", RestaurantID: "r1",
		ReservationTime: past, DurationMinutes: 60,
		Status: domain.StatusCancelled,
	})
	require.NoError(t, err)

	rec := New(st, q, a, pub, nil, time.Minute, time.Minute, 0, 0)
	rec.completePast(context.Background())

	got, err := st.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestReconciler_PurgeOld_DeletesStaleTerminalReservations(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	stale, err := st.Save(context.Background(), domain.Reservation{
		UserID: "u1", RestaurantID: "r1", Status: domain.StatusCancelled,
	})
	require.NoError(t, err)
	st.ForceUpdatedAt(stale.ID, time.Now().UTC().AddDate(0, 0, -100))

	recent, err := st.Save(context.Background(), domain.Reservation{
		UserID: "u1", RestaurantID: "r1", Status: domain.StatusCompleted,
	})
	require.NoError(t, err)

	rec := New(st, q, a, pub, nil, time.Minute, time.Minute, 0, 90*24*time.Hour)
	rec.purgeOld(context.Background())

	_, err = st.FindByID(context.Background(), stale.ID)
	assert.Error(t, err)

	_, err = st.FindByID(context.Background(), recent.ID)
	assert.NoError(t, err)
}

func TestReconciler_PurgeOld_DisabledWhenRetentionAgeIsZero(t *testing.T) {
	st := store.NewMemoryStore()
	q := quota.NewMemoryStore()
	a := &fakeAssigner{}
	pub := &fakePublisher{}

	stale, err := st.Save(context.Background(), domain.Reservation{
		UserID: "u1", RestaurantID: "r1", Status: domain.StatusCancelled,
	})
	require.NoError(t, err)
	st.ForceUpdatedAt(stale.ID, time.Now().UTC().AddDate(0, 0, -1000))

	rec := New(st, q, a, pub, nil, time.Minute, time.Minute, 0, 0)
	rec.purgeOld(context.Background())

	_, err = st.FindByID(context.Background(), stale.ID)
	assert.NoError(t, err)
}
