package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-core/internal/reservation/domain"
)

func TestMemoryStore_TryReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	outcome, err := s.TryReserve(ctx, "r1", "2025-01-01", "18:00", 4)
	require.NoError(t, err)
	assert.Equal(t, Ok, outcome)

	q, ok, err := s.Get(ctx, "r1", "2025-01-01", "18:00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, q.CurrentReservations)
	assert.Equal(t, 4, q.CurrentCapacity)

	require.NoError(t, s.Release(ctx, "r1", "2025-01-01", "18:00", 4))

	q, ok, err = s.Get(ctx, "r1", "2025-01-01", "18:00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, q.CurrentReservations)
	assert.Equal(t, 0, q.CurrentCapacity)
}

func TestMemoryStore_ReleaseNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(domain.NewDefaultQuota("r1", "2025-01-01", "18:00"))

	require.NoError(t, s.Release(ctx, "r1", "2025-01-01", "18:00", 4))

	q, ok, err := s.Get(ctx, "r1", "2025-01-01", "18:00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, q.CurrentReservations)
	assert.Equal(t, 0, q.CurrentCapacity)
}

func TestMemoryStore_TryReserveUnavailableWhenAtMaxReservations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(domain.Quota{
		RestaurantID: "r1", Date: "2025-01-01", TimeSlot: "18:00",
		MaxReservations: 10, CurrentReservations: 9,
		MaxCapacity: 100, CurrentCapacity: 96,
		ThresholdPercentage: 100,
	})

	outcome, err := s.TryReserve(ctx, "r1", "2025-01-01", "18:00", 4)
	require.NoError(t, err)
	assert.Equal(t, Ok, outcome)

	outcome, err = s.TryReserve(ctx, "r1", "2025-01-01", "18:00", 1)
	require.NoError(t, err)
	assert.Equal(t, Unavailable, outcome)
}

func TestMemoryStore_TryReserveCannotAccommodate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(domain.Quota{
		RestaurantID: "r1", Date: "2025-01-01", TimeSlot: "18:00",
		MaxReservations: 10, CurrentReservations: 0,
		MaxCapacity: 100, CurrentCapacity: 96,
		ThresholdPercentage: 100,
	})

	outcome, err := s.TryReserve(ctx, "r1", "2025-01-01", "18:00", 5)
	require.NoError(t, err)
	assert.Equal(t, CannotAccommodate, outcome)
}

func TestMemoryStore_CheckDoesNotMutateState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	outcome, err := s.Check(ctx, "r1", "2025-01-01", "18:00", 4)
	require.NoError(t, err)
	assert.Equal(t, Ok, outcome)

	_, ok, err := s.Get(ctx, "r1", "2025-01-01", "18:00")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_GetUnknownSlotReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "r1", "2025-01-01", "18:00")
	require.NoError(t, err)
	assert.False(t, ok)
}
