package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuota_HasAvailability(t *testing.T) {
	tests := []struct {
		name string
		q    Quota
		want bool
	}{
		{
			name: "below both limits has availability",
			q:    Quota{CurrentReservations: 9, MaxReservations: 10, CurrentCapacity: 96, MaxCapacity: 100, ThresholdPercentage: 100},
			want: true,
		},
		{
			name: "reservation count at max is full",
			q:    Quota{CurrentReservations: 10, MaxReservations: 10, CurrentCapacity: 50, MaxCapacity: 100, ThresholdPercentage: 100},
			want: false,
		},
		{
			name: "capacity percentage at threshold is full (strict less-than)",
			q:    Quota{CurrentReservations: 0, MaxReservations: 10, CurrentCapacity: 80, MaxCapacity: 100, ThresholdPercentage: 80},
			want: false,
		},
		{
			name: "capacity percentage below threshold has availability",
			q:    Quota{CurrentReservations: 0, MaxReservations: 10, CurrentCapacity: 79, MaxCapacity: 100, ThresholdPercentage: 80},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.HasAvailability())
		})
	}
}

func TestQuota_CanAccommodate(t *testing.T) {
	q := Quota{CurrentCapacity: 96, MaxCapacity: 100}

	assert.True(t, q.CanAccommodate(4))
	assert.False(t, q.CanAccommodate(5))
}

func TestNewDefaultQuota(t *testing.T) {
	q := NewDefaultQuota("r1", "2025-01-01", "12:00")

	assert.Equal(t, DefaultMaxReservations, q.MaxReservations)
	assert.Equal(t, DefaultMaxCapacity, q.MaxCapacity)
	assert.True(t, q.HasAvailability())
}
