package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReservation_CanConfirm(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 10, 0, 0, time.UTC)
	deadline := time.Date(2025, 1, 1, 12, 15, 0, 0, time.UTC)

	tests := []struct {
		name   string
		r      Reservation
		caller string
		now    time.Time
		want   bool
	}{
		{
			name:   "owner within deadline can confirm",
			r:      Reservation{UserID: "u1", Status: StatusPending, ConfirmationDeadline: deadline},
			caller: "u1", now: now, want: true,
		},
		{
			name:   "non-owner cannot confirm",
			r:      Reservation{UserID: "u1", Status: StatusPending, ConfirmationDeadline: deadline},
			caller: "u2", now: now, want: false,
		},
		{
			name:   "past deadline cannot confirm",
			r:      Reservation{UserID: "u1", Status: StatusPending, ConfirmationDeadline: deadline},
			caller: "u1", now: deadline.Add(time.Second), want: false,
		},
		{
			name:   "already confirmed cannot confirm again",
			r:      Reservation{UserID: "u1", Status: StatusConfirmed, ConfirmationDeadline: deadline},
			caller: "u1", now: now, want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.CanConfirm(tt.caller, tt.now))
		})
	}
}

func TestReservation_CanCancel(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusConfirmed, true},
		{StatusCancelled, false},
		{StatusCompleted, false},
		{StatusNoShow, false},
	}

	for _, tt := range tests {
		r := Reservation{Status: tt.status}
		assert.Equal(t, tt.want, r.CanCancel(), "status=%s", tt.status)
	}
}

func TestReservation_EndTime(t *testing.T) {
	start := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	r := Reservation{ReservationTime: start, DurationMinutes: 90}

	assert.Equal(t, start.Add(90*time.Minute), r.EndTime())
}

func TestReservation_AppendHistory(t *testing.T) {
	var r Reservation
	now := time.Now().UTC()

	r.AppendHistory(ActionCreated, "created", "u1", now)
	r.AppendHistory(ActionConfirmed, "confirmed", "u1", now.Add(time.Minute))

	assert.Len(t, r.History, 2)
	assert.Equal(t, ActionCreated, r.History[0].Action)
	assert.Equal(t, ActionConfirmed, r.History[1].Action)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusNoShow.IsTerminal())
}
