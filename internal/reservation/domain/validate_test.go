package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validRequest() CreateRequest {
	return CreateRequest{
		RestaurantID:  "r1",
		CustomerName:  "Jane Doe",
		CustomerPhone: "+15551234567",
		PartySize:     2,
	}
}

func TestValidateStructural(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*CreateRequest)
		wantFields []string
	}{
		{name: "valid request has no errors", mutate: func(*CreateRequest) {}},
		{name: "missing restaurant id", mutate: func(r *CreateRequest) { r.RestaurantID = "" }, wantFields: []string{"restaurantId"}},
		{name: "name too short", mutate: func(r *CreateRequest) { r.CustomerName = "J" }, wantFields: []string{"customerName"}},
		{name: "no phone or email", mutate: func(r *CreateRequest) { r.CustomerPhone = "" }, wantFields: []string{"customerPhone"}},
		{name: "malformed phone", mutate: func(r *CreateRequest) { r.CustomerPhone = "abc" }, wantFields: []string{"customerPhone"}},
		{name: "malformed email", mutate: func(r *CreateRequest) { r.CustomerEmail = "not-an-email" }, wantFields: []string{"customerEmail"}},
		{name: "duration out of range", mutate: func(r *CreateRequest) { r.DurationMinutes = 5 }, wantFields: []string{"durationMinutes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			fields := ValidateStructural(req)

			if len(tt.wantFields) == 0 {
				assert.Empty(t, fields)
				return
			}
			for _, f := range tt.wantFields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestValidateTiming(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	policy := Policy{MinAdvanceBooking: time.Hour, MaxFutureDays: 90, MaxPartySize: 20}

	tests := []struct {
		name      string
		req       CreateRequest
		wantField string
		wantOK    bool
	}{
		{
			name:   "exactly at minimum advance window is ok",
			req:    CreateRequest{ReservationTime: now.Add(time.Hour), PartySize: 2},
			wantOK: true,
		},
		{
			name:      "too soon is rejected",
			req:       CreateRequest{ReservationTime: now.Add(30 * time.Minute), PartySize: 2},
			wantField: "reservationTime",
		},
		{
			name:      "too far in the future is rejected",
			req:       CreateRequest{ReservationTime: now.AddDate(0, 0, 91), PartySize: 2},
			wantField: "reservationTime",
		},
		{
			name:      "party size zero is rejected",
			req:       CreateRequest{ReservationTime: now.Add(2 * time.Hour), PartySize: 0},
			wantField: "partySize",
		},
		{
			name:      "party size over max is rejected",
			req:       CreateRequest{ReservationTime: now.Add(2 * time.Hour), PartySize: 21},
			wantField: "partySize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, _, ok := ValidateTiming(tt.req, policy, now)

			if tt.wantOK {
				assert.True(t, ok)
				return
			}
			assert.False(t, ok)
			assert.Equal(t, tt.wantField, field)
		})
	}
}

func TestSlotDescriptor(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-01, 12:00", SlotDescriptor(ts))
}
