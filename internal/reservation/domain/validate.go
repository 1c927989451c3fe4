package domain

import (
	"net/mail"
	"regexp"
	"time"
)

// Policy carries the numeric business-rule thresholds configured for
// the running process (spec §6 "Configuration"). Kept as plain values,
// not a dependency on internal/config, so the domain package stays
// free of the ambient-stack import graph.
type Policy struct {
	ConfirmationExpiration time.Duration
	DefaultSessionLength   time.Duration
	MinAdvanceBooking      time.Duration
	MaxFutureDays          int
	MaxPartySize           int
}

var phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// MenuItemSelection is one requested menu-item attachment.
type MenuItemSelection struct {
	MenuItemID          string
	Quantity            int
	SpecialInstructions string
}

// CreateRequest is the caller-supplied payload for Coordinator.Create.
type CreateRequest struct {
	RestaurantID     string
	ReservationTime  time.Time
	DurationMinutes  int
	PartySize        int
	CustomerName     string
	CustomerPhone    string
	CustomerEmail    string
	SpecialRequests  string
	RemindersEnabled bool
	MenuItems        []MenuItemSelection
}

// ValidateStructural performs spec §4.7 step 1's "collect field errors,
// fail fast" structural pass. It returns a field->reason map; an empty
// map means the request is structurally sound.
func ValidateStructural(req CreateRequest) map[string]string {
	fields := make(map[string]string)

	if req.RestaurantID == "" {
		fields["restaurantId"] = "required"
	}
	if len(req.CustomerName) < 2 || len(req.CustomerName) > 100 {
		fields["customerName"] = "must be between 2 and 100 characters"
	}
	if req.CustomerPhone == "" && req.CustomerEmail == "" {
		fields["customerPhone"] = "at least one of phone or email is required"
	}
	if req.CustomerPhone != "" && !phoneRe.MatchString(req.CustomerPhone) {
		fields["customerPhone"] = "invalid phone format"
	}
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			fields["customerEmail"] = "invalid email format"
		}
	}
	if len(req.SpecialRequests) > 500 {
		fields["specialRequests"] = "must be at most 500 characters"
	}
	if req.DurationMinutes != 0 && (req.DurationMinutes < 15 || req.DurationMinutes > 480) {
		fields["durationMinutes"] = "must be between 15 and 480 minutes"
	}

	return fields
}

// ValidateTiming implements spec §4.7 steps 2-3: advance-booking window,
// future-days cap, and party size, each returning the offending field
// name so the caller can build a Validation error.
func ValidateTiming(req CreateRequest, policy Policy, now time.Time) (field, reason string, ok bool) {
	if req.ReservationTime.Before(now.Add(policy.MinAdvanceBooking)) {
		return "reservationTime", "must be at least the minimum advance-booking window from now", false
	}
	if req.ReservationTime.After(now.AddDate(0, 0, policy.MaxFutureDays)) {
		return "reservationTime", "exceeds the maximum future-booking window", false
	}
	if req.PartySize < 1 || req.PartySize > policy.MaxPartySize {
		return "partySize", "must be between 1 and the configured maximum party size", false
	}
	return "", "", true
}

// SlotKey derives the (date, time_slot) pair used to key the Quota Store.
func SlotKey(t time.Time) (date, timeSlot string) {
	return t.UTC().Format("2006-01-02"), t.UTC().Format("15:04")
}

// SlotDescriptor builds the human-readable "<date>, <time>" string spec
// §7 requires Capacity errors to carry.
func SlotDescriptor(t time.Time) string {
	date, timeSlot := SlotKey(t)
	return date + ", " + timeSlot
}
