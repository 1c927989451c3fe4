// Package validator implements the Restaurant Validator (C5): three
// synchronous-looking operations backed by async request/response over
// the Correlation Broker and message bus.
package validator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"reservation-core/internal/pkg/errs"
	"reservation-core/internal/platform/bus"
	"reservation-core/internal/reservation/broker"
	"reservation-core/internal/reservation/events"
)

// Validator implements spec §4.5.
type Validator struct {
	bus                *bus.Bus
	validationBroker   *broker.Broker[events.RestaurantValidationResponsePayload]
	timeValidationBroker *broker.Broker[events.RestaurantTimeValidationResponsePayload]
	ownershipBroker    *broker.Broker[events.RestaurantOwnershipResponsePayload]

	validationTimeout time.Duration
}

func New(
	b *bus.Bus,
	validationBroker *broker.Broker[events.RestaurantValidationResponsePayload],
	timeValidationBroker *broker.Broker[events.RestaurantTimeValidationResponsePayload],
	ownershipBroker *broker.Broker[events.RestaurantOwnershipResponsePayload],
	validationTimeout time.Duration,
) *Validator {
	return &Validator{
		bus:                  b,
		validationBroker:     validationBroker,
		timeValidationBroker: timeValidationBroker,
		ownershipBroker:      ownershipBroker,
		validationTimeout:    validationTimeout,
	}
}

// EnsureExistsAndActive implements spec §4.5.1.
func (v *Validator) EnsureExistsAndActive(ctx context.Context, restaurantID string) error {
	correlationID := uuid.New().String()
	handle, err := v.validationBroker.Register(correlationID)
	if err != nil {
		return errs.Transient("register validation waiter", err)
	}
	defer handle.Close()

	payload := events.RestaurantValidationRequestPayload{RestaurantID: restaurantID, CorrelationID: correlationID}
	if err := v.bus.Publish(ctx, events.SubjectRestaurantValidationRequest, "RestaurantValidationRequest", payload); err != nil {
		return errs.Transient("publish restaurant validation request", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, v.validationTimeout)
	defer cancel()

	resp, err := v.validationBroker.Wait(waitCtx, handle)
	if err != nil {
		return errs.Validation("restaurantId", "restaurant validation timed out, please retry")
	}

	if !resp.Exists {
		return errs.NotFound("restaurant", restaurantID)
	}
	if !resp.Active {
		return errs.Validation("restaurantId", "restaurant is not active")
	}
	return nil
}

// EnsureWithinOperatingHours implements spec §4.5.2.
func (v *Validator) EnsureWithinOperatingHours(ctx context.Context, restaurantID string, reservationTime time.Time) error {
	correlationID := uuid.New().String()
	handle, err := v.timeValidationBroker.Register(correlationID)
	if err != nil {
		return errs.Transient("register time validation waiter", err)
	}
	defer handle.Close()

	payload := events.RestaurantTimeValidationRequestPayload{
		RestaurantID:    restaurantID,
		CorrelationID:   correlationID,
		ReservationTime: reservationTime.UTC().Format(time.RFC3339),
	}
	if err := v.bus.Publish(ctx, events.SubjectRestaurantTimeValidationRequest, "ReservationTimeValidationRequest", payload); err != nil {
		return errs.Transient("publish time validation request", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, v.validationTimeout)
	defer cancel()

	resp, err := v.timeValidationBroker.Wait(waitCtx, handle)
	if err != nil {
		return errs.Validation("reservationTime", "operating-hours validation timed out, please retry")
	}

	if resp.ErrorMessage == "" {
		return nil
	}
	return errs.Validation("reservationTime", resp.ErrorMessage)
}

// IsOwner implements spec §4.5.3: fail-closed on timeout or error.
func (v *Validator) IsOwner(ctx context.Context, restaurantID, userID string) bool {
	correlationID := uuid.New().String()
	handle, err := v.ownershipBroker.Register(correlationID)
	if err != nil {
		return false
	}
	defer handle.Close()

	payload := events.RestaurantOwnershipRequestPayload{RestaurantID: restaurantID, UserID: userID, CorrelationID: correlationID}
	if err := v.bus.Publish(ctx, events.SubjectRestaurantOwnershipRequest, "RestaurantOwnershipRequest", payload); err != nil {
		return false
	}

	waitCtx, cancel := context.WithTimeout(ctx, v.validationTimeout)
	defer cancel()

	resp, err := v.ownershipBroker.Wait(waitCtx, handle)
	if err != nil {
		return false
	}
	if resp.ErrorMessage != "" {
		return false
	}
	return resp.IsOwner
}

// ContainsOutsideOperatingHours reports whether msg names the
// "outside operating hours" case spec §4.5.2 singles out, kept as a
// standalone helper so tests can assert on it directly.
func ContainsOutsideOperatingHours(msg string) bool {
	return strings.Contains(msg, "outside operating hours")
}
