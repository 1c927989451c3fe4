// Package events defines the wire payloads and NATS subjects spec §6
// names, field-for-field. Subjects are used literally as JetStream
// subjects (dots are already the NATS token separator); the envelope
// Type carried by internal/platform/bus is a separate event name such
// as "ReservationCreated".
package events

// Outbound subjects (emitted by the core).
const (
	SubjectReservationCreate = "reservation.create"
	SubjectReservationUpdate = "reservation.update"
	SubjectReservationCancel = "reservation.cancel"
	SubjectReservationEvents = "reservation.events"
	SubjectTableStatus       = "table.status"

	SubjectTableFindRequest                 = "table.find.request"
	SubjectRestaurantValidationRequest      = "restaurant.validation.request"
	SubjectRestaurantTimeValidationRequest  = "restaurant.time-validation.request"
	SubjectRestaurantSearchRequest          = "restaurant.search.request"
	SubjectRestaurantOwnershipRequest       = "restaurant.ownership.request"
)

// Inbound subjects (consumed by the core).
const (
	SubjectTableFindResponse            = "table.find.response"
	SubjectRestaurantValidationResponse = "restaurant.validation.response"
	SubjectRestaurantOwnershipResponse  = "restaurant.ownership.response"
	SubjectRestaurantSearchResponse     = "restaurant.search.response"
	SubjectUserWildcard                 = "user.*"
	SubjectMenuItemWildcard             = "menu.item.*"
)

// Consumer group ids, one per event kind, per spec §6's delivery rule.
func ConsumerGroup(base, kind string) string { return base + "-" + kind }

const (
	GroupUser                = "user"
	GroupTableAvailability   = "table-availability"
	GroupRestaurantValidation = "restaurant-validation"
	GroupTimeValidation      = "time-validation"
	GroupRestaurantSearch    = "restaurant-search"
	GroupMenuItem            = "menu-item"
)

// --- outbound payloads ---

type ReservationCreatePayload struct {
	ReservationID   string `json:"reservation-id"`
	RestaurantID    string `json:"restaurant-id"`
	UserID          string `json:"user-id"`
	ReservationTime string `json:"reservation-time"`
	PartySize       int    `json:"party-size"`
	TableID         string `json:"table-id"`
}

type ReservationUpdatePayload struct {
	ReservationID      string `json:"reservation-id"`
	OldReservationTime string `json:"old-reservation-time"`
	NewReservationTime string `json:"new-reservation-time"`
	OldPartySize       int    `json:"old-party-size"`
	NewPartySize       int    `json:"new-party-size"`
}

type ReservationCancelPayload struct {
	ReservationID    string `json:"reservation-id"`
	RestaurantID     string `json:"restaurant-id"`
	UserID           string `json:"user-id"`
	PreviousStatus   string `json:"previous-status"`
	Reason           string `json:"reason"`
}

type ReservationConfirmedPayload struct {
	ReservationID string `json:"reservation-id"`
	RestaurantID  string `json:"restaurant-id"`
	UserID        string `json:"user-id"`
	TableID       string `json:"table-id"`
}

type TableAssignedPayload struct {
	RestaurantID  string `json:"restaurant-id"`
	TableID       string `json:"table-id"`
	ReservationID string `json:"reservation-id"`
}

type TableStatusChangedPayload struct {
	RestaurantID  string  `json:"restaurant-id"`
	TableID       string  `json:"table-id"`
	OldStatus     string  `json:"old-status"`
	NewStatus     string  `json:"new-status"`
	ReservationID *string `json:"reservation-id,omitempty"`
}

type TableFindRequestPayload struct {
	ReservationID string `json:"reservation-id"`
	RestaurantID  string `json:"restaurant-id"`
	Start         string `json:"start"`
	End           string `json:"end"`
	PartySize     int    `json:"party-size"`
	CorrelationID string `json:"correlation-id"`
}

type RestaurantValidationRequestPayload struct {
	RestaurantID  string `json:"restaurant-id"`
	CorrelationID string `json:"correlation-id"`
}

type RestaurantTimeValidationRequestPayload struct {
	RestaurantID    string `json:"restaurant-id"`
	CorrelationID   string `json:"correlation-id"`
	ReservationTime string `json:"reservation-time"`
}

type RestaurantOwnershipRequestPayload struct {
	RestaurantID  string `json:"restaurant-id"`
	UserID        string `json:"user-id"`
	CorrelationID string `json:"correlation-id"`
}

// --- inbound payloads ---

type TableFindResponsePayload struct {
	CorrelationID string  `json:"correlation-id"`
	Success       bool    `json:"success"`
	TableID       *string `json:"table-id,omitempty"`
	ErrorMessage  string  `json:"error-message,omitempty"`
}

type RestaurantValidationResponsePayload struct {
	CorrelationID string `json:"correlation-id"`
	RestaurantID  string `json:"restaurant-id"`
	Exists        bool   `json:"exists"`
	Active        bool   `json:"active"`
	ErrorMessage  string `json:"error-message,omitempty"`
}

type RestaurantOwnershipResponsePayload struct {
	CorrelationID string `json:"correlation-id"`
	RestaurantID  string `json:"restaurant-id"`
	UserID        string `json:"user-id"`
	IsOwner       bool   `json:"is-owner"`
	ErrorMessage  string `json:"error-message,omitempty"`
}

// RestaurantTimeValidationResponsePayload shares TableFindResponse's
// "correlation-id + error-message" shape; spec §4.5.2 interprets the
// error-message substring rather than a boolean field.
type RestaurantTimeValidationResponsePayload struct {
	CorrelationID string `json:"correlation-id"`
	ErrorMessage  string `json:"error-message,omitempty"`
}

type MenuItemEventPayload struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant-id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	CategoryID   string `json:"category-id"`
	Available    bool   `json:"available"`
	Active       bool   `json:"active"`
}
