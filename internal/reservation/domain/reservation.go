// Package domain holds the reservation aggregate and its invariants:
// the entity types are pure data, free of storage and transport
// concerns, so the coordinator and reconciler can reason about state
// transitions without touching Postgres or NATS.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the reservation lifecycle state.
//
// STATE MACHINE:
//
//	PENDING → CONFIRMED (caller confirms before confirmation_deadline)
//	PENDING → CANCELLED (caller, owner, or system on deadline expiry)
//	CONFIRMED → CANCELLED (caller or owner)
//	CONFIRMED → COMPLETED (system, past end_time+1h; policy hook may choose NO_SHOW)
//
// CANCELLED, COMPLETED and NO_SHOW are terminal: no transition leaves them.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// SystemActor is the performed_by sentinel for reconciler-driven transitions.
const SystemActor = "SYSTEM"

// HistoryAction names the event that produced a HistoryRecord.
type HistoryAction string

const (
	ActionCreated         HistoryAction = "CREATED"
	ActionConfirmed       HistoryAction = "CONFIRMED"
	ActionCancelled       HistoryAction = "CANCELLED"
	ActionModified        HistoryAction = "MODIFIED"
	ActionMenuItemsAdded  HistoryAction = "MENU_ITEMS_ADDED"
	ActionCompleted       HistoryAction = "COMPLETED"
	ActionNoShow          HistoryAction = "NO_SHOW"
)

// HistoryRecord is an immutable, append-only audit entry on a Reservation.
type HistoryRecord struct {
	Action      HistoryAction
	Timestamp   time.Time
	Details     string
	PerformedBy string
}

// ReservationMenuItem is a priced snapshot of a menu item attached to a reservation.
type ReservationMenuItem struct {
	ReservationID       string
	MenuItemID          string
	Quantity            int
	SpecialInstructions string
	Price               decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MenuItem is the local, read-only projection of a restaurant's menu item.
type MenuItem struct {
	ID           string
	RestaurantID string
	Name         string
	Description  string
	Price        decimal.Decimal
	CategoryID   string
	Available    bool
	Active       bool
}

// Attachable reports whether the item may be snapshotted onto a reservation.
func (m MenuItem) Attachable() bool {
	return m.Active && m.Available
}

// Reservation is the aggregate root: a live booking plus its append-only
// history and attached menu items.
type Reservation struct {
	ID           string
	UserID       string
	RestaurantID string
	TableID      *string

	ReservationTime time.Time
	DurationMinutes int
	PartySize       int

	Status Status

	CustomerName  string
	CustomerPhone string
	CustomerEmail string

	SpecialRequests  string
	RemindersEnabled bool

	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmationDeadline  time.Time
	ConfirmedAt           *time.Time
	CancelledAt           *time.Time
	CompletedAt           *time.Time
	CancellationReason    string

	History    []HistoryRecord
	MenuItems  []ReservationMenuItem
}

// EndTime derives the reservation's end instant; invariant 5 requires
// this to be consistent on every read, so it is never stored.
func (r Reservation) EndTime() time.Time {
	return r.ReservationTime.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// AppendHistory appends an immutable record; history is never mutated
// or reordered once appended (invariant 3).
func (r *Reservation) AppendHistory(action HistoryAction, details, performedBy string, at time.Time) {
	r.History = append(r.History, HistoryRecord{
		Action:      action,
		Timestamp:   at,
		Details:     details,
		PerformedBy: performedBy,
	})
}

// CanConfirm reports whether caller may confirm this reservation at now.
func (r Reservation) CanConfirm(callerID string, now time.Time) bool {
	return r.Status == StatusPending && callerID == r.UserID && !now.After(r.ConfirmationDeadline)
}

// CanCancel reports whether the reservation is in a cancellable (non-terminal) state.
func (r Reservation) CanCancel() bool {
	return !r.Status.IsTerminal()
}

// CanAttachMenuItems mirrors invariant: menu items only while PENDING or CONFIRMED.
func (r Reservation) CanAttachMenuItems() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// CanModify mirrors update's eligible statuses.
func (r Reservation) CanModify() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}
