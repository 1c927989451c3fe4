// Package coordinator implements the Reservation Coordinator (C7): it
// orchestrates create/confirm/cancel/update/add_menu_items across the
// quota store, table assigner, restaurant validator and reservation
// store, with explicit compensations on partial failure.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reservation-core/internal/logging"
	"reservation-core/internal/metrics"
	"reservation-core/internal/pkg/errs"
	"reservation-core/internal/reservation/domain"
	"reservation-core/internal/reservation/events"
	"reservation-core/internal/reservation/quota"
	"reservation-core/internal/reservation/store"
)

// RestaurantValidator is the subset of *validator.Validator the
// Coordinator depends on. Narrowed to an interface so tests can supply
// a fake instead of a live bus-backed Validator.
type RestaurantValidator interface {
	EnsureExistsAndActive(ctx context.Context, restaurantID string) error
	EnsureWithinOperatingHours(ctx context.Context, restaurantID string, reservationTime time.Time) error
	IsOwner(ctx context.Context, restaurantID, userID string) bool
}

// TableAssigner is the subset of *assigner.Assigner the Coordinator depends on.
type TableAssigner interface {
	FindAndAssign(ctx context.Context, reservationID, restaurantID string, start, end time.Time, partySize int) (string, error)
	Assign(ctx context.Context, restaurantID, tableID, reservationID string) error
	Release(ctx context.Context, restaurantID, tableID string) error
}

// MenuItemResolver is the subset of *menuitems.Cache the Coordinator depends on.
type MenuItemResolver interface {
	Resolve(ctx context.Context, id string) (domain.MenuItem, bool)
}

// Publisher is the subset of *bus.Bus the Coordinator depends on.
type Publisher interface {
	Publish(ctx context.Context, subject, eventType string, payload interface{}) error
}

// Coordinator implements spec §4.7.
type Coordinator struct {
	store     store.Store
	quota     quota.Store
	validator RestaurantValidator
	assigner  TableAssigner
	menuItems MenuItemResolver
	bus       Publisher
	policy    domain.Policy
}

func New(
	st store.Store,
	q quota.Store,
	v RestaurantValidator,
	a TableAssigner,
	mi MenuItemResolver,
	b Publisher,
	policy domain.Policy,
) *Coordinator {
	return &Coordinator{store: st, quota: q, validator: v, assigner: a, menuItems: mi, bus: b, policy: policy}
}

func (c *Coordinator) record(op, outcome string) {
	metrics.CoordinatorOperations.WithLabelValues(op, outcome).Inc()
}

// restoreQuota re-reserves a slot released in anticipation of a swap
// that then failed, undoing Update's release-before-reserve ordering.
func (c *Coordinator) restoreQuota(ctx context.Context, restaurantID, date, timeSlot string, partySize int) {
	log := logging.FromContext(ctx)
	outcome, err := c.quota.TryReserve(context.Background(), restaurantID, date, timeSlot, partySize)
	if err != nil {
		log.Error("coordinator: quota restore compensation failed", zap.Error(err))
		return
	}
	if outcome != quota.Ok {
		log.Error("coordinator: quota restore compensation could not re-reserve the released slot",
			zap.String("restaurant_id", restaurantID), zap.String("date", date), zap.String("time_slot", timeSlot))
	}
}

// Create implements spec §4.7 "create".
func (c *Coordinator) Create(ctx context.Context, req domain.CreateRequest, userID string) (domain.Reservation, error) {
	log := logging.FromContext(ctx)

	// Step 1: structural validation.
	if fields := domain.ValidateStructural(req); len(fields) > 0 {
		c.record("create", "validation")
		return domain.Reservation{}, errs.ValidationFields(fields)
	}

	now := time.Now().UTC()

	// Steps 2-3: timing and party size.
	if field, reason, ok := domain.ValidateTiming(req, c.policy, now); !ok {
		c.record("create", "validation")
		return domain.Reservation{}, errs.Validation(field, reason)
	}

	// Step 4.
	if err := c.validator.EnsureExistsAndActive(ctx, req.RestaurantID); err != nil {
		c.record("create", "validation")
		return domain.Reservation{}, err
	}

	// Step 5.
	if err := c.validator.EnsureWithinOperatingHours(ctx, req.RestaurantID, req.ReservationTime); err != nil {
		c.record("create", "validation")
		return domain.Reservation{}, err
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = int(c.policy.DefaultSessionLength / time.Minute)
	}

	date, timeSlot := domain.SlotKey(req.ReservationTime)

	// Step 6.
	outcome, err := c.quota.TryReserve(ctx, req.RestaurantID, date, timeSlot, req.PartySize)
	if err != nil {
		c.record("create", "transient")
		return domain.Reservation{}, errs.Transient("quota reservation failed", err)
	}
	if outcome != quota.Ok {
		c.record("create", "capacity")
		desc := domain.SlotDescriptor(req.ReservationTime)
		if outcome == quota.Unavailable {
			metrics.QuotaRejections.WithLabelValues("no_availability").Inc()
			return domain.Reservation{}, errs.NoAvailability(desc)
		}
		metrics.QuotaRejections.WithLabelValues("cannot_accommodate").Inc()
		return domain.Reservation{}, errs.NoSuitableTables(desc)
	}

	releaseQuota := func() {
		if rerr := c.quota.Release(context.Background(), req.RestaurantID, date, timeSlot, req.PartySize); rerr != nil {
			log.Error("coordinator: quota release compensation failed", zap.Error(rerr))
		}
	}

	// Step 7: persist pending reservation.
	r := domain.Reservation{
		UserID: userID, RestaurantID: req.RestaurantID,
		ReservationTime: req.ReservationTime, DurationMinutes: duration, PartySize: req.PartySize,
		Status: domain.StatusPending,
		CustomerName: req.CustomerName, CustomerPhone: req.CustomerPhone, CustomerEmail: req.CustomerEmail,
		SpecialRequests: req.SpecialRequests, RemindersEnabled: req.RemindersEnabled,
		ConfirmationDeadline: now.Add(c.policy.ConfirmationExpiration),
	}
	r, err = c.store.Save(ctx, r)
	if err != nil {
		releaseQuota()
		c.record("create", "transient")
		return domain.Reservation{}, errs.Transient("persist reservation failed", err)
	}

	// Step 8: find and assign a table.
	tableID, err := c.assigner.FindAndAssign(ctx, r.ID, r.RestaurantID, r.ReservationTime, r.EndTime(), r.PartySize)
	if err != nil {
		releaseQuota()
		c.record("create", "transient")
		return domain.Reservation{}, errs.Transient("table assignment failed", err)
	}
	if tableID == "" {
		releaseQuota()
		c.record("create", "capacity")
		return domain.Reservation{}, errs.NoSuitableTables(domain.SlotDescriptor(req.ReservationTime))
	}
	r.TableID = &tableID
	if r, err = c.store.Save(ctx, r); err != nil {
		releaseQuota()
		c.record("create", "transient")
		return domain.Reservation{}, errs.Transient("persist table assignment failed", err)
	}
	if err := c.assigner.Assign(ctx, r.RestaurantID, tableID, r.ID); err != nil {
		log.Warn("coordinator: table assignment event publish failed", zap.Error(err))
	}

	// Step 9.
	r.AppendHistory(domain.ActionCreated, "reservation created", userID, now)

	// Step 10: resolve menu item selections.
	for _, sel := range req.MenuItems {
		mi, ok := c.menuItems.Resolve(ctx, sel.MenuItemID)
		if !ok || !mi.Attachable() || mi.RestaurantID != r.RestaurantID {
			continue
		}
		r.MenuItems = append(r.MenuItems, domain.ReservationMenuItem{
			ReservationID: r.ID, MenuItemID: mi.ID, Quantity: sel.Quantity,
			SpecialInstructions: sel.SpecialInstructions, Price: mi.Price,
			CreatedAt: now, UpdatedAt: now,
		})
	}
	if r, err = c.store.Save(ctx, r); err != nil {
		c.record("create", "transient")
		return domain.Reservation{}, errs.Transient("persist menu items failed", err)
	}

	// Step 11.
	if err := c.bus.Publish(ctx, events.SubjectReservationCreate, "ReservationCreated", events.ReservationCreatePayload{
		ReservationID: r.ID, RestaurantID: r.RestaurantID, UserID: r.UserID,
		ReservationTime: r.ReservationTime.UTC().Format(time.RFC3339), PartySize: r.PartySize, TableID: tableID,
	}); err != nil {
		log.Warn("coordinator: reservation.create publish failed", zap.Error(err))
	}

	c.record("create", "ok")
	return r, nil
}

// Confirm implements spec §4.7 "confirm".
func (c *Coordinator) Confirm(ctx context.Context, id, userID string) (domain.Reservation, error) {
	r, err := c.store.FindByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}

	now := time.Now().UTC()
	if !r.CanConfirm(userID, now) {
		c.record("confirm", "validation")
		return domain.Reservation{}, errs.Validation("confirmationDeadline", "reservation cannot be confirmed by this caller at this time")
	}

	r.Status = domain.StatusConfirmed
	r.ConfirmedAt = &now
	r.AppendHistory(domain.ActionConfirmed, "reservation confirmed", userID, now)

	if r.TableID == nil {
		if tableID, ferr := c.assigner.FindAndAssign(ctx, r.ID, r.RestaurantID, r.ReservationTime, r.EndTime(), r.PartySize); ferr == nil && tableID != "" {
			r.TableID = &tableID
			_ = c.assigner.Assign(ctx, r.RestaurantID, tableID, r.ID)
		}
	}

	r, err = c.store.Save(ctx, r)
	if err != nil {
		c.record("confirm", "transient")
		return domain.Reservation{}, errs.Transient("persist confirm failed", err)
	}

	tableID := ""
	if r.TableID != nil {
		tableID = *r.TableID
	}
	if err := c.bus.Publish(ctx, events.SubjectReservationEvents, "ReservationConfirmed", events.ReservationConfirmedPayload{
		ReservationID: r.ID, RestaurantID: r.RestaurantID, UserID: r.UserID, TableID: tableID,
	}); err != nil {
		logging.FromContext(ctx).Warn("coordinator: reservation.events publish failed", zap.Error(err))
	}

	c.record("confirm", "ok")
	return r, nil
}

// Cancel implements spec §4.7 "cancel".
func (c *Coordinator) Cancel(ctx context.Context, id, reason, callerID string) (domain.Reservation, error) {
	r, err := c.store.FindByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}

	if !r.CanCancel() {
		c.record("cancel", "validation")
		return domain.Reservation{}, errs.Validation("status", "reservation is already in a terminal state")
	}

	if callerID != r.UserID && !c.validator.IsOwner(ctx, r.RestaurantID, callerID) {
		c.record("cancel", "validation")
		return domain.Reservation{}, errs.Validation("userId", "caller is not the reservation owner or restaurant owner")
	}

	return c.cancelAs(ctx, r, reason, callerID)
}

// cancelAs applies the CANCELLED transition and its compensations on
// behalf of performedBy. The reconciler's expire-pending pass does not
// call it; it applies the same steps in its own expireOne.
func (c *Coordinator) cancelAs(ctx context.Context, r domain.Reservation, reason, performedBy string) (domain.Reservation, error) {
	now := time.Now().UTC()
	previousStatus := r.Status

	date, timeSlot := domain.SlotKey(r.ReservationTime)
	if err := c.quota.Release(ctx, r.RestaurantID, date, timeSlot, r.PartySize); err != nil {
		logging.FromContext(ctx).Error("coordinator: quota release on cancel failed", zap.Error(err))
	}

	var tableID string
	if r.TableID != nil {
		tableID = *r.TableID
		if err := c.assigner.Release(ctx, r.RestaurantID, tableID); err != nil {
			logging.FromContext(ctx).Warn("coordinator: table release on cancel failed", zap.Error(err))
		}
		r.TableID = nil
	}

	r.Status = domain.StatusCancelled
	r.CancelledAt = &now
	r.CancellationReason = reason
	r.AppendHistory(domain.ActionCancelled, reason, performedBy, now)

	r, err := c.store.Save(ctx, r)
	if err != nil {
		c.record("cancel", "transient")
		return domain.Reservation{}, errs.Transient("persist cancel failed", err)
	}

	if err := c.bus.Publish(ctx, events.SubjectReservationCancel, "ReservationCancelled", events.ReservationCancelPayload{
		ReservationID: r.ID, RestaurantID: r.RestaurantID, UserID: r.UserID,
		PreviousStatus: string(previousStatus), Reason: reason,
	}); err != nil {
		logging.FromContext(ctx).Warn("coordinator: reservation.cancel publish failed", zap.Error(err))
	}

	c.record("cancel", "ok")
	return r, nil
}

// UpdatePatch carries the patchable fields of spec §4.7 "update"; a
// nil field means "leave unchanged".
type UpdatePatch struct {
	ReservationTime *time.Time
	PartySize       *int
	DurationMinutes *int
	CustomerName    *string
	CustomerPhone   *string
	CustomerEmail   *string
	SpecialRequests *string
}

// Update implements spec §4.7 "update".
func (c *Coordinator) Update(ctx context.Context, id string, patch UpdatePatch, userID string) (domain.Reservation, error) {
	r, err := c.store.FindByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !r.CanModify() || userID != r.UserID {
		c.record("update", "validation")
		return domain.Reservation{}, errs.Validation("userId", "reservation is not modifiable by this caller")
	}

	oldTime, oldSize := r.ReservationTime, r.PartySize
	oldDate, oldSlot := domain.SlotKey(r.ReservationTime)

	timeChanged := patch.ReservationTime != nil && !patch.ReservationTime.Equal(r.ReservationTime)
	sizeChanged := patch.PartySize != nil && *patch.PartySize != r.PartySize

	if timeChanged {
		candidate := domain.CreateRequest{ReservationTime: *patch.ReservationTime, PartySize: r.PartySize}
		if field, reason, ok := domain.ValidateTiming(candidate, c.policy, time.Now().UTC()); !ok {
			c.record("update", "validation")
			return domain.Reservation{}, errs.Validation(field, reason)
		}
	}

	newSize := r.PartySize
	if sizeChanged {
		newSize = *patch.PartySize
		if newSize < 1 || newSize > c.policy.MaxPartySize {
			c.record("update", "validation")
			return domain.Reservation{}, errs.Validation("partySize", "must be between 1 and the configured maximum party size")
		}
	}

	newTime := r.ReservationTime
	if timeChanged {
		newTime = *patch.ReservationTime
	}
	newDate, newSlot := domain.SlotKey(newTime)

	// Spec §4.7 "update" is an atomic swap: release the old slot's hold
	// before reserving the new one. Releasing first (rather than
	// reserving-then-releasing) matters even when newDate/newSlot equal
	// oldDate/oldSlot (a same-slot party-size-only change): reserving
	// against a row that still carries this reservation's own old
	// contribution would double-count it, wrongly rejecting a legitimate
	// bump when the slot is otherwise at capacity.
	if timeChanged || sizeChanged {
		if err := c.quota.Release(ctx, r.RestaurantID, oldDate, oldSlot, oldSize); err != nil {
			logging.FromContext(ctx).Error("coordinator: quota release on update failed", zap.Error(err))
		}

		outcome, err := c.quota.TryReserve(ctx, r.RestaurantID, newDate, newSlot, newSize)
		if err != nil {
			c.record("update", "transient")
			c.restoreQuota(ctx, r.RestaurantID, oldDate, oldSlot, oldSize)
			return domain.Reservation{}, errs.Transient("quota reservation failed", err)
		}
		if outcome != quota.Ok {
			c.record("update", "capacity")
			c.restoreQuota(ctx, r.RestaurantID, oldDate, oldSlot, oldSize)
			desc := domain.SlotDescriptor(newTime)
			if outcome == quota.Unavailable {
				return domain.Reservation{}, errs.NoAvailability(desc)
			}
			return domain.Reservation{}, errs.NoSuitableTables(desc)
		}
	}

	if patch.DurationMinutes != nil {
		r.DurationMinutes = *patch.DurationMinutes
	}
	r.ReservationTime = newTime
	r.PartySize = newSize
	if patch.CustomerName != nil {
		r.CustomerName = *patch.CustomerName
	}
	if patch.CustomerPhone != nil {
		r.CustomerPhone = *patch.CustomerPhone
	}
	if patch.CustomerEmail != nil {
		r.CustomerEmail = *patch.CustomerEmail
	}
	if patch.SpecialRequests != nil {
		r.SpecialRequests = *patch.SpecialRequests
	}

	if (timeChanged || sizeChanged) && r.TableID != nil {
		oldTableID := *r.TableID
		if err := c.assigner.Release(ctx, r.RestaurantID, oldTableID); err != nil {
			logging.FromContext(ctx).Warn("coordinator: table release on update failed", zap.Error(err))
		}
		r.TableID = nil
		if tableID, ferr := c.assigner.FindAndAssign(ctx, r.ID, r.RestaurantID, r.ReservationTime, r.EndTime(), r.PartySize); ferr == nil && tableID != "" {
			r.TableID = &tableID
			_ = c.assigner.Assign(ctx, r.RestaurantID, tableID, r.ID)
		}
	}

	now := time.Now().UTC()
	r.AppendHistory(domain.ActionModified, fmt.Sprintf("time %s->%s, party %d->%d", oldTime.Format(time.RFC3339), newTime.Format(time.RFC3339), oldSize, newSize), userID, now)

	r, err = c.store.Save(ctx, r)
	if err != nil {
		c.record("update", "transient")
		return domain.Reservation{}, errs.Transient("persist update failed", err)
	}

	if err := c.bus.Publish(ctx, events.SubjectReservationUpdate, "ReservationModified", events.ReservationUpdatePayload{
		ReservationID: r.ID,
		OldReservationTime: oldTime.UTC().Format(time.RFC3339), NewReservationTime: newTime.UTC().Format(time.RFC3339),
		OldPartySize: oldSize, NewPartySize: newSize,
	}); err != nil {
		logging.FromContext(ctx).Warn("coordinator: reservation.update publish failed", zap.Error(err))
	}

	c.record("update", "ok")
	return r, nil
}

// AddMenuItems implements spec §4.7 "add_menu_items".
func (c *Coordinator) AddMenuItems(ctx context.Context, id string, items []domain.MenuItemSelection, userID string) (domain.Reservation, error) {
	if len(items) == 0 {
		return domain.Reservation{}, errs.Validation("items", "at least one menu item is required")
	}

	r, err := c.store.FindByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !r.CanAttachMenuItems() || userID != r.UserID {
		c.record("add_menu_items", "validation")
		return domain.Reservation{}, errs.Validation("userId", "menu items cannot be attached in this state or by this caller")
	}

	now := time.Now().UTC()
	for _, sel := range items {
		mi, ok := c.menuItems.Resolve(ctx, sel.MenuItemID)
		if !ok || !mi.Attachable() || mi.RestaurantID != r.RestaurantID {
			continue
		}
		r.MenuItems = append(r.MenuItems, domain.ReservationMenuItem{
			ReservationID: r.ID, MenuItemID: mi.ID, Quantity: sel.Quantity,
			SpecialInstructions: sel.SpecialInstructions, Price: mi.Price,
			CreatedAt: now, UpdatedAt: now,
		})
	}

	r.AppendHistory(domain.ActionMenuItemsAdded, fmt.Sprintf("%d item selection(s) processed", len(items)), userID, now)

	r, err = c.store.Save(ctx, r)
	if err != nil {
		c.record("add_menu_items", "transient")
		return domain.Reservation{}, errs.Transient("persist menu items failed", err)
	}

	c.record("add_menu_items", "ok")
	return r, nil
}
