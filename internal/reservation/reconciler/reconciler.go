// Package reconciler implements the Expiration Reconciler (C8): two
// independent ticker-driven passes. The first expires past-deadline
// PENDING reservations. The second is the data-cleanup task named in
// spec §6: on each tick it completes past-end-time CONFIRMED
// reservations, then purges terminal reservations older than the
// configured retention age.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reservation-core/internal/logging"
	"reservation-core/internal/metrics"
	"reservation-core/internal/reservation/domain"
	"reservation-core/internal/reservation/events"
	"reservation-core/internal/reservation/quota"
	"reservation-core/internal/reservation/store"
)

const expiredReason = "Confirmation deadline expired"

// TableReleaser is the subset of *assigner.Assigner the Reconciler
// depends on. Narrowed to an interface so tests can supply a fake
// instead of a live bus-backed Assigner.
type TableReleaser interface {
	Release(ctx context.Context, restaurantID, tableID string) error
}

// Publisher is the subset of *bus.Bus the Reconciler depends on.
type Publisher interface {
	Publish(ctx context.Context, subject, eventType string, payload interface{}) error
}

// CompletionPolicy decides the terminal status a past-end-time
// CONFIRMED reservation transitions to. The default always returns
// COMPLETED; a per-restaurant no-show policy can be substituted
// without touching the reconciler's pass logic (spec §9 Open Question 1).
type CompletionPolicy func(r domain.Reservation) domain.Status

// DefaultCompletionPolicy always completes; the source this spec was
// distilled from does the same unconditionally.
func DefaultCompletionPolicy(domain.Reservation) domain.Status { return domain.StatusCompleted }

// Reconciler runs the two passes spec §4.8 describes.
type Reconciler struct {
	store    store.Store
	quota    quota.Store
	assigner TableReleaser
	bus      Publisher
	policy   CompletionPolicy

	expireInterval   time.Duration
	completeInterval time.Duration
	completeDelay    time.Duration
	retentionAge     time.Duration
}

func New(
	st store.Store,
	q quota.Store,
	a TableReleaser,
	b Publisher,
	policy CompletionPolicy,
	expireInterval, completeInterval, completeDelay, retentionAge time.Duration,
) *Reconciler {
	if policy == nil {
		policy = DefaultCompletionPolicy
	}
	return &Reconciler{
		store: st, quota: q, assigner: a, bus: b, policy: policy,
		expireInterval: expireInterval, completeInterval: completeInterval, completeDelay: completeDelay,
		retentionAge: retentionAge,
	}
}

// Run blocks until ctx is cancelled, running both passes on independent
// tickers via errgroup, in the teacher's graceful-shutdown idiom.
func (r *Reconciler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(r.expireInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				r.expirePending(gctx)
			}
		}
	})

	g.Go(func() error {
		timer := time.NewTimer(r.completeDelay)
		defer timer.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-timer.C:
				r.completePast(gctx)
				r.purgeOld(gctx)
				timer.Reset(r.completeInterval)
			}
		}
	})

	return g.Wait()
}

// expirePending implements spec §4.8's "expire-pending pass".
func (r *Reconciler) expirePending(ctx context.Context) {
	log := logging.FromContext(ctx)
	now := time.Now().UTC()

	rows, err := r.store.FindExpiredPending(ctx, now)
	if err != nil {
		log.Error("reconciler: find_expired_pending failed", zap.Error(err))
		return
	}

	for _, res := range rows {
		if err := r.expireOne(ctx, res); err != nil {
			log.Error("reconciler: expire reservation failed", zap.String("reservation_id", res.ID), zap.Error(err))
			metrics.ReconcilerActions.WithLabelValues("expire-pending", "error").Inc()
			continue
		}
		metrics.ReconcilerActions.WithLabelValues("expire-pending", "ok").Inc()
	}
}

func (r *Reconciler) expireOne(ctx context.Context, res domain.Reservation) error {
	// Idempotence (invariant 7): re-check status, since the interactive
	// path may have confirmed or cancelled it since the query ran.
	if res.Status != domain.StatusPending {
		return nil
	}

	now := time.Now().UTC()
	previousStatus := res.Status

	date, timeSlot := domain.SlotKey(res.ReservationTime)
	if err := r.quota.Release(ctx, res.RestaurantID, date, timeSlot, res.PartySize); err != nil {
		return err
	}

	if res.TableID != nil {
		if err := r.assigner.Release(ctx, res.RestaurantID, *res.TableID); err != nil {
			logging.FromContext(ctx).Warn("reconciler: table release failed", zap.Error(err))
		}
		res.TableID = nil
	}

	res.Status = domain.StatusCancelled
	res.CancelledAt = &now
	res.CancellationReason = expiredReason
	res.AppendHistory(domain.ActionCancelled, expiredReason, domain.SystemActor, now)

	res, err := r.store.Save(ctx, res)
	if err != nil {
		return err
	}

	return r.bus.Publish(ctx, events.SubjectReservationCancel, "ReservationCancelled", events.ReservationCancelPayload{
		ReservationID: res.ID, RestaurantID: res.RestaurantID, UserID: res.UserID,
		PreviousStatus: string(previousStatus), Reason: expiredReason,
	})
}

// completePast implements spec §4.8's "complete-past pass": reservations
// whose end_time is more than an hour in the past.
func (r *Reconciler) completePast(ctx context.Context) {
	log := logging.FromContext(ctx)
	asOf := time.Now().UTC().Add(-time.Hour)

	rows, err := r.store.FindUncompletedPast(ctx, asOf)
	if err != nil {
		log.Error("reconciler: find_uncompleted_past failed", zap.Error(err))
		return
	}

	for _, res := range rows {
		if err := r.completeOne(ctx, res); err != nil {
			log.Error("reconciler: complete reservation failed", zap.String("reservation_id", res.ID), zap.Error(err))
			metrics.ReconcilerActions.WithLabelValues("complete-past", "error").Inc()
			continue
		}
		metrics.ReconcilerActions.WithLabelValues("complete-past", "ok").Inc()
	}
}

func (r *Reconciler) completeOne(ctx context.Context, res domain.Reservation) error {
	if res.Status != domain.StatusConfirmed {
		return nil
	}

	now := time.Now().UTC()
	newStatus := r.policy(res)
	if newStatus != domain.StatusCompleted && newStatus != domain.StatusNoShow {
		newStatus = domain.StatusCompleted
	}

	if res.TableID != nil {
		if err := r.assigner.Release(ctx, res.RestaurantID, *res.TableID); err != nil {
			logging.FromContext(ctx).Warn("reconciler: table release failed", zap.Error(err))
		}
		res.TableID = nil
	}

	res.Status = newStatus
	res.CompletedAt = &now
	action := domain.ActionCompleted
	if newStatus == domain.StatusNoShow {
		action = domain.ActionNoShow
	}
	res.AppendHistory(action, "", domain.SystemActor, now)

	_, err := r.store.Save(ctx, res)
	return err
}

// purgeOld implements spec §6's "scheduling.data-cleanup.age-days":
// terminal reservations (CANCELLED/COMPLETED/NO_SHOW) are retained for
// retentionAge before being deleted outright. A zero retentionAge
// disables purging, since a cutoff of "now" would delete rows the
// instant they turn terminal.
func (r *Reconciler) purgeOld(ctx context.Context) {
	if r.retentionAge <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-r.retentionAge)
	purged, err := r.store.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		logging.FromContext(ctx).Error("reconciler: purge_terminal_before failed", zap.Error(err))
		metrics.ReconcilerActions.WithLabelValues("purge-old", "error").Inc()
		return
	}

	metrics.ReconcilerActions.WithLabelValues("purge-old", "ok").Add(float64(purged))
}
