// Package store implements the Reservation Store (C4): durable
// persistence of the Reservation aggregate plus its history log and
// attached menu items, with the query surface spec §4.4 names.
package store

import (
	"context"
	"time"

	"reservation-core/internal/reservation/domain"
)

// Store is the Reservation Store contract.
type Store interface {
	FindByID(ctx context.Context, id string) (domain.Reservation, error)
	Save(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	PageByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Reservation, error)
	PageByRestaurant(ctx context.Context, restaurantID string, offset, limit int) ([]domain.Reservation, error)
	FindExpiredPending(ctx context.Context, asOf time.Time) ([]domain.Reservation, error)
	FindUncompletedPast(ctx context.Context, asOf time.Time) ([]domain.Reservation, error)
	FindConflicting(ctx context.Context, restaurantID, tableID string, start, end time.Time) ([]domain.Reservation, error)

	// PurgeTerminalBefore deletes CANCELLED/COMPLETED/NO_SHOW reservations
	// last updated before cutoff (spec §6 "scheduling.data-cleanup.age-days"),
	// returning the number of rows removed.
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
