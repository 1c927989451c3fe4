package quota

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reservation-core/internal/reservation/domain"
)

// PostgresStore implements Store with a conditional UPDATE ... WHERE
// matching-current-values and a bounded retry on conflict, per spec
// §4.3's stated implementation choice. Query shape grounded on the
// teacher's raw-SQL repository style
// (internal/reservations/repository/reservation.go).
type PostgresStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, maxAttempts: 5}
}

func (s *PostgresStore) Get(ctx context.Context, restaurantID, date, timeSlot string) (domain.Quota, bool, error) {
	const q = `SELECT max_reservations, current_reservations, max_capacity, current_capacity, threshold_percentage
	           FROM reservation_quotas WHERE restaurant_id=$1 AND slot_date=$2 AND time_slot=$3`

	var out domain.Quota
	out.RestaurantID, out.Date, out.TimeSlot = restaurantID, date, timeSlot

	err := s.pool.QueryRow(ctx, q, restaurantID, date, timeSlot).Scan(
		&out.MaxReservations, &out.CurrentReservations, &out.MaxCapacity, &out.CurrentCapacity, &out.ThresholdPercentage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quota{}, false, nil
	}
	if err != nil {
		return domain.Quota{}, false, err
	}
	return out, true, nil
}

// TryReserve atomically increments current_reservations/current_capacity
// if the slot has availability, creating the row with defaults on first
// use. The row does not exist -> does exist are handled as two distinct
// atomic statements, retried on a conflicting concurrent writer.
func (s *PostgresStore) TryReserve(ctx context.Context, restaurantID, date, timeSlot string, partySize int) (Outcome, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		outcome, retry, err := s.tryReserveOnce(ctx, restaurantID, date, timeSlot, partySize)
		if err != nil {
			return Ok, err
		}
		if !retry {
			return outcome, nil
		}
	}
	return Ok, errConflictRetriesExhausted
}

var errConflictRetriesExhausted = errors.New("quota: try_reserve exhausted retries under contention")

func (s *PostgresStore) tryReserveOnce(ctx context.Context, restaurantID, date, timeSlot string, partySize int) (outcome Outcome, retry bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ok, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, exists, err := s.getForUpdate(ctx, tx, restaurantID, date, timeSlot)
	if err != nil {
		return Ok, false, err
	}
	if !exists {
		q = domain.NewDefaultQuota(restaurantID, date, timeSlot)
		if !q.HasAvailability() || !q.CanAccommodate(partySize) {
			// unreachable with zero usage against positive defaults, but
			// keep the check for symmetry with non-default max values.
			return classify(q, partySize), false, nil
		}
		const insert = `INSERT INTO reservation_quotas
			(restaurant_id, slot_date, time_slot, max_reservations, current_reservations, max_capacity, current_capacity, threshold_percentage)
			VALUES ($1,$2,$3,$4,1,$5,$6,$7)
			ON CONFLICT (restaurant_id, slot_date, time_slot) DO NOTHING`
		tag, err := tx.Exec(ctx, insert, restaurantID, date, timeSlot, q.MaxReservations, q.MaxCapacity, partySize, q.ThresholdPercentage)
		if err != nil {
			return Ok, false, err
		}
		if tag.RowsAffected() == 0 {
			// a concurrent caller created the row first; retry against it.
			return Ok, true, nil
		}
		return Ok, false, tx.Commit(ctx)
	}

	if outcome := classify(q, partySize); outcome != Ok {
		return outcome, false, nil
	}

	const update = `UPDATE reservation_quotas
		SET current_reservations = current_reservations + 1, current_capacity = current_capacity + $1
		WHERE restaurant_id=$2 AND slot_date=$3 AND time_slot=$4
		  AND current_reservations=$5 AND current_capacity=$6`
	tag, err := tx.Exec(ctx, update, partySize, restaurantID, date, timeSlot, q.CurrentReservations, q.CurrentCapacity)
	if err != nil {
		return Ok, false, err
	}
	if tag.RowsAffected() == 0 {
		return Ok, true, nil // lost the race against a concurrent writer; retry
	}
	return Ok, false, tx.Commit(ctx)
}

func (s *PostgresStore) getForUpdate(ctx context.Context, tx pgx.Tx, restaurantID, date, timeSlot string) (domain.Quota, bool, error) {
	const q = `SELECT max_reservations, current_reservations, max_capacity, current_capacity, threshold_percentage
	           FROM reservation_quotas WHERE restaurant_id=$1 AND slot_date=$2 AND time_slot=$3 FOR UPDATE`

	var out domain.Quota
	out.RestaurantID, out.Date, out.TimeSlot = restaurantID, date, timeSlot

	err := tx.QueryRow(ctx, q, restaurantID, date, timeSlot).Scan(
		&out.MaxReservations, &out.CurrentReservations, &out.MaxCapacity, &out.CurrentCapacity, &out.ThresholdPercentage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quota{}, false, nil
	}
	if err != nil {
		return domain.Quota{}, false, err
	}
	return out, true, nil
}

func classify(q domain.Quota, partySize int) Outcome {
	if !q.HasAvailability() {
		return Unavailable
	}
	if !q.CanAccommodate(partySize) {
		return CannotAccommodate
	}
	return Ok
}

// Release atomically decrements the counters, clamped at 0. A
// missing row is a no-op per spec §4.3.
func (s *PostgresStore) Release(ctx context.Context, restaurantID, date, timeSlot string, partySize int) error {
	const update = `UPDATE reservation_quotas
		SET current_reservations = GREATEST(current_reservations - 1, 0),
		    current_capacity = GREATEST(current_capacity - $1, 0)
		WHERE restaurant_id=$2 AND slot_date=$3 AND time_slot=$4`
	_, err := s.pool.Exec(ctx, update, partySize, restaurantID, date, timeSlot)
	return err
}

// Check is a read-only probe: no row means defaults, which always have
// availability for a non-crazy party size.
func (s *PostgresStore) Check(ctx context.Context, restaurantID, date, timeSlot string, partySize int) (Outcome, error) {
	q, exists, err := s.Get(ctx, restaurantID, date, timeSlot)
	if err != nil {
		return Ok, err
	}
	if !exists {
		q = domain.NewDefaultQuota(restaurantID, date, timeSlot)
	}
	return classify(q, partySize), nil
}
