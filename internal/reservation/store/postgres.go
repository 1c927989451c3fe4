package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"reservation-core/internal/platform/postgres"
	"reservation-core/internal/reservation/domain"
)

// PostgresStore persists the Reservation aggregate across three
// tables (reservations, reservation_history, reservation_menu_items),
// grounded on the teacher's raw-SQL repository style
// (internal/reservations/repository/reservation.go) adapted from
// sqlx calls to pgxpool calls, since jmoiron/sqlx is not a declared
// teacher dependency while jackc/pgx/v5 is.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (domain.Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := scanReservation(tx.QueryRow(ctx, selectReservationByID, id))
	if err != nil {
		return domain.Reservation{}, postgres.MapNotFound(err, "reservation", id)
	}

	if r.History, err = s.loadHistory(ctx, tx, id); err != nil {
		return domain.Reservation{}, err
	}
	if r.MenuItems, err = s.loadMenuItems(ctx, tx, id); err != nil {
		return domain.Reservation{}, err
	}

	return r, tx.Commit(ctx)
}

func (s *PostgresStore) Save(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	isNew := r.ID == ""

	if isNew {
		r.ID = uuid.New().String()
		_, err = tx.Exec(ctx, insertReservation,
			r.ID, r.UserID, r.RestaurantID, r.TableID, r.ReservationTime, r.DurationMinutes, r.PartySize,
			r.Status, r.CustomerName, r.CustomerPhone, r.CustomerEmail, r.SpecialRequests, r.RemindersEnabled,
			now, now, r.ConfirmationDeadline, r.ConfirmedAt, r.CancelledAt, r.CompletedAt, r.CancellationReason,
		)
	} else {
		_, err = tx.Exec(ctx, updateReservation,
			r.TableID, r.ReservationTime, r.DurationMinutes, r.PartySize, r.Status,
			r.CustomerName, r.CustomerPhone, r.CustomerEmail, r.SpecialRequests, r.RemindersEnabled,
			now, r.ConfirmedAt, r.CancelledAt, r.CompletedAt, r.CancellationReason, r.ID,
		)
	}
	if err != nil {
		return domain.Reservation{}, err
	}
	r.UpdatedAt = now
	if isNew {
		r.CreatedAt = now
	}

	if err := s.replaceHistory(ctx, tx, r); err != nil {
		return domain.Reservation{}, err
	}
	if err := s.replaceMenuItems(ctx, tx, r); err != nil {
		return domain.Reservation{}, err
	}

	return r, tx.Commit(ctx)
}

func (s *PostgresStore) loadHistory(ctx context.Context, tx pgx.Tx, reservationID string) ([]domain.HistoryRecord, error) {
	rows, err := tx.Query(ctx, selectHistory, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var h domain.HistoryRecord
		if err := rows.Scan(&h.Action, &h.Timestamp, &h.Details, &h.PerformedBy); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) loadMenuItems(ctx context.Context, tx pgx.Tx, reservationID string) ([]domain.ReservationMenuItem, error) {
	rows, err := tx.Query(ctx, selectMenuItems, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReservationMenuItem
	for rows.Next() {
		var mi domain.ReservationMenuItem
		var price decimal.Decimal
		if err := rows.Scan(&mi.MenuItemID, &mi.Quantity, &mi.SpecialInstructions, &price, &mi.CreatedAt, &mi.UpdatedAt); err != nil {
			return nil, err
		}
		mi.ReservationID = reservationID
		mi.Price = price
		out = append(out, mi)
	}
	return out, rows.Err()
}

// replaceHistory appends only rows not yet persisted: history is
// append-only, so this inserts every record past the previously
// persisted count rather than deleting and rewriting.
func (s *PostgresStore) replaceHistory(ctx context.Context, tx pgx.Tx, r domain.Reservation) error {
	var persisted int
	if err := tx.QueryRow(ctx, countHistory, r.ID).Scan(&persisted); err != nil {
		return err
	}
	for _, h := range r.History[persisted:] {
		if _, err := tx.Exec(ctx, insertHistory, r.ID, h.Action, h.Timestamp, h.Details, h.PerformedBy); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) replaceMenuItems(ctx context.Context, tx pgx.Tx, r domain.Reservation) error {
	if _, err := tx.Exec(ctx, deleteMenuItems, r.ID); err != nil {
		return err
	}
	for _, mi := range r.MenuItems {
		if _, err := tx.Exec(ctx, insertMenuItem, r.ID, mi.MenuItemID, mi.Quantity, mi.SpecialInstructions, mi.Price, mi.CreatedAt, mi.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) PageByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Reservation, error) {
	return s.pageBy(ctx, selectByUser, userID, offset, limit)
}

func (s *PostgresStore) PageByRestaurant(ctx context.Context, restaurantID string, offset, limit int) ([]domain.Reservation, error) {
	return s.pageBy(ctx, selectByRestaurant, restaurantID, offset, limit)
}

func (s *PostgresStore) pageBy(ctx context.Context, query, key string, offset, limit int) ([]domain.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, query, key, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *PostgresStore) FindExpiredPending(ctx context.Context, asOf time.Time) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx, selectExpiredPending, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *PostgresStore) FindUncompletedPast(ctx context.Context, asOf time.Time) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx, selectUncompletedPast, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *PostgresStore) FindConflicting(ctx context.Context, restaurantID, tableID string, start, end time.Time) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx, selectConflicting, restaurantID, tableID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *PostgresStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeTerminalBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(
		&r.ID, &r.UserID, &r.RestaurantID, &r.TableID, &r.ReservationTime, &r.DurationMinutes, &r.PartySize,
		&r.Status, &r.CustomerName, &r.CustomerPhone, &r.CustomerEmail, &r.SpecialRequests, &r.RemindersEnabled,
		&r.CreatedAt, &r.UpdatedAt, &r.ConfirmationDeadline, &r.ConfirmedAt, &r.CancelledAt, &r.CompletedAt, &r.CancellationReason,
	)
	return r, err
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const reservationColumns = `id, user_id, restaurant_id, table_id, reservation_time, duration_minutes, party_size,
	status, customer_name, customer_phone, customer_email, special_requests, reminders_enabled,
	created_at, updated_at, confirmation_deadline, confirmed_at, cancelled_at, completed_at, cancellation_reason`

const selectReservationByID = `SELECT ` + reservationColumns + ` FROM reservations WHERE id=$1`
const selectByUser = `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
const selectByRestaurant = `SELECT ` + reservationColumns + ` FROM reservations WHERE restaurant_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
const selectExpiredPending = `SELECT ` + reservationColumns + ` FROM reservations WHERE status='PENDING' AND confirmation_deadline < $1`
const selectUncompletedPast = `SELECT ` + reservationColumns + ` FROM reservations WHERE status='CONFIRMED' AND (reservation_time + (duration_minutes || ' minutes')::interval) < $1`
const selectConflicting = `SELECT ` + reservationColumns + ` FROM reservations
	WHERE restaurant_id=$1 AND table_id=$2 AND status IN ('PENDING','CONFIRMED')
	  AND reservation_time < $4 AND (reservation_time + (duration_minutes || ' minutes')::interval) > $3`

const insertReservation = `INSERT INTO reservations
	(id, user_id, restaurant_id, table_id, reservation_time, duration_minutes, party_size, status,
	 customer_name, customer_phone, customer_email, special_requests, reminders_enabled,
	 created_at, updated_at, confirmation_deadline, confirmed_at, cancelled_at, completed_at, cancellation_reason)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

const updateReservation = `UPDATE reservations SET
	table_id=$1, reservation_time=$2, duration_minutes=$3, party_size=$4, status=$5,
	customer_name=$6, customer_phone=$7, customer_email=$8, special_requests=$9, reminders_enabled=$10,
	updated_at=$11, confirmed_at=$12, cancelled_at=$13, completed_at=$14, cancellation_reason=$15
	WHERE id=$16`

const selectHistory = `SELECT action, timestamp, details, performed_by FROM reservation_history WHERE reservation_id=$1 ORDER BY timestamp ASC`
const countHistory = `SELECT COUNT(*) FROM reservation_history WHERE reservation_id=$1`
const insertHistory = `INSERT INTO reservation_history (reservation_id, action, timestamp, details, performed_by) VALUES ($1,$2,$3,$4,$5)`

const purgeTerminalBefore = `DELETE FROM reservations WHERE status IN ('CANCELLED','COMPLETED','NO_SHOW') AND updated_at < $1`

const selectMenuItems = `SELECT menu_item_id, quantity, special_instructions, price, created_at, updated_at FROM reservation_menu_items WHERE reservation_id=$1`
const deleteMenuItems = `DELETE FROM reservation_menu_items WHERE reservation_id=$1`
const insertMenuItem = `INSERT INTO reservation_menu_items (reservation_id, menu_item_id, quantity, special_instructions, price, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
