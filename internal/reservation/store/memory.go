package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reservation-core/internal/pkg/errs"
	"reservation-core/internal/reservation/domain"
)

// MemoryStore is a sync.RWMutex-guarded in-memory Store, used by
// coordinator/reconciler tests — same role as the teacher's
// internal/reservations/repository/memory.ReservationRepository.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]domain.Reservation
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]domain.Reservation)}
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rows[id]
	if !ok {
		return domain.Reservation{}, errs.NotFound("reservation", id)
	}
	return r, nil
}

func (m *MemoryStore) Save(_ context.Context, r domain.Reservation) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.New().String()
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	m.rows[r.ID] = r
	return r, nil
}

func (m *MemoryStore) PageByUser(_ context.Context, userID string, offset, limit int) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return paginate(out, offset, limit), nil
}

func (m *MemoryStore) PageByRestaurant(_ context.Context, restaurantID string, offset, limit int) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range m.rows {
		if r.RestaurantID == restaurantID {
			out = append(out, r)
		}
	}
	return paginate(out, offset, limit), nil
}

func (m *MemoryStore) FindExpiredPending(_ context.Context, asOf time.Time) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range m.rows {
		if r.Status == domain.StatusPending && r.ConfirmationDeadline.Before(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindUncompletedPast(_ context.Context, asOf time.Time) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range m.rows {
		if r.Status == domain.StatusConfirmed && r.EndTime().Before(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindConflicting(_ context.Context, restaurantID, tableID string, start, end time.Time) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Reservation
	for _, r := range m.rows {
		if r.RestaurantID != restaurantID || r.TableID == nil || *r.TableID != tableID {
			continue
		}
		if r.Status != domain.StatusPending && r.Status != domain.StatusConfirmed {
			continue
		}
		if r.ReservationTime.Before(end) && start.Before(r.EndTime()) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ForceUpdatedAt backdates a row's updated_at, for tests exercising
// age-based retention (PurgeTerminalBefore) without waiting real time.
func (m *MemoryStore) ForceUpdatedAt(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		r.UpdatedAt = at
		m.rows[id] = r
	}
}

func (m *MemoryStore) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, r := range m.rows {
		if r.Status.IsTerminal() && r.UpdatedAt.Before(cutoff) {
			delete(m.rows, id)
			purged++
		}
	}
	return purged, nil
}

func paginate(rows []domain.Reservation, offset, limit int) []domain.Reservation {
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
