// Package menuitems keeps the local MenuItem projection (spec §1's
// "menu data is a projection kept in sync from inbound events and is
// read-only to the core"). A Postgres table is the source of truth,
// upserted only by inbound menu.item.* events; a Redis read-through
// cache sits in front of it for the hot resolve-at-attach-time path.
//
// Redis wiring grounded directly on the teacher's
// internal/adapters/cache/redis/book.go read-through pattern.
package menuitems

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"reservation-core/internal/reservation/domain"
)

// Repository is the Postgres-backed projection table.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (domain.MenuItem, error) {
	const q = `SELECT id, restaurant_id, name, description, price, category_id, available, active FROM menu_items WHERE id=$1`
	var mi domain.MenuItem
	err := r.pool.QueryRow(ctx, q, id).Scan(&mi.ID, &mi.RestaurantID, &mi.Name, &mi.Description, &mi.Price, &mi.CategoryID, &mi.Available, &mi.Active)
	return mi, err
}

// Upsert writes the projection row driven by an inbound menu.item.* event.
func (r *Repository) Upsert(ctx context.Context, mi domain.MenuItem) error {
	const q = `INSERT INTO menu_items (id, restaurant_id, name, description, price, category_id, available, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			restaurant_id=EXCLUDED.restaurant_id, name=EXCLUDED.name, description=EXCLUDED.description,
			price=EXCLUDED.price, category_id=EXCLUDED.category_id, available=EXCLUDED.available, active=EXCLUDED.active`
	_, err := r.pool.Exec(ctx, q, mi.ID, mi.RestaurantID, mi.Name, mi.Description, mi.Price, mi.CategoryID, mi.Available, mi.Active)
	return err
}

// Deactivate marks a projected item inactive without deleting it, so
// historical ReservationMenuItem snapshots still resolve for reads.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	const q = `UPDATE menu_items SET active=false WHERE id=$1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// Cache is the Redis read-through in front of Repository.
type Cache struct {
	redis *redis.Client
	repo  *Repository
	ttl   time.Duration
}

func NewCache(rc *redis.Client, repo *Repository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{redis: rc, repo: repo, ttl: ttl}
}

// Resolve returns the projected MenuItem for id, or (zero, false) if
// it does not exist. Callers (coordinator step 10) treat false as
// "skip this selection" per spec's intentional stale-UI tolerance.
func (c *Cache) Resolve(ctx context.Context, id string) (domain.MenuItem, bool) {
	if data, err := c.redis.Get(ctx, cacheKey(id)).Result(); err == nil {
		var mi domain.MenuItem
		if json.Unmarshal([]byte(data), &mi) == nil {
			return mi, true
		}
	}

	mi, err := c.repo.Get(ctx, id)
	if err != nil {
		if err != pgx.ErrNoRows {
			// best-effort projection: a transient store error degrades to
			// "not resolvable" rather than failing the whole attach step.
		}
		return domain.MenuItem{}, false
	}

	if payload, err := json.Marshal(mi); err == nil {
		_ = c.redis.Set(ctx, cacheKey(id), payload, c.ttl).Err()
	}
	return mi, true
}

// Invalidate drops the cached entry, called after Upsert/Deactivate so
// stale projections don't linger for the cache's TTL.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	_ = c.redis.Del(ctx, cacheKey(id)).Err()
}

func cacheKey(id string) string { return "menuitem:" + id }
