// Package assigner implements the Table Assigner (C6): a primary
// async round-trip over the bus, falling back to a REST call against
// the restaurant service when the bus path times out or fails.
package assigner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reservation-core/internal/platform/bus"
	"reservation-core/internal/reservation/broker"
	"reservation-core/internal/reservation/events"
	"reservation-core/internal/reservation/store"
	"reservation-core/internal/reservation/tablecache"
)

// Assigner implements spec §4.6.
type Assigner struct {
	bus          *bus.Bus
	tableFind    *broker.Broker[events.TableFindResponsePayload]
	cache        *tablecache.Cache
	store        store.Store
	rest         *resty.Client
	restBaseURL  string
	logger       *zap.Logger
	findTimeout  time.Duration
}

func New(
	b *bus.Bus,
	tableFind *broker.Broker[events.TableFindResponsePayload],
	cache *tablecache.Cache,
	st store.Store,
	restBaseURL string,
	findTimeout time.Duration,
	logger *zap.Logger,
) *Assigner {
	return &Assigner{
		bus:         b,
		tableFind:   tableFind,
		cache:       cache,
		store:       st,
		rest:        resty.New().SetTimeout(findTimeout),
		restBaseURL: restBaseURL,
		findTimeout: findTimeout,
		logger:      logger,
	}
}

// FindAndAssign implements spec §4.6's primary+fallback path. It
// returns ("", nil) when no table could be found — callers (the
// coordinator) translate that into Capacity/NoSuitableTables.
func (a *Assigner) FindAndAssign(ctx context.Context, reservationID, restaurantID string, start, end time.Time, partySize int) (string, error) {
	if tableID, err := a.findViaBus(ctx, reservationID, restaurantID, start, end, partySize); err != nil {
		return "", err
	} else if tableID != "" {
		return tableID, nil
	}

	return a.findViaREST(ctx, restaurantID, start, end, partySize)
}

func (a *Assigner) findViaBus(ctx context.Context, reservationID, restaurantID string, start, end time.Time, partySize int) (string, error) {
	correlationID := uuid.New().String()
	handle, err := a.tableFind.Register(correlationID)
	if err != nil {
		return "", nil // already in flight: treat as "no answer yet", fall back
	}
	defer handle.Close()

	payload := events.TableFindRequestPayload{
		ReservationID: reservationID,
		RestaurantID:  restaurantID,
		Start:         start.UTC().Format(time.RFC3339),
		End:           end.UTC().Format(time.RFC3339),
		PartySize:     partySize,
		CorrelationID: correlationID,
	}
	if err := a.bus.Publish(ctx, events.SubjectTableFindRequest, "FindAvailableTableRequest", payload); err != nil {
		a.logger.Warn("assigner: publish table find request failed, falling back to REST", zap.Error(err))
		return "", nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.findTimeout)
	defer cancel()

	resp, err := a.tableFind.Wait(waitCtx, handle)
	if err != nil {
		return "", nil // timeout -> fallback path, per spec §4.6
	}
	if !resp.Success || resp.TableID == nil || *resp.TableID == "" {
		return "", nil
	}
	return *resp.TableID, nil
}

type restTablesResponse struct {
	Data struct {
		Tables []restTable `json:"tables"`
	} `json:"data"`
}

type restTable struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
}

// findViaREST implements spec §4.6's fallback path: GET candidates,
// filter by capacity and cache hint, then pick the first with no
// conflicting reservation, preserving response order (first-in-order wins).
func (a *Assigner) findViaREST(ctx context.Context, restaurantID string, start, end time.Time, partySize int) (string, error) {
	url := fmt.Sprintf("%s/api/restaurants/%s/tables/available", a.restBaseURL, restaurantID)

	var body restTablesResponse
	resp, err := a.rest.R().SetContext(ctx).SetResult(&body).Get(url)
	if err != nil || resp.IsError() {
		return "", nil // non-2xx or transport error -> null result per spec §6
	}

	for _, t := range body.Data.Tables {
		if t.Capacity < partySize {
			continue
		}
		if status, known := a.cache.Get(t.ID); known && status != tablecache.StatusAvailable {
			continue
		}
		conflicts, err := a.store.FindConflicting(ctx, restaurantID, t.ID, start, end)
		if err != nil {
			return "", err
		}
		if len(conflicts) == 0 {
			return t.ID, nil
		}
	}
	return "", nil
}

// Assign records the table-id on the cache and emits TableAssigned +
// TableStatusChanged(old -> RESERVED), per spec §4.6's "cache updated
// before the event is sent".
func (a *Assigner) Assign(ctx context.Context, restaurantID, tableID, reservationID string) error {
	oldStatus, known := a.cache.Get(tableID)
	if !known {
		oldStatus = tablecache.StatusAvailable
	}
	a.cache.Put(tableID, tablecache.StatusReserved)

	if err := a.bus.Publish(ctx, events.SubjectTableStatus, "TableAssigned", events.TableAssignedPayload{
		RestaurantID: restaurantID, TableID: tableID, ReservationID: reservationID,
	}); err != nil {
		return err
	}

	return a.bus.Publish(ctx, events.SubjectTableStatus, "TableStatusChanged", events.TableStatusChangedPayload{
		RestaurantID: restaurantID, TableID: tableID,
		OldStatus: string(oldStatus), NewStatus: string(tablecache.StatusReserved), ReservationID: &reservationID,
	})
}

// Release reverses Assign on cancel/expire, transitioning the cached
// status back to AVAILABLE.
func (a *Assigner) Release(ctx context.Context, restaurantID, tableID string) error {
	oldStatus, known := a.cache.Get(tableID)
	if !known {
		oldStatus = tablecache.StatusReserved
	}
	a.cache.Put(tableID, tablecache.StatusAvailable)

	return a.bus.Publish(ctx, events.SubjectTableStatus, "TableStatusChanged", events.TableStatusChangedPayload{
		RestaurantID: restaurantID, TableID: tableID,
		OldStatus: string(oldStatus), NewStatus: string(tablecache.StatusAvailable),
	})
}
