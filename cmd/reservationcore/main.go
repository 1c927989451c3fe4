// Command reservationcore runs the reservation-management core: NATS
// consumers feeding the correlation brokers and table-status/menu-item
// projections, the reconciler tickers, and an ops-only
// healthz/metrics HTTP listener.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reservation-core/internal/config"
	"reservation-core/internal/logging"
	"reservation-core/internal/metrics"
	"reservation-core/internal/platform/bus"
	"reservation-core/internal/platform/postgres"
	"reservation-core/internal/reservation/assigner"
	"reservation-core/internal/reservation/broker"
	"reservation-core/internal/reservation/domain"
	"reservation-core/internal/reservation/events"
	"reservation-core/internal/reservation/menuitems"
	"reservation-core/internal/reservation/quota"
	"reservation-core/internal/reservation/reconciler"
	"reservation-core/internal/reservation/store"
	"reservation-core/internal/reservation/tablecache"
	"reservation-core/internal/reservation/validator"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	if err := run(logger); err != nil {
		logger.Fatal("reservationcore: fatal", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisOpt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer redisClient.Close()

	messageBus, err := bus.Connect(bus.Config{
		URL:        cfg.NATS.URL,
		StreamName: cfg.NATS.StreamName,
		Subjects: []string{
			events.SubjectReservationCreate, events.SubjectReservationUpdate, events.SubjectReservationCancel,
			events.SubjectReservationEvents, events.SubjectTableStatus,
			events.SubjectTableFindRequest, events.SubjectRestaurantValidationRequest,
			events.SubjectRestaurantTimeValidationRequest, events.SubjectRestaurantSearchRequest,
			events.SubjectRestaurantOwnershipRequest,
			events.SubjectTableFindResponse, events.SubjectRestaurantValidationResponse,
			events.SubjectRestaurantOwnershipResponse, events.SubjectRestaurantSearchResponse,
			"user.>", "menu.item.>",
		},
	})
	if err != nil {
		return fmt.Errorf("bus connect: %w", err)
	}
	defer messageBus.Close()

	validationBroker := broker.New[events.RestaurantValidationResponsePayload]("restaurant-validation", logger)
	timeValidationBroker := broker.New[events.RestaurantTimeValidationResponsePayload]("time-validation", logger)
	ownershipBroker := broker.New[events.RestaurantOwnershipResponsePayload]("ownership", logger)
	tableFindBroker := broker.New[events.TableFindResponsePayload]("table-find", logger)

	tableCache := tablecache.New()
	reservationStore := store.NewPostgresStore(pool)
	quotaStore := quota.NewPostgresStore(pool)

	menuRepo := menuitems.NewRepository(pool)
	menuCache := menuitems.NewCache(redisClient, menuRepo, cfg.Redis.TTL)

	restaurantValidator := validator.New(messageBus, validationBroker, timeValidationBroker, ownershipBroker,
		cfg.Reservation.RestaurantValidationRequestTimeout)

	tableAssigner := assigner.New(messageBus, tableFindBroker, tableCache, reservationStore,
		cfg.Restaurant.ServiceURL, cfg.Reservation.TableAvailabilityRequestTimeout, logger)

	policy := domain.Policy{
		ConfirmationExpiration: time.Duration(cfg.Reservation.ConfirmationExpirationMinutes) * time.Minute,
		DefaultSessionLength:   time.Duration(cfg.Reservation.DefaultSessionLengthMinutes) * time.Minute,
		MinAdvanceBooking:      time.Duration(cfg.Reservation.MinAdvanceBookingMinutes) * time.Minute,
		MaxFutureDays:          cfg.Reservation.MaxFutureDays,
		MaxPartySize:           cfg.Reservation.MaxPartySize,
	}

	// The Coordinator (create/confirm/cancel/update/add_menu_items) has
	// no inbound trigger wired in this process: per spec §1's non-goals,
	// the request-handling surface that would call it (HTTP, gRPC, or
	// otherwise) is out of scope for this core. main wires and runs
	// everything the Coordinator depends on so that an embedding caller
	// constructing coordinator.New(restaurantValidator, tableAssigner, ...)
	// with these same collaborators gets a fully working instance; see
	// internal/reservation/coordinator for the exported operations and
	// their tests.

	recon := reconciler.New(reservationStore, quotaStore, tableAssigner, messageBus, reconciler.DefaultCompletionPolicy,
		cfg.Scheduling.ExpiredReservationsInterval, cfg.Scheduling.DataCleanupInterval, cfg.Scheduling.DataCleanupInitialDelay,
		time.Duration(cfg.Scheduling.DataCleanupAgeDays)*24*time.Hour)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return recon.Run(gctx) })

	registerConsumer(g, gctx, messageBus, logger, cfg.NATS.StreamName,
		events.ConsumerGroup(cfg.NATS.ConsumerBase, events.GroupTableAvailability),
		[]string{events.SubjectTableFindResponse},
		map[string]bus.Handler{
			"FindAvailableTableResponse": deliverHandler(tableFindBroker, func(env bus.Envelope) (events.TableFindResponsePayload, error) {
				var p events.TableFindResponsePayload
				err := json.Unmarshal(env.Data, &p)
				return p, err
			}),
		})

	// restaurant-validation group: both restaurant existence/active
	// checks and ownership checks come from the restaurant oracle, and
	// spec §6's named delivery groups list no separate "ownership"
	// group, so both response subjects share this one durable consumer,
	// dispatched to their own broker by envelope type.
	registerConsumer(g, gctx, messageBus, logger, cfg.NATS.StreamName,
		events.ConsumerGroup(cfg.NATS.ConsumerBase, events.GroupRestaurantValidation),
		[]string{events.SubjectRestaurantValidationResponse, events.SubjectRestaurantOwnershipResponse},
		map[string]bus.Handler{
			"RestaurantValidationResponse": deliverHandler(validationBroker, func(env bus.Envelope) (events.RestaurantValidationResponsePayload, error) {
				var p events.RestaurantValidationResponsePayload
				err := json.Unmarshal(env.Data, &p)
				return p, err
			}),
			"RestaurantOwnershipResponse": deliverHandler(ownershipBroker, func(env bus.Envelope) (events.RestaurantOwnershipResponsePayload, error) {
				var p events.RestaurantOwnershipResponsePayload
				err := json.Unmarshal(env.Data, &p)
				return p, err
			}),
		})

	// time-validation group: a separate durable consumer on the same
	// subject, isolated per spec §4.1's "flood of one kind cannot starve
	// another" so a burst of existence checks never delays operating-hours
	// checks or vice versa.
	registerConsumer(g, gctx, messageBus, logger, cfg.NATS.StreamName,
		events.ConsumerGroup(cfg.NATS.ConsumerBase, events.GroupTimeValidation),
		[]string{events.SubjectRestaurantValidationResponse},
		map[string]bus.Handler{
			"ReservationTimeValidationResponse": deliverHandler(timeValidationBroker, func(env bus.Envelope) (events.RestaurantTimeValidationResponsePayload, error) {
				var p events.RestaurantTimeValidationResponsePayload
				err := json.Unmarshal(env.Data, &p)
				return p, err
			}),
		})

	registerConsumer(g, gctx, messageBus, logger, cfg.NATS.StreamName,
		events.ConsumerGroup(cfg.NATS.ConsumerBase, events.GroupMenuItem),
		[]string{"menu.item.>"},
		map[string]bus.Handler{
			"MenuItemUpserted": menuItemUpsertHandler(menuRepo, menuCache),
			"MenuItemRemoved":  menuItemRemoveHandler(menuRepo, menuCache),
		})

	// restaurant-search and user groups are named by spec §6's delivery
	// rule but this core has no component that acts on either topic
	// (no search broker kind, no audit sink); subscribing with an empty
	// handler set keeps the named group alive and every message acked
	// without ever blocking consumption, per spec's "must not block".
	registerConsumer(g, gctx, messageBus, logger, cfg.NATS.StreamName,
		events.ConsumerGroup(cfg.NATS.ConsumerBase, events.GroupRestaurantSearch),
		[]string{events.SubjectRestaurantSearchResponse}, map[string]bus.Handler{})

	registerConsumer(g, gctx, messageBus, logger, cfg.NATS.StreamName,
		events.ConsumerGroup(cfg.NATS.ConsumerBase, events.GroupUser),
		[]string{"user.>"}, map[string]bus.Handler{})

	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveOps(gctx, cfg.App.Host, cfg.App.Port, cfg.Metrics.Path) })
	}

	logger.Info("reservationcore: started", zap.String("app_mode", cfg.App.Mode))
	return g.Wait()
}

// deliverHandler adapts a typed broker.Deliver into a bus.Handler.
func deliverHandler[T any](b *broker.Broker[T], decode func(bus.Envelope) (T, error)) bus.Handler {
	return func(ctx context.Context, env bus.Envelope) error {
		payload, err := decode(env)
		if err != nil {
			return err
		}
		correlationID, err := correlationIDOf(env.Data)
		if err != nil {
			return nil
		}
		b.Deliver(correlationID, payload)
		return nil
	}
}

func correlationIDOf(data json.RawMessage) (string, error) {
	var wrapper struct {
		CorrelationID string `json:"correlation-id"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return "", err
	}
	return wrapper.CorrelationID, nil
}

func menuItemUpsertHandler(repo *menuitems.Repository, cache *menuitems.Cache) bus.Handler {
	return func(ctx context.Context, env bus.Envelope) error {
		var p events.MenuItemEventPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return err
		}
		mi := domain.MenuItem{
			ID: p.ID, RestaurantID: p.RestaurantID, Name: p.Name, Description: p.Description,
			Price: price, CategoryID: p.CategoryID, Available: p.Available, Active: p.Active,
		}
		if err := repo.Upsert(ctx, mi); err != nil {
			return err
		}
		cache.Invalidate(ctx, p.ID)
		return nil
	}
}

func menuItemRemoveHandler(repo *menuitems.Repository, cache *menuitems.Cache) bus.Handler {
	return func(ctx context.Context, env bus.Envelope) error {
		var p events.MenuItemEventPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		if err := repo.Deactivate(ctx, p.ID); err != nil {
			return err
		}
		cache.Invalidate(ctx, p.ID)
		return nil
	}
}

func registerConsumer(g *errgroup.Group, ctx context.Context, b *bus.Bus, logger *zap.Logger, streamName, groupName string, subjects []string, handlers map[string]bus.Handler) {
	consumer := bus.NewConsumer(b, logger)
	for eventType, h := range handlers {
		consumer.RegisterHandler(eventType, h)
	}
	g.Go(func() error { return consumer.Start(ctx, streamName, groupName, subjects) })
}

func serveOps(ctx context.Context, host, port, metricsPath string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(metricsPath, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf("%s:%s", host, port), Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
