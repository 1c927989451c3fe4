// Package config loads the reservation core's configuration from the
// environment (optionally seeded by a .env file), grouped into one
// struct per concern and processed with envconfig.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every configuration section the core needs.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	NATS        NATSConfig
	Restaurant  RestaurantConfig
	Reservation ReservationConfig
	Scheduling  SchedulingConfig
	Metrics     MetricsConfig
}

type AppConfig struct {
	Mode string `default:"dev"`
	Host string `default:"0.0.0.0"`
	Port string `default:"8080"`
}

type PostgresConfig struct {
	DSN string `required:"true"`
}

type RedisConfig struct {
	URL string `default:"redis://localhost:6379/0"`
	TTL time.Duration `default:"5m"`
}

type NATSConfig struct {
	URL          string `required:"true"`
	StreamName   string `default:"RESERVATION_CORE"`
	ConsumerBase string `default:"reservation-core"`
}

// RestaurantConfig holds the REST fallback base URL for the table assigner.
type RestaurantConfig struct {
	ServiceURL string `envconfig:"SERVICE_URL" default:"http://restaurant-service"`
}

// ReservationConfig carries spec §6's "reservation.*" names.
type ReservationConfig struct {
	ConfirmationExpirationMinutes int `envconfig:"CONFIRMATION_EXPIRATION_MINUTES" default:"15"`
	DefaultSessionLengthMinutes   int `envconfig:"DEFAULT_SESSION_LENGTH_MINUTES" default:"120"`
	MinAdvanceBookingMinutes      int `envconfig:"MIN_ADVANCE_BOOKING_MINUTES" default:"60"`
	MaxPartySize                  int `envconfig:"MAX_PARTY_SIZE" default:"20"`
	MaxFutureDays                 int `envconfig:"MAX_FUTURE_DAYS" default:"90"`

	TableAvailabilityRequestTimeout  time.Duration `envconfig:"TABLE_AVAILABILITY_REQUEST_TIMEOUT" default:"10s"`
	RestaurantValidationRequestTimeout time.Duration `envconfig:"RESTAURANT_VALIDATION_REQUEST_TIMEOUT" default:"5s"`
}

// SchedulingConfig carries spec §6's "scheduling.*" reconciler intervals.
type SchedulingConfig struct {
	ExpiredReservationsInterval time.Duration `envconfig:"EXPIRED_RESERVATIONS_INTERVAL" default:"60s"`
	DataCleanupInterval         time.Duration `envconfig:"DATA_CLEANUP_INTERVAL" default:"24h"`
	DataCleanupInitialDelay     time.Duration `envconfig:"DATA_CLEANUP_INITIAL_DELAY" default:"1h"`
	DataCleanupAgeDays          int           `envconfig:"DATA_CLEANUP_AGE_DAYS" default:"90"`
}

type MetricsConfig struct {
	Enabled bool   `default:"true"`
	Path    string `default:"/metrics"`
}

// Load reads an optional .env file relative to the working directory,
// then processes every section above from its own environment prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("unable to get working directory: %w", err)
	}

	envPath := filepath.Join(root, ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		if loadErr := godotenv.Load(envPath); loadErr != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath, loadErr)
		}
		log.Printf("level=info component=config action=load_env file=%s", envPath)
	} else if !os.IsNotExist(statErr) {
		return nil, fmt.Errorf("failed to stat env file %s: %w", envPath, statErr)
	}

	targets := map[string]interface{}{
		"APP":         &cfg.App,
		"POSTGRES":    &cfg.Postgres,
		"REDIS":       &cfg.Redis,
		"NATS":        &cfg.NATS,
		"RESTAURANT":  &cfg.Restaurant,
		"RESERVATION": &cfg.Reservation,
		"SCHEDULING":  &cfg.Scheduling,
		"METRICS":     &cfg.Metrics,
	}

	for prefix, target := range targets {
		if procErr := envconfig.Process(prefix, target); procErr != nil {
			return nil, fmt.Errorf("failed to process env for %s: %w", prefix, procErr)
		}
	}

	return cfg, nil
}
