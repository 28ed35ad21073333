package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "CustodyNode"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultReservationTTL = 5 * time.Minute
	defaultNotaryName     = "notary"
	defaultSubjectPrefix  = "custody"
	defaultCurrencies     = "USD,NGN"
	defaultCeilings       = "USD=10000,NGN=5000000"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	SubjectPrefix  string
	CheckpointDir  string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Parties are the identities hosted by this node. Each gets its own vault,
	// flow service and API namespace.
	Parties            []string
	NotaryName         string
	KeySeed            string
	AllowedCurrencies  []string
	IssuanceCeilings   map[string]int64
	StrictReservations bool
	ReservationTTL     time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		NATSURL:           os.Getenv("NATS_URL"),
		SubjectPrefix:     getEnv("NATS_SUBJECT_PREFIX", defaultSubjectPrefix),
		CheckpointDir:     os.Getenv("CHECKPOINT_DIR"),
		Parties:           splitList(os.Getenv("PARTIES")),
		NotaryName:        getEnv("NOTARY_NAME", defaultNotaryName),
		KeySeed:           os.Getenv("KEY_SEED"),
		AllowedCurrencies: splitList(strings.ToUpper(getEnv("ALLOWED_CURRENCIES", defaultCurrencies))),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ReservationTTL, err = duration("RESERVATION_TTL", defaultReservationTTL); err != nil {
		return Config{}, err
	}
	if cfg.IssuanceCeilings, err = parseCeilings(getEnv("ISSUANCE_CEILINGS", defaultCeilings)); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("STRICT_RESERVATIONS"); v != "" {
		if cfg.StrictReservations, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid STRICT_RESERVATIONS: %w", err)
		}
	}

	if len(cfg.Parties) == 0 {
		return Config{}, fmt.Errorf("PARTIES must list at least one party")
	}
	for _, p := range cfg.Parties {
		if p == cfg.NotaryName {
			return Config{}, fmt.Errorf("PARTIES must not include the notary %q", p)
		}
	}

	if cfg.IsDevelopment() {
		if cfg.KeySeed == "" {
			cfg.KeySeed = cfg.AppName
		}
		return cfg, nil
	}

	if cfg.KeySeed == "" {
		return Config{}, fmt.Errorf("KEY_SEED must be set")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	return cfg, nil
}

// IsDevelopment reports whether in-memory backends may stand in for Postgres and Redis.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev" || c.AppEnv == "test"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// duration reads KEY_SECONDS as whole seconds, falling back to KEY as a Go duration.
func duration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseCeilings reads "USD=10000,NGN=5000000" as minor units per currency.
func parseCeilings(v string) (map[string]int64, error) {
	ceilings := make(map[string]int64)
	for _, item := range splitList(v) {
		currency, amount, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid ISSUANCE_CEILINGS entry %q", item)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid ISSUANCE_CEILINGS amount for %s: %q", currency, amount)
		}
		ceilings[strings.ToUpper(strings.TrimSpace(currency))] = n
	}
	return ceilings, nil
}
