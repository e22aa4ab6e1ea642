// Package config loads and validates environment-based configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/bellvik/transport-planner/internal/routing"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration loaded from environment variables.
// The env tag names the variable each field is read from.
type Config struct {
	StoreDriver     string `env:"STORE_DRIVER" validate:"oneof=postgres sqlite memory"`
	DBDSN           string `env:"DB_DSN" validate:"required_if=StoreDriver postgres"`
	SQLitePath      string `env:"SQLITE_PATH" validate:"required_if=StoreDriver sqlite"`
	Port            int    `env:"PORT" validate:"min=1,max=65535"`
	CacheMaxEntries int    `env:"CACHE_MAX_ENTRIES" validate:"min=1"`

	// Upstream providers.
	TomTomAPIKey     string        `env:"TOMTOM_API_KEY"`
	TomTomBaseURL    string        `env:"TOMTOM_BASE_URL" validate:"omitempty,url"`
	TwoGISAPIKey     string        `env:"TWOGIS_API_KEY"`
	TwoGISTransitURL string        `env:"TWOGIS_PUBLIC_TRANSPORT_URL" validate:"omitempty,url"`
	TwoGISLocale     string        `env:"TWOGIS_LOCALE"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" validate:"gt=0"`

	// Policy switches. UseRealAPI is the global kill switch.
	UseRealAPI    bool `env:"USE_REAL_API"`
	UseTransitAPI bool `env:"USE_PUBLIC_TRANSPORT_API"`
	UseCarAPI     bool `env:"USE_CAR_ROUTING_API"`

	CacheTTL       time.Duration `env:"CACHE_TTL" validate:"gt=0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" validate:"gt=0"`

	// Call-log event stream; disabled when NATSURL is empty.
	NATSURL           string `env:"NATS_URL" validate:"omitempty,url"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" validate:"required_with=NATSURL"`

	// JWT authentication settings.
	JWTSecret       string        `env:"JWT_SECRET"` // Admin endpoints fail gracefully if unset.
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" validate:"gt=0"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" validate:"gt=0"`
}

// Load reads .env (if present) and the environment, then validates the result.
// Every invalid value is reported; the returned error joins one ConfigError
// per field.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		StoreDriver:      getenvDefault("STORE_DRIVER", DriverPostgres),
		DBDSN:            os.Getenv("DB_DSN"),
		SQLitePath:       getenvDefault("SQLITE_PATH", "./data/planner.db"),
		TomTomAPIKey:     os.Getenv("TOMTOM_API_KEY"),
		TomTomBaseURL:    getenvDefault("TOMTOM_BASE_URL", routing.TomTomBaseURL),
		TwoGISAPIKey:     os.Getenv("TWOGIS_API_KEY"),
		TwoGISTransitURL: getenvDefault("TWOGIS_PUBLIC_TRANSPORT_URL", routing.TransitBaseURL),
		TwoGISLocale:     getenvDefault("TWOGIS_LOCALE", routing.DefaultTransitLocale),
		NATSURL:          os.Getenv("NATS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
	}
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "planner.calls")

	cfg.Port = parseIntEnv("PORT", 8080, &errs)
	cfg.CacheMaxEntries = parseIntEnv("CACHE_MAX_ENTRIES", routing.DefaultMemoryEntries, &errs)

	cfg.UseRealAPI = parseBoolEnv("USE_REAL_API", false, &errs)
	cfg.UseTransitAPI = parseBoolEnv("USE_PUBLIC_TRANSPORT_API", true, &errs)
	cfg.UseCarAPI = parseBoolEnv("USE_CAR_ROUTING_API", true, &errs)

	cfg.CacheTTL = parseDurationEnv("CACHE_TTL", routing.DefaultCacheTTL, &errs)
	cfg.ProviderTimeout = parseDurationEnv("PROVIDER_TIMEOUT", routing.DefaultProviderTimeout, &errs)
	cfg.RequestTimeout = parseDurationEnv("REQUEST_TIMEOUT", 30*time.Second, &errs)
	cfg.AccessTokenTTL = parseDurationEnv("ACCESS_TOKEN_TTL", 15*time.Minute, &errs)
	cfg.RefreshTokenTTL = parseDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour, &errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields under their environment variable names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate re-checks every field on an already-constructed Config.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &ConfigError{Field: fe.Field(), Message: describe(fe)})
	}
	return errors.Join(errs...)
}

// Flags returns the provider policy switches for the ModeRouter. A live
// switch whose API key is missing is turned off and reported through logger.
func (c *Config) Flags(logger routing.Logger) routing.Flags {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	f := routing.Flags{
		UseLiveAPIs:   c.UseRealAPI,
		UseTransitAPI: c.UseTransitAPI,
		UseCarAPI:     c.UseCarAPI,
	}
	if !f.UseLiveAPIs {
		return f
	}
	if f.UseTransitAPI && c.TwoGISAPIKey == "" {
		logger("config: USE_PUBLIC_TRANSPORT_API is set but TWOGIS_API_KEY is empty; transit uses the street provider")
		f.UseTransitAPI = false
	}
	if c.TomTomAPIKey == "" {
		logger("config: USE_REAL_API is set but TOMTOM_API_KEY is empty; street routes use the stub")
		f.UseCarAPI = false
		if !f.UseTransitAPI {
			f.UseLiveAPIs = false
		}
	}
	return f
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required_if":
		return "required for this STORE_DRIVER"
	case "required_with":
		return "required when NATS_URL is set"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "max":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	case "gt":
		return "must be positive"
	case "url":
		return "must be a valid URL"
	}
	return "failed " + fe.Tag() + " validation"
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, &ConfigError{Field: key, Message: "must be a valid integer"})
		return def
	}
	return n
}

func parseBoolEnv(key string, def bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, &ConfigError{Field: key, Message: "must be a boolean"})
		return def
	}
	return b
}

// parseDurationEnv accepts Go duration strings like "15m", "24h", "168h".
func parseDurationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, &ConfigError{Field: key, Message: "must be a duration such as 15s or 30m"})
		return def
	}
	return d
}
