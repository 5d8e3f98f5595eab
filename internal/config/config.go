package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all service settings, populated from environment variables.
// The env tag names the variable a validation error refers to.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// Source and elevation services.
	SourceBaseURL           string         `env:"SOURCE_BASE_URL" validate:"required,url"`
	ElevationURL            string         `env:"ELEVATION_URL" validate:"required,url"`
	HTTPTimeout             time.Duration  `env:"HTTP_TIMEOUT" validate:"gt=0"`
	SourceMaxRetries        int            `env:"SOURCE_MAX_RETRIES" validate:"gte=0,lte=20"`
	RetrospectiveMaxRetries int            `env:"RETROSPECTIVE_MAX_RETRIES" validate:"gte=0,lte=20"`
	BackoffFactor           time.Duration  `env:"BACKOFF_FACTOR" validate:"gte=0"`
	Location                *time.Location `env:"SOURCE_TIMEZONE" validate:"required"`
	LastHourReports         int            `env:"LAST_HOUR_REPORTS" validate:"gt=0"`
	LastDayReports          int            `env:"LAST_DAY_REPORTS" validate:"gt=0"`
	ElevationCacheSize      int            `env:"ELEVATION_CACHE_SIZE" validate:"gte=0"`

	// Persistence.
	Store            string `env:"STORE" validate:"oneof=postgres memory"`
	DatabaseURL      string `env:"DATABASE_URL" validate:"required_if=Store postgres"`
	DatabaseMaxConns int    `env:"DATABASE_MAX_CONNS" validate:"gte=1"`
	MigrateOnStart   bool   `env:"MIGRATE_ON_START"`

	// Category labels.
	CategorySeedFile     string `env:"CATEGORY_SEED_FILE"`
	CategoryAutoCodeWind bool   `env:"CATEGORY_AUTO_CODE_WIND"`

	// Outcome events.
	KafkaEnabled      bool     `env:"KAFKA_ENABLED"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" validate:"required_if=KafkaEnabled true"`
	KafkaOutcomeTopic string   `env:"KAFKA_OUTCOME_TOPIC" validate:"required_if=KafkaEnabled true"`

	// Cron expressions, UTC.
	ScheduleCurrent    string `env:"SCHEDULE_CURRENT" validate:"required"`
	ScheduleLastHour   string `env:"SCHEDULE_LAST_HOUR" validate:"required"`
	ScheduleLastDay    string `env:"SCHEDULE_LAST_DAY" validate:"required"`
	ScheduleStations   string `env:"SCHEDULE_STATIONS" validate:"required"`
	ScheduleElevations string `env:"SCHEDULE_ELEVATIONS" validate:"required"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,

		SourceBaseURL:           sharedcfg.EnvOrDefault("SOURCE_BASE_URL", "http://eismoinfo.lt"),
		ElevationURL:            sharedcfg.EnvOrDefault("ELEVATION_URL", "https://elevation.gismeteo.dev/"),
		HTTPTimeout:             p.duration("HTTP_TIMEOUT", "30s"),
		SourceMaxRetries:        p.integer("SOURCE_MAX_RETRIES", "3"),
		RetrospectiveMaxRetries: p.integer("RETROSPECTIVE_MAX_RETRIES", "6"),
		BackoffFactor:           p.duration("BACKOFF_FACTOR", "1s"),
		Location:                p.location("SOURCE_TIMEZONE", "Europe/Vilnius"),
		LastHourReports:         p.integer("LAST_HOUR_REPORTS", "50"),
		LastDayReports:          p.integer("LAST_DAY_REPORTS", "1000"),
		ElevationCacheSize:      p.integer("ELEVATION_CACHE_SIZE", "1000"),

		Store:            strings.ToLower(sharedcfg.EnvOrDefault("STORE", StorePostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseMaxConns: p.integer("DATABASE_MAX_CONNS", "4"),
		MigrateOnStart:   p.boolean("MIGRATE_ON_START", "true"),

		CategorySeedFile:     os.Getenv("CATEGORY_SEED_FILE"),
		CategoryAutoCodeWind: p.boolean("CATEGORY_AUTO_CODE_WIND", "false"),

		KafkaEnabled:      p.boolean("KAFKA_ENABLED", "false"),
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaOutcomeTopic: sharedcfg.EnvOrDefault("KAFKA_OUTCOME_TOPIC", "road-weather-poll-outcomes"),

		ScheduleCurrent:    sharedcfg.EnvOrDefault("SCHEDULE_CURRENT", "0 * * * *"),
		ScheduleLastHour:   sharedcfg.EnvOrDefault("SCHEDULE_LAST_HOUR", "0 * * * *"),
		ScheduleLastDay:    sharedcfg.EnvOrDefault("SCHEDULE_LAST_DAY", "10 * * * *"),
		ScheduleStations:   sharedcfg.EnvOrDefault("SCHEDULE_STATIONS", "30 14 * * *"),
		ScheduleElevations: sharedcfg.EnvOrDefault("SCHEDULE_ELEVATIONS", "30 14 * * *"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, describe(err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// describe turns validator errors into one message naming each env var.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// parser reads typed env values and keeps the first failure.
type parser struct {
	err error
}

func (p *parser) fail(key, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
	}
}

func (p *parser) integer(key, def string) int {
	s := sharedcfg.EnvOrDefault(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, s)
	}
	return n
}

func (p *parser) duration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s)
	}
	return d
}

func (p *parser) boolean(key, def string) bool {
	s := sharedcfg.EnvOrDefault(key, def)
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, s)
	}
	return b
}

func (p *parser) location(key, def string) *time.Location {
	s := sharedcfg.EnvOrDefault(key, def)
	loc, err := time.LoadLocation(s)
	if err != nil {
		p.fail(key, s)
		return nil
	}
	return loc
}
