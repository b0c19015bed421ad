package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"poker-table/internal/db"
	"poker-table/internal/redis"
	"poker-table/models"
)

// Store drivers.
const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

// Config holds all configuration values for the server
type Config struct {
	ServerPort     string
	Environment    string
	AllowedOrigins []string

	Table          models.TableConfig
	ActionTimeout  time.Duration
	HandEndDelay   time.Duration
	ShortCallAllIn bool

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	JWTSecret string

	StoreDriver string
	DB          db.Config
	PostgresDSN string
	SnapshotTTL time.Duration

	RedisEnabled bool
	Redis        redis.Config
}

var defaults = map[string]interface{}{
	"SERVER_PORT":       "8080",
	"ENV":               "development",
	"ALLOWED_ORIGINS":   "",
	"SMALL_BLIND":       10,
	"BIG_BLIND":         20,
	"STARTING_CHIPS":    1000,
	"MAX_SEATS":         8,
	"ACTION_TIMEOUT":    "30s",
	"HAND_END_DELAY":    "5s",
	"SHORT_CALL_ALL_IN": true,
	"PING_INTERVAL":     "25s",
	"PONG_WAIT":         "60s",
	"WRITE_WAIT":        "10s",
	"RATE_LIMIT_RPS":    10.0,
	"RATE_LIMIT_BURST":  20,
	"JWT_SECRET":        "",
	"STORE_DRIVER":      StoreNone,
	"SQLITE_PATH":       "poker.db",
	"DB_HOST":           "localhost",
	"DB_PORT":           "3306",
	"DB_USER":           "root",
	"DB_PASSWORD":       "",
	"DB_NAME":           "poker_tables",
	"POSTGRES_DSN":      "",
	"SNAPSHOT_TTL":      "1h",
	"REDIS_ENABLED":     false,
	"REDIS_HOST":        "localhost",
	"REDIS_PORT":        "6379",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
}

// NewViper returns a viper instance with every key defaulted and bound to
// the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

// Load reads envFile (or ./.env when empty and present) into the process
// environment and resolves the configuration through v.
func Load(v *viper.Viper, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		ServerPort:     v.GetString("SERVER_PORT"),
		Environment:    v.GetString("ENV"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		Table: models.TableConfig{
			SmallBlind:    v.GetInt("SMALL_BLIND"),
			BigBlind:      v.GetInt("BIG_BLIND"),
			MaxSeats:      v.GetInt("MAX_SEATS"),
			StartingChips: v.GetInt("STARTING_CHIPS"),
		},
		ActionTimeout:  v.GetDuration("ACTION_TIMEOUT"),
		HandEndDelay:   v.GetDuration("HAND_END_DELAY"),
		ShortCallAllIn: v.GetBool("SHORT_CALL_ALL_IN"),
		PingInterval:   v.GetDuration("PING_INTERVAL"),
		PongWait:       v.GetDuration("PONG_WAIT"),
		WriteWait:      v.GetDuration("WRITE_WAIT"),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		StoreDriver:    strings.ToLower(v.GetString("STORE_DRIVER")),
		DB: db.Config{
			Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
			SQLitePath: v.GetString("SQLITE_PATH"),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			DBName:     v.GetString("DB_NAME"),
		},
		PostgresDSN:  v.GetString("POSTGRES_DSN"),
		SnapshotTTL:  v.GetDuration("SNAPSHOT_TTL"),
		RedisEnabled: v.GetBool("REDIS_ENABLED"),
		Redis: redis.Config{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the table or transport cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Table.SmallBlind <= 0 || c.Table.BigBlind <= 0 {
		errs = append(errs, errors.New("blinds must be positive"))
	}
	if c.Table.SmallBlind >= c.Table.BigBlind {
		errs = append(errs, errors.New("small blind must be less than big blind"))
	}
	if c.Table.MaxSeats < 2 || c.Table.MaxSeats > 10 {
		errs = append(errs, fmt.Errorf("MAX_SEATS must be between 2 and 10, got %d", c.Table.MaxSeats))
	}
	if c.Table.StartingChips <= 0 {
		errs = append(errs, errors.New("starting chips must be positive"))
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		errs = append(errs, fmt.Errorf("PONG_WAIT (%s) must exceed PING_INTERVAL (%s)", c.PongWait, c.PingInterval))
	}
	if c.ActionTimeout < 0 || c.HandEndDelay < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}
	switch c.StoreDriver {
	case StoreNone, StoreSQLite, StoreMySQL:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
