// Package config loads simulator settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/geofence-simulator/core"
	"github.com/signalsfoundry/geofence-simulator/internal/logging"
	"github.com/signalsfoundry/geofence-simulator/internal/observability"
)

// Config is the resolved process configuration.
type Config struct {
	HTTPAddr    string
	PolygonAddr string // empty serves /polygon on the main router only
	MetricsAddr string // empty mounts /metrics on the main router

	TickPeriod        time.Duration
	Autostart         bool
	RosterPath        string // empty uses the built-in roster
	StrictCoordinates bool
	ProximityKm       float64
	Seed              int64 // 0 seeds from the clock

	JournalPath string // empty disables the journal

	Log     logging.Config
	Tracing observability.TracingConfig
}

// Load reads the given .env files (".env" when none are named), ignoring
// missing ones, then resolves Config from the process environment. Values
// already set in the environment win over .env entries.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup resolves Config using getenv for every variable.
func FromLookup(getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		HTTPAddr:    env("SIM_HTTP_ADDR", ":3000"),
		PolygonAddr: env("SIM_POLYGON_ADDR", ":3001"),
		MetricsAddr: env("SIM_METRICS_ADDR", ":9090"),
		RosterPath:  env("SIM_ROSTER_PATH", ""),
		JournalPath: env("SIM_JOURNAL_PATH", ""),
		Log: logging.Config{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "text"),
		},
		Tracing: observability.TracingConfigFromLookup(getenv),
	}
	// "-" disables an optional listener.
	if cfg.PolygonAddr == "-" {
		cfg.PolygonAddr = ""
	}
	if cfg.MetricsAddr == "-" {
		cfg.MetricsAddr = ""
	}

	var err error
	if cfg.TickPeriod, err = time.ParseDuration(env("SIM_TICK_PERIOD", "5s")); err != nil {
		return Config{}, fmt.Errorf("SIM_TICK_PERIOD: %w", err)
	}
	if cfg.TickPeriod <= 0 {
		return Config{}, fmt.Errorf("SIM_TICK_PERIOD: must be positive, got %s", cfg.TickPeriod)
	}
	if cfg.Autostart, err = strconv.ParseBool(env("SIM_AUTOSTART", "false")); err != nil {
		return Config{}, fmt.Errorf("SIM_AUTOSTART: %w", err)
	}
	if cfg.StrictCoordinates, err = strconv.ParseBool(env("SIM_STRICT_COORDINATES", "false")); err != nil {
		return Config{}, fmt.Errorf("SIM_STRICT_COORDINATES: %w", err)
	}
	if cfg.ProximityKm, err = strconv.ParseFloat(env("SIM_PROXIMITY_KM", strconv.FormatFloat(core.DefaultProximityKm, 'f', -1, 64)), 64); err != nil {
		return Config{}, fmt.Errorf("SIM_PROXIMITY_KM: %w", err)
	}
	if cfg.ProximityKm < 0 {
		return Config{}, fmt.Errorf("SIM_PROXIMITY_KM: must not be negative, got %v", cfg.ProximityKm)
	}
	if cfg.Seed, err = strconv.ParseInt(env("SIM_SEED", "0"), 10, 64); err != nil {
		return Config{}, fmt.Errorf("SIM_SEED: %w", err)
	}
	return cfg, nil
}
