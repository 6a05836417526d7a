package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Schedule sources.
const (
	SourceBoard  = "board"
	SourceGTFSRT = "gtfsrt"
)

// Config holds process configuration from environment variables.
type Config struct {
	Port           int
	DBPath         string
	BoardHost      string // departure-board host, scheme chosen per Preferences.UseHTTPS
	TimeHost       string // time-reference host serving /utc/now
	GTFSRTURL      string // TripUpdates feed, used when ScheduleSource == "gtfsrt"
	ScheduleSource string
	NumberOfTrains int

	FetchTimeout       time.Duration
	FeasibilityTimeout time.Duration
	TimeTimeout        time.Duration
	LocationTimeout    time.Duration

	MaxStationDistance float64 // meters; 0 = any distance

	DeviceKey    string // shared key required on device endpoints; empty disables the check
	DispatchKeep int    // dispatch log rows kept by the hourly prune

	LogLevel string
	Tracing  bool

	Preferences Preferences
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:           envInt("COMMUTER_PORT", 8080),
		DBPath:         envStr("COMMUTER_DB_PATH", "./commuterbliss.db"),
		BoardHost:      envStr("COMMUTER_BOARD_HOST", "commuter-bliss-uk.apphb.com"),
		TimeHost:       envStr("COMMUTER_TIME_HOST", "www.timeapi.org"),
		GTFSRTURL:      envStr("COMMUTER_GTFSRT_URL", ""),
		ScheduleSource: envStr("COMMUTER_SCHEDULE_SOURCE", SourceBoard),
		NumberOfTrains: envInt("COMMUTER_NUMBER_OF_TRAINS", 3),

		FetchTimeout:       envDuration("COMMUTER_FETCH_TIMEOUT", 10*time.Second),
		FeasibilityTimeout: envDuration("COMMUTER_FEASIBILITY_TIMEOUT", time.Second),
		TimeTimeout:        envDuration("COMMUTER_TIME_TIMEOUT", 5*time.Second),
		LocationTimeout:    envDuration("COMMUTER_LOCATION_TIMEOUT", 8*time.Second),

		MaxStationDistance: envFloat("COMMUTER_MAX_STATION_DISTANCE_M", 0),

		DeviceKey:    envStr("COMMUTER_DEVICE_KEY", ""),
		DispatchKeep: envInt("COMMUTER_DISPATCH_KEEP", 1000),

		LogLevel: envStr("COMMUTER_LOG_LEVEL", "info"),
		Tracing:  envBool("COMMUTER_TRACING", false),

		Preferences: LoadPreferences(),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
