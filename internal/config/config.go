package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/crop-prediction/internal/weather"
	"github.com/i474232898/crop-prediction/internal/weather/providers"
)

// Daily weather provider names accepted by WEATHER_PROVIDER.
const (
	ProviderNASAPower = "nasapower"
	ProviderOpenMeteo = "openmeteo"
)

type AppConfig struct {
	Port     string
	AppEnv   string // "dev" enables the colored console logger
	LogLevel slog.Level

	// ModelDir holds the exported model artifacts.
	ModelDir string

	// Upstream services.
	WeatherProvider    string
	NASAPowerURL       string
	OpenMeteoURL       string
	ElevationURL       string
	WeatherTimeout     time.Duration
	ElevationTimeout   time.Duration
	UpstreamMaxRetries int

	// Cache warm-up.
	WarmLocations []weather.Coordinate
	WarmInterval  time.Duration

	// Prediction recorder; empty driver disables it.
	RecorderDriver string
	RecorderDSN    string

	// MQTT publishing; empty broker disables it.
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	GeocoderAPIKey string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "err", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	if cfg.LogLevel, err = parseLogLevel(getenvDefault("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	cfg.ModelDir = getenvDefault("MODEL_DIR", "saved_models")

	cfg.WeatherProvider = strings.ToLower(getenvDefault("WEATHER_PROVIDER", ProviderNASAPower))
	if cfg.WeatherProvider != ProviderNASAPower && cfg.WeatherProvider != ProviderOpenMeteo {
		return nil, fmt.Errorf("invalid WEATHER_PROVIDER %q (allowed: %s, %s)", cfg.WeatherProvider, ProviderNASAPower, ProviderOpenMeteo)
	}
	cfg.NASAPowerURL = getenvDefault("NASA_POWER_URL", providers.DefaultNASAPowerURL)
	cfg.OpenMeteoURL = getenvDefault("OPEN_METEO_URL", providers.DefaultOpenMeteoArchiveURL)
	cfg.ElevationURL = getenvDefault("ELEVATION_URL", providers.DefaultOpenElevationURL)

	if cfg.WeatherTimeout, err = getenvDuration("WEATHER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ElevationTimeout, err = getenvDuration("ELEVATION_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamMaxRetries, err = getenvInt("UPSTREAM_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.UpstreamMaxRetries < 0 {
		return nil, fmt.Errorf("invalid UPSTREAM_MAX_RETRIES: must not be negative")
	}

	if cfg.WarmLocations, err = ParseLocations(os.Getenv("WARM_LOCATIONS")); err != nil {
		return nil, err
	}
	if cfg.WarmInterval, err = getenvDuration("WARM_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.RecorderDriver = os.Getenv("RECORDER_DRIVER")
	cfg.RecorderDSN = os.Getenv("RECORDER_DSN")
	if cfg.RecorderDriver != "" && cfg.RecorderDSN == "" {
		return nil, fmt.Errorf("RECORDER_DSN is required when RECORDER_DRIVER is set")
	}

	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "crop-prediction")
	cfg.MQTTTopicPrefix = getenvDefault("MQTT_TOPIC_PREFIX", "crop-prediction/predictions")

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	return cfg, nil
}

// ParseLocations parses "lat:lon;lat:lon". An empty string yields no locations.
func ParseLocations(s string) ([]weather.Coordinate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var locs []weather.Coordinate
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		latStr, lonStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid WARM_LOCATIONS entry %q: want lat:lon", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in WARM_LOCATIONS entry %q", part)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude in WARM_LOCATIONS entry %q", part)
		}
		locs = append(locs, weather.Coordinate{Lat: lat, Lon: lon})
	}
	return locs, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
