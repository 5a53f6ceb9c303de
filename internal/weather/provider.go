package weather

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDataUnavailable is returned when the daily weather table cannot be fetched or parsed.
	ErrDataUnavailable = errors.New("weather data unavailable")
	// ErrElevationUnavailable is returned when the elevation lookup fails or has no result.
	ErrElevationUnavailable = errors.New("elevation unavailable")
)

// DailyQuery describes one request for a table of daily observations.
type DailyQuery struct {
	Coordinate Coordinate
	Start      time.Time
	End        time.Time
	Parameters []string
}

// DailyProvider abstracts a point-data source of daily weather (e.g. NASA POWER).
type DailyProvider interface {
	Name() string
	FetchDaily(ctx context.Context, q DailyQuery) (*Table, error)
}

// ElevationProvider abstracts an elevation lookup service (e.g. Open-Elevation).
type ElevationProvider interface {
	Name() string
	FetchElevation(ctx context.Context, c Coordinate) (float64, error)
}

// Cache is the contract the in-memory store must satisfy for one value type.
type Cache[V any] interface {
	GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, bool, error)
	Len() int
}
