package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/crop-prediction/internal/common"
)

// Service fetches daily weather tables and elevations through the configured
// providers and memoizes results for the lifetime of the process.
type Service struct {
	daily      DailyProvider
	elevation  ElevationProvider
	tables     Cache[*Table]
	elevations Cache[float64]
}

// NewService creates a new Service.
func NewService(daily DailyProvider, elevation ElevationProvider, tables Cache[*Table], elevations Cache[float64]) *Service {
	return &Service{
		daily:      daily,
		elevation:  elevation,
		tables:     tables,
		elevations: elevations,
	}
}

// CacheStats reports the number of cached entries per cache.
type CacheStats struct {
	Weather   int `json:"nasa"`
	Elevation int `json:"elevation"`
}

// DailyKey builds the cache key of a daily table request. The parameter list
// is sorted so that the same set in a different order shares an entry.
func DailyKey(c Coordinate, start, end time.Time, params []string) string {
	return fmt.Sprintf("%s_%s_%s_%s",
		c.Key(),
		start.Format("20060102"),
		end.Format("20060102"),
		common.SortedJoin(params, "_"),
	)
}

// FetchDaily returns the daily observation table for c between start and end
// (inclusive) with the given parameters. The unrounded coordinate is sent
// upstream; the cache is keyed on the rounded one.
func (s *Service) FetchDaily(ctx context.Context, c Coordinate, start, end time.Time, params []string) (*Table, error) {
	if s.daily == nil {
		return nil, fmt.Errorf("%w: no daily weather provider configured", ErrDataUnavailable)
	}

	key := DailyKey(c, start, end, params)
	query := DailyQuery{
		Coordinate: c,
		Start:      start,
		End:        end,
		Parameters: append([]string(nil), params...),
	}

	table, hit, err := s.tables.GetOrLoad(ctx, key, func(ctx context.Context) (*Table, error) {
		slog.Info("weather cache miss, fetching", "provider", s.daily.Name(), "key", key)
		began := time.Now()
		t, err := s.daily.FetchDaily(ctx, query)
		if err != nil {
			return nil, err
		}
		slog.Debug("weather fetched", "key", key, "rows", len(t.Rows), "took", time.Since(began))
		return t, nil
	})
	if err != nil {
		logFetchError(ctx, "weather fetch failed", s.daily.Name(), key, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, s.daily.Name(), err)
	}
	if hit {
		slog.Debug("weather cache hit", "key", key)
	}

	return table, nil
}

// FetchElevation returns the elevation of c in meters.
func (s *Service) FetchElevation(ctx context.Context, c Coordinate) (float64, error) {
	if s.elevation == nil {
		return 0, fmt.Errorf("%w: no elevation provider configured", ErrElevationUnavailable)
	}

	key := c.Key()
	elev, hit, err := s.elevations.GetOrLoad(ctx, key, func(ctx context.Context) (float64, error) {
		slog.Info("elevation cache miss, fetching", "provider", s.elevation.Name(), "key", key)
		return s.elevation.FetchElevation(ctx, c)
	})
	if err != nil {
		logFetchError(ctx, "elevation fetch failed", s.elevation.Name(), key, err)
		return 0, fmt.Errorf("%w: %s: %w", ErrElevationUnavailable, s.elevation.Name(), err)
	}
	if hit {
		slog.Debug("elevation cache hit", "key", key)
	}

	return elev, nil
}

// CacheStats returns the current cache sizes.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Weather:   s.tables.Len(),
		Elevation: s.elevations.Len(),
	}
}

// logFetchError logs at debug when the caller gave up, since the shared load
// keeps running for the other waiters.
func logFetchError(ctx context.Context, msg, provider, key string, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		slog.Debug(msg, "provider", provider, "key", key, "err", err)
		return
	}
	slog.Error(msg, "provider", provider, "key", key, "err", err)
}
