package weather_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/crop-prediction/internal/store"
	"github.com/i474232898/crop-prediction/internal/weather"
)

type countingDaily struct {
	calls int32
	last  weather.DailyQuery
	err   error
}

func (p *countingDaily) Name() string { return "fake-daily" }

func (p *countingDaily) FetchDaily(ctx context.Context, q weather.DailyQuery) (*weather.Table, error) {
	atomic.AddInt32(&p.calls, 1)
	p.last = q
	if p.err != nil {
		return nil, p.err
	}
	return &weather.Table{Columns: q.Parameters}, nil
}

type countingElevation struct {
	calls int32
	err   error
}

func (p *countingElevation) Name() string { return "fake-elevation" }

func (p *countingElevation) FetchElevation(ctx context.Context, c weather.Coordinate) (float64, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return 0, p.err
	}
	return 123.5, nil
}

func newService(daily weather.DailyProvider, elev weather.ElevationProvider) *weather.Service {
	return weather.NewService(daily, elev, store.NewMemoryCache[*weather.Table](), store.NewMemoryCache[float64]())
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFetchDailyCachesByRoundedCoordinate(t *testing.T) {
	daily := &countingDaily{}
	svc := newService(daily, nil)
	ctx := context.Background()
	params := []string{weather.ParamTempMax, weather.ParamTempMin}
	start, end := date("2012-05-01"), date("2022-05-01")

	first, err := svc.FetchDaily(ctx, weather.Coordinate{Lat: -6.20001, Lon: 106.81666}, start, end, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Differs only beyond the second decimal.
	second, err := svc.FetchDaily(ctx, weather.Coordinate{Lat: -6.20444, Lon: 106.8159}, start, end, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&daily.calls); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
	if first != second {
		t.Fatalf("expected the cached table to be returned unchanged")
	}
	// The first, unrounded coordinate goes upstream.
	if daily.last.Coordinate.Lat != -6.20001 {
		t.Fatalf("expected unrounded latitude upstream, got %v", daily.last.Coordinate.Lat)
	}
	if stats := svc.CacheStats(); stats.Weather != 1 {
		t.Fatalf("expected 1 weather cache entry, got %d", stats.Weather)
	}
}

func TestFetchDailyParameterOrderSharesEntry(t *testing.T) {
	daily := &countingDaily{}
	svc := newService(daily, nil)
	ctx := context.Background()
	c := weather.Coordinate{Lat: 1, Lon: 2}
	start, end := date("2012-01-01"), date("2012-12-31")

	if _, err := svc.FetchDaily(ctx, c, start, end, []string{"A", "B"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FetchDaily(ctx, c, start, end, []string{"B", "A"}); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&daily.calls); got != 1 {
		t.Fatalf("expected reordered parameters to hit the cache, got %d calls", got)
	}

	if _, err := svc.FetchDaily(ctx, c, start, date("2013-01-01"), []string{"A", "B"}); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&daily.calls); got != 2 {
		t.Fatalf("expected a different range to miss, got %d calls", got)
	}
}

func TestFetchDailyFailureIsDataUnavailable(t *testing.T) {
	daily := &countingDaily{err: errors.New("connection refused")}
	svc := newService(daily, nil)

	_, err := svc.FetchDaily(context.Background(), weather.Coordinate{}, date("2020-01-01"), date("2020-02-01"), []string{"A"})
	if !errors.Is(err, weather.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if stats := svc.CacheStats(); stats.Weather != 0 {
		t.Fatalf("failed fetches must not be cached")
	}
}

func TestFetchElevationCaches(t *testing.T) {
	elev := &countingElevation{}
	svc := newService(nil, elev)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.FetchElevation(ctx, weather.Coordinate{Lat: 10.001, Lon: 20.002})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 123.5 {
			t.Fatalf("expected 123.5, got %v", got)
		}
	}
	if got := atomic.LoadInt32(&elev.calls); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestFetchElevationFailure(t *testing.T) {
	svc := newService(nil, &countingElevation{err: errors.New("no results")})

	_, err := svc.FetchElevation(context.Background(), weather.Coordinate{})
	if !errors.Is(err, weather.ErrElevationUnavailable) {
		t.Fatalf("expected ErrElevationUnavailable, got %v", err)
	}
}

func TestCoordinateKeyRounding(t *testing.T) {
	tests := []struct {
		c    weather.Coordinate
		want string
	}{
		{weather.Coordinate{Lat: -6.2088, Lon: 106.8456}, "-6.21_106.85"},
		{weather.Coordinate{Lat: 0.001, Lon: -0.001}, "0.00_0.00"},
		{weather.Coordinate{Lat: 45, Lon: 7.5}, "45.00_7.50"},
	}
	for _, tt := range tests {
		if got := tt.c.Key(); got != tt.want {
			t.Errorf("Key(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}

type blockingDaily struct {
	release chan struct{}
}

func (p *blockingDaily) Name() string { return "blocking-daily" }

func (p *blockingDaily) FetchDaily(ctx context.Context, q weather.DailyQuery) (*weather.Table, error) {
	<-p.release
	return &weather.Table{Columns: q.Parameters}, nil
}

func TestFetchDailyKeepsCallerDeadlineInChain(t *testing.T) {
	daily := &blockingDaily{release: make(chan struct{})}
	defer close(daily.release)
	svc := newService(daily, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.FetchDaily(ctx, weather.Coordinate{Lat: 1, Lon: 1}, date("2020-01-01"), date("2020-12-31"), []string{"A"})
	if !errors.Is(err, weather.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the deadline to stay in the error chain, got %v", err)
	}
}
