package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/crop-prediction/internal/features"
	"github.com/i474232898/crop-prediction/internal/model"
	"github.com/i474232898/crop-prediction/internal/weather"
)

// DataYears is the number of past seasons averaged into the features.
const DataYears = 11

// SinkTimeout bounds the delivery of one event to all sinks.
const SinkTimeout = 10 * time.Second

// YieldUnits labels the predicted yield.
const YieldUnits = "sq_meters"

// Weather parameter sets requested from the daily provider.
var (
	YieldParameters = []string{
		weather.ParamTempMax,
		weather.ParamTempMin,
		weather.ParamPrecipitation,
		weather.ParamRootMoisture,
		weather.ParamPAR,
	}
	RecommendParameters = []string{
		weather.ParamTempMax,
		weather.ParamTempMin,
		weather.ParamPrecipitation,
		weather.ParamHumidity,
		weather.ParamPAR,
	}
)

// ErrInvalidRequest is returned for inputs that cannot be processed.
var ErrInvalidRequest = errors.New("invalid request")

// WeatherSource supplies daily weather tables and elevations.
type WeatherSource interface {
	FetchDaily(ctx context.Context, c weather.Coordinate, start, end time.Time, params []string) (*weather.Table, error)
	FetchElevation(ctx context.Context, c weather.Coordinate) (float64, error)
}

// YieldPredictor returns tonnes per square meter for a feature row.
type YieldPredictor interface {
	Predict(row model.Row) (float64, error)
}

// CropRecommender returns a crop name for a feature row.
type CropRecommender interface {
	Recommend(row model.Row) (string, error)
}

// Sink receives every successful prediction (recording, publishing).
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Plant describes the crop being planted.
type Plant struct {
	Name        string  `json:"name"`
	BaseTemp    float64 `json:"base_temp"`
	GrowingDays int     `json:"growing_days"`
}

// YieldRequest is the input of PredictYield.
type YieldRequest struct {
	Plant     Plant              `json:"plant"`
	Location  weather.Coordinate `json:"location"`
	StartDate string             `json:"startDate"`
	Area      int                `json:"area"`
}

// YieldResult is the output of PredictYield.
type YieldResult struct {
	PredictedYield float64 `json:"predicted_yield"`
	Units          string  `json:"units"`
}

// RecommendRequest is the input of RecommendCrop.
type RecommendRequest struct {
	CommitmentLevel string             `json:"tingkat_komitmen"`
	Location        weather.Coordinate `json:"location"`
	SunExposure     string             `json:"sun_exposure"`
	Area            int                `json:"area"`
}

// RecommendResult is the output of RecommendCrop.
type RecommendResult struct {
	Plant string `json:"plant"`
}

// Event kinds.
const (
	KindYield          = "yield"
	KindRecommendation = "recommendation"
)

// Event describes one completed prediction.
type Event struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Location  weather.Coordinate `json:"location"`
	Request   any                `json:"request"`
	Features  model.Row          `json:"features"`
	Result    any                `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

// Service runs the fetch, aggregate, assemble and predict pipeline for both endpoints.
type Service struct {
	weather WeatherSource
	yield   YieldPredictor
	crop    CropRecommender
	sinks   []Sink
	now     func() time.Time

	pending sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used by RecommendCrop.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSinks registers prediction sinks.
func WithSinks(sinks ...Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// NewService creates a new Service.
func NewService(ws WeatherSource, yield YieldPredictor, crop CropRecommender, opts ...Option) *Service {
	s := &Service{
		weather: ws,
		yield:   yield,
		crop:    crop,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PredictYield estimates the harvest of req.Area square meters of req.Plant
// planted on req.StartDate, from the weather of the 11 preceding seasons.
func (s *Service) PredictYield(ctx context.Context, req YieldRequest) (YieldResult, error) {
	planted, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return YieldResult{}, fmt.Errorf("%w: startDate %q must be YYYY-MM-DD", ErrInvalidRequest, req.StartDate)
	}
	if req.Plant.GrowingDays < 0 {
		return YieldResult{}, fmt.Errorf("%w: growing_days must not be negative", ErrInvalidRequest)
	}

	year := planted.Year()
	start := shiftYears(planted, -DataYears)
	end := shiftYears(planted, -1)

	table, err := s.weather.FetchDaily(ctx, req.Location, start, end, YieldParameters)
	if err != nil {
		return YieldResult{}, err
	}

	base := req.Plant.BaseTemp
	avg, err := weather.Aggregate(table, weather.AggregateOptions{
		StartYear: year - DataYears,
		YearSpan:  DataYears,
		Window:    &weather.SeasonWindow{StartDOY: planted.YearDay(), LengthDays: req.Plant.GrowingDays},
		BaseTemp:  &base,
	})
	if err != nil {
		return YieldResult{}, err
	}

	row, err := features.Yield(req.Plant.Name, avg)
	if err != nil {
		return YieldResult{}, err
	}

	perSquareMeter, err := s.yield.Predict(row)
	if err != nil {
		return YieldResult{}, err
	}

	result := YieldResult{
		PredictedYield: perSquareMeter * 1000 * float64(req.Area),
		Units:          YieldUnits,
	}

	slog.Info("yield predicted",
		"plant", req.Plant.Name,
		"location", req.Location.Key(),
		"years", len(avg.Years),
		"predicted_yield", result.PredictedYield,
	)

	s.emit(ctx, Event{
		Kind:     KindYield,
		Location: req.Location,
		Request:  req,
		Features: row,
		Result:   result,
	})

	return result, nil
}

// RecommendCrop picks the crop best suited to the location's climate over the
// last 11 full calendar years, its elevation and the given sun exposure.
func (s *Service) RecommendCrop(ctx context.Context, req RecommendRequest) (RecommendResult, error) {
	year, start, end := s.recommendRange()

	table, elevation, err := s.fetchRecommendInputs(ctx, req.Location, start, end)
	if err != nil {
		return RecommendResult{}, err
	}

	avg, err := weather.Aggregate(table, weather.AggregateOptions{
		StartYear: year - DataYears,
		YearSpan:  DataYears,
	})
	if err != nil {
		return RecommendResult{}, err
	}

	row, err := features.Crop(avg, elevation, req.SunExposure)
	if err != nil {
		return RecommendResult{}, err
	}

	plant, err := s.crop.Recommend(row)
	if err != nil {
		return RecommendResult{}, err
	}

	result := RecommendResult{Plant: plant}

	slog.Info("crop recommended",
		"location", req.Location.Key(),
		"sun_exposure", req.SunExposure,
		"commitment", req.CommitmentLevel,
		"plant", plant,
	)

	s.emit(ctx, Event{
		Kind:     KindRecommendation,
		Location: req.Location,
		Request:  req,
		Features: row,
		Result:   result,
	})

	return result, nil
}

// Warm prefetches the weather table and elevation RecommendCrop needs for c,
// so the first request of the day for a known location hits the cache.
func (s *Service) Warm(ctx context.Context, c weather.Coordinate) error {
	_, start, end := s.recommendRange()
	_, _, err := s.fetchRecommendInputs(ctx, c, start, end)
	return err
}

// recommendRange covers Jan 1 of DataYears ago through today.
func (s *Service) recommendRange() (year int, start, end time.Time) {
	now := s.now().UTC()
	year = now.Year()
	start = time.Date(year-DataYears, time.January, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(year, now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return year, start, end
}

func (s *Service) fetchRecommendInputs(ctx context.Context, c weather.Coordinate, start, end time.Time) (*weather.Table, float64, error) {
	var (
		table     *weather.Table
		elevation float64
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.weather.FetchDaily(gCtx, c, start, end, RecommendParameters)
		if err != nil {
			return err
		}
		table = t
		return nil
	})
	g.Go(func() error {
		e, err := s.weather.FetchElevation(gCtx, c)
		if err != nil {
			return err
		}
		elevation = e
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return table, elevation, nil
}

// emit hands ev to every sink in the background. Sink failures never fail
// the prediction and slow sinks never delay it.
func (s *Service) emit(ctx context.Context, ev Event) {
	if len(s.sinks) == 0 {
		return
	}
	ev.ID = uuid.NewString()
	ev.CreatedAt = s.now().UTC()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SinkTimeout)
		defer cancel()

		for _, sink := range s.sinks {
			if err := sink.Handle(sinkCtx, ev); err != nil {
				slog.Warn("prediction sink failed", "sink", sink.Name(), "kind", ev.Kind, "id", ev.ID, "err", err)
			}
		}
	}()
}

// Wait blocks until every emitted event has been handed to the sinks.
func (s *Service) Wait() {
	s.pending.Wait()
}

// shiftYears moves t by n years keeping month and day; Feb 29 becomes Feb 28
// when the target year is not a leap year.
func shiftYears(t time.Time, n int) time.Time {
	y := t.Year() + n
	m, d := t.Month(), t.Day()
	if m == time.February && d == 29 && !weather.IsLeapYear(y) {
		d = 28
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
