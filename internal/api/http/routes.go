package httpapi

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/crop-prediction/internal/features"
	"github.com/i474232898/crop-prediction/internal/geocode"
	"github.com/i474232898/crop-prediction/internal/model"
	"github.com/i474232898/crop-prediction/internal/prediction"
	"github.com/i474232898/crop-prediction/internal/recorder"
	"github.com/i474232898/crop-prediction/internal/weather"
)

var validate = validator.New()

// Predictor runs the two prediction pipelines.
type Predictor interface {
	PredictYield(ctx context.Context, req prediction.YieldRequest) (prediction.YieldResult, error)
	RecommendCrop(ctx context.Context, req prediction.RecommendRequest) (prediction.RecommendResult, error)
}

// CacheReporter exposes the weather cache sizes.
type CacheReporter interface {
	CacheStats() weather.CacheStats
}

// History lists recorded predictions.
type History interface {
	Recent(ctx context.Context, limit int) ([]recorder.Record, error)
}

// Geocoder resolves a city and country to a coordinate.
type Geocoder interface {
	Resolve(ctx context.Context, city, country string) (weather.Coordinate, error)
}

// Deps are the handlers' collaborators. History and Geocoder are optional.
type Deps struct {
	Predictor Predictor
	Cache     CacheReporter
	History   History
	Geocoder  Geocoder
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	h := &handlers{deps: d}

	app.Get("/", h.status)

	// Paths kept for existing clients.
	app.Post("/yield_prediction_fastapi", h.predictYield)
	app.Post("/crop_recommendation_fastapi", h.recommendCrop)

	v1 := app.Group("/api/v1")
	v1.Post("/yield-prediction", h.predictYield)
	v1.Post("/crop-recommendation", h.recommendCrop)
	v1.Get("/predictions", h.listPredictions)
}

type handlers struct {
	deps Deps
}

// locationBody accepts either lat/lon or city/country.
type locationBody struct {
	Lat     *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon     *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	City    string   `json:"city"`
	Country string   `json:"country"`
}

type plantBody struct {
	Name        string   `json:"name" validate:"required"`
	BaseTemp    *float64 `json:"base_temp" validate:"required"`
	GrowingDays int      `json:"growing_days" validate:"gte=1,lte=366"`
}

type yieldBody struct {
	Plant     plantBody    `json:"plant"`
	Location  locationBody `json:"location"`
	StartDate string       `json:"startDate" validate:"required,datetime=2006-01-02"`
	Area      int          `json:"area" validate:"gte=1"`
}

type recommendBody struct {
	CommitmentLevel string       `json:"tingkat_komitmen" validate:"required"`
	Location        locationBody `json:"location"`
	SunExposure     string       `json:"sun_exposure" validate:"required"`
	Area            int          `json:"area" validate:"gte=1"`
}

func (h *handlers) status(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "API is running"}
	if h.deps.Cache != nil {
		resp["cache_stats"] = h.deps.Cache.CacheStats()
	}
	return c.JSON(resp)
}

func (h *handlers) predictYield(c *fiber.Ctx) error {
	var body yieldBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	loc, err := h.resolveLocation(c.UserContext(), body.Location)
	if err != nil {
		return err
	}

	res, err := h.deps.Predictor.PredictYield(c.UserContext(), prediction.YieldRequest{
		Plant: prediction.Plant{
			Name:        body.Plant.Name,
			BaseTemp:    *body.Plant.BaseTemp,
			GrowingDays: body.Plant.GrowingDays,
		},
		Location:  loc,
		StartDate: body.StartDate,
		Area:      body.Area,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(res)
}

func (h *handlers) recommendCrop(c *fiber.Ctx) error {
	var body recommendBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}

	loc, err := h.resolveLocation(c.UserContext(), body.Location)
	if err != nil {
		return err
	}

	res, err := h.deps.Predictor.RecommendCrop(c.UserContext(), prediction.RecommendRequest{
		CommitmentLevel: body.CommitmentLevel,
		Location:        loc,
		SunExposure:     body.SunExposure,
		Area:            body.Area,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(res)
}

func (h *handlers) listPredictions(c *fiber.Ctx) error {
	if h.deps.History == nil {
		return fiber.NewError(fiber.StatusNotFound, "prediction recording is disabled")
	}

	limit := c.QueryInt("limit", recorder.DefaultRecentLimit)
	if limit < 1 || limit > 500 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
	}

	recs, err := h.deps.History.Recent(c.UserContext(), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list predictions")
	}
	return c.JSON(fiber.Map{
		"count":       len(recs),
		"predictions": recs,
	})
}

func bindAndValidate(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *handlers) resolveLocation(ctx context.Context, l locationBody) (weather.Coordinate, error) {
	if l.Lat != nil && l.Lon != nil {
		return weather.Coordinate{Lat: *l.Lat, Lon: *l.Lon}, nil
	}
	if l.City == "" || l.Country == "" {
		return weather.Coordinate{}, fiber.NewError(fiber.StatusBadRequest, "location requires lat and lon, or city and country")
	}
	if h.deps.Geocoder == nil {
		return weather.Coordinate{}, fiber.NewError(fiber.StatusBadRequest, geocode.ErrNotConfigured.Error())
	}

	c, err := h.deps.Geocoder.Resolve(ctx, l.City, l.Country)
	if err != nil {
		return weather.Coordinate{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c, nil
}

// toHTTPError maps pipeline failures to status codes.
func toHTTPError(err error) error {
	var ae *features.AssemblyError
	switch {
	case errors.Is(err, prediction.ErrInvalidRequest),
		errors.Is(err, model.ErrUnknownCategory):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "upstream request timed out")
	case errors.Is(err, weather.ErrDataUnavailable),
		errors.Is(err, weather.ErrElevationUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.As(err, &ae):
		return fiber.NewError(fiber.StatusInternalServerError, ae.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "prediction failed")
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
