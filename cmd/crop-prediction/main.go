package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	httpapi "github.com/i474232898/crop-prediction/internal/api/http"
	"github.com/i474232898/crop-prediction/internal/config"
	"github.com/i474232898/crop-prediction/internal/events"
	"github.com/i474232898/crop-prediction/internal/geocode"
	"github.com/i474232898/crop-prediction/internal/logging"
	"github.com/i474232898/crop-prediction/internal/model"
	"github.com/i474232898/crop-prediction/internal/prediction"
	"github.com/i474232898/crop-prediction/internal/recorder"
	"github.com/i474232898/crop-prediction/internal/scheduler"
	"github.com/i474232898/crop-prediction/internal/store"
	"github.com/i474232898/crop-prediction/internal/weather"
	"github.com/i474232898/crop-prediction/internal/weather/providers"
)

const appName = "crop-prediction"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel, appName))

	// Models are required; refuse to start without them.
	models, err := model.LoadDir(cfg.ModelDir)
	if err != nil {
		slog.Error("failed to load models", "dir", cfg.ModelDir, "err", err)
		os.Exit(1)
	}

	backoff := providers.DefaultBackoff
	backoff.MaxRetries = cfg.UpstreamMaxRetries

	// Separate clients so the slow weather download does not share the
	// elevation timeout.
	weatherClient := &http.Client{Timeout: cfg.WeatherTimeout}
	elevationClient := &http.Client{Timeout: cfg.ElevationTimeout}

	var daily weather.DailyProvider
	switch cfg.WeatherProvider {
	case config.ProviderOpenMeteo:
		daily = providers.NewOpenMeteoProvider(weatherClient, cfg.OpenMeteoURL, backoff)
	default:
		daily = providers.NewNASAPowerProvider(weatherClient, cfg.NASAPowerURL, backoff)
	}
	elevation := providers.NewOpenElevationProvider(elevationClient, cfg.ElevationURL, backoff)

	// Core service orchestrating providers and caches.
	weatherSvc := weather.NewService(
		daily,
		elevation,
		store.NewMemoryCache[*weather.Table](),
		store.NewMemoryCache[float64](),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []prediction.Sink
	var history httpapi.History

	if cfg.RecorderDriver != "" {
		rec, err := recorder.Open(ctx, cfg.RecorderDriver, cfg.RecorderDSN)
		if err != nil {
			slog.Error("failed to open prediction recorder", "driver", cfg.RecorderDriver, "err", err)
			os.Exit(1)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Warn("error closing prediction recorder", "err", err)
			}
		}()
		sinks = append(sinks, rec)
		history = rec
	}

	if cfg.MQTTBroker != "" {
		pub := events.NewPublisher(events.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, slog.Default())

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pub.Connect(connectCtx); err != nil {
			// Auto-reconnect keeps trying in the background.
			slog.Warn("mqtt initial connect failed", "broker", cfg.MQTTBroker, "err", err)
		}
		cancel()
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	predictions := prediction.NewService(weatherSvc, models.Yield, models.Crop, prediction.WithSinks(sinks...))
	// Drain pending sink deliveries before the sinks close.
	defer predictions.Wait()

	// Scheduler that periodically warms the caches for known locations.
	sched := scheduler.New(cfg.WarmLocations, cfg.WarmInterval, predictions)
	if err := sched.Start(); err != nil {
		slog.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Basic app configuration. Write timeout covers a cold weather download.
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.WeatherTimeout + 30*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": appName,
		})
	})

	deps := httpapi.Deps{
		Predictor: predictions,
		Cache:     weatherSvc,
		History:   history,
	}
	if geo := geocode.NewResolver(cfg.GeocoderAPIKey); geo != nil {
		deps.Geocoder = geo
	}
	httpapi.RegisterRoutes(app, deps)

	// Start server with graceful shutdown
	go func() {
		slog.Info("listening", "port", cfg.Port, "weather_provider", daily.Name())
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("fiber server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "err", err)
	}
}
