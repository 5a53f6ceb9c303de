package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
// MaxRetries of zero means a single attempt.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// DefaultBackoff is used when a provider is built without explicit settings.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      0,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// doRequestWithResilience executes the HTTP request through a circuit breaker,
// retrying with exponential backoff when cfg allows it. Callers own the
// returned body.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				drainAndClose(resp)
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				drainAndClose(resp)
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				drainAndClose(resp)
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			// Success.
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}
		slog.Debug("retrying upstream request", "breaker", cb.Name(), "attempt", attempt+1, "delay", delay, "err", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}

		attempt++
	}
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
