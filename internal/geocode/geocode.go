package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/crop-prediction/internal/store"
	"github.com/i474232898/crop-prediction/internal/weather"
)

// ErrNotConfigured is returned when no geocoding API key was provided.
var ErrNotConfigured = errors.New("geocoding is not configured")

// ErrNotFound is returned when the address could not be resolved.
var ErrNotFound = errors.New("location not found")

// Lookup resolves an address to coordinates.
type Lookup func(geocoder.Address) (geocoder.Location, error)

// Resolver turns a city and country into a coordinate via the Google
// Geocoding API. Results are cached for the life of the process.
type Resolver struct {
	lookup Lookup
	cache  *store.MemoryCache[weather.Coordinate]
}

// NewResolver returns a Resolver using apiKey, or nil when apiKey is empty.
func NewResolver(apiKey string) *Resolver {
	if apiKey == "" {
		return nil
	}
	geocoder.ApiKey = apiKey
	return NewResolverWithLookup(geocoder.Geocoding)
}

// NewResolverWithLookup returns a Resolver backed by lookup.
func NewResolverWithLookup(lookup Lookup) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  store.NewMemoryCache[weather.Coordinate](),
	}
}

// Resolve returns the coordinate of city, country.
func (r *Resolver) Resolve(ctx context.Context, city, country string) (weather.Coordinate, error) {
	if r == nil {
		return weather.Coordinate{}, ErrNotConfigured
	}

	city, country = strings.TrimSpace(city), strings.TrimSpace(country)
	key := strings.ToLower(city + "|" + country)

	c, hit, err := r.cache.GetOrLoad(ctx, key, func(context.Context) (weather.Coordinate, error) {
		loc, err := r.lookup(geocoder.Address{City: city, Country: country})
		if err != nil {
			return weather.Coordinate{}, fmt.Errorf("%w: %s, %s: %v", ErrNotFound, city, country, err)
		}
		return weather.Coordinate{Lat: loc.Latitude, Lon: loc.Longitude}, nil
	})
	if err != nil {
		return weather.Coordinate{}, err
	}

	slog.Debug("geocoded location", "city", city, "country", country, "cache_hit", hit, "coordinate", c.Key())
	return c, nil
}
