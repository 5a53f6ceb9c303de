package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/crop-prediction/internal/weather"
)

// DefaultOpenMeteoArchiveURL is the Open-Meteo historical weather endpoint.
const DefaultOpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// openMeteoVariable maps a NASA POWER parameter code onto an Open-Meteo daily
// variable. Values are converted with v*scale to the NASA POWER unit.
type openMeteoVariable struct {
	name  string
	scale float64
}

// Open-Meteo has no direct equivalent for two of the codes: GWETROOT is
// approximated by volumetric root-zone soil moisture, and PAR by ~46% of the
// daily shortwave sum converted from MJ/m² to W/m².
var openMeteoVariables = map[string]openMeteoVariable{
	weather.ParamTempMax:       {name: "temperature_2m_max", scale: 1},
	weather.ParamTempMin:       {name: "temperature_2m_min", scale: 1},
	weather.ParamPrecipitation: {name: "precipitation_sum", scale: 1},
	weather.ParamHumidity:      {name: "relative_humidity_2m_mean", scale: 1},
	weather.ParamRootMoisture:  {name: "soil_moisture_28_to_100cm_mean", scale: 1},
	weather.ParamPAR:           {name: "shortwave_radiation_sum", scale: 0.46 * 1e6 / 86400},
}

// OpenMeteoProvider implements weather.DailyProvider on top of the Open-Meteo
// archive API. It is an alternative to NASA POWER when that service is
// unreachable; converted values are close to, not identical with, POWER data.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, baseURL string, backoff BackoffConfig) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoArchiveURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) FetchDaily(ctx context.Context, q weather.DailyQuery) (*weather.Table, error) {
	if len(q.Parameters) == 0 {
		return nil, fmt.Errorf("openmeteo: no parameters requested")
	}

	vars := make([]openMeteoVariable, len(q.Parameters))
	names := make([]string, len(q.Parameters))
	for i, code := range q.Parameters {
		v, ok := openMeteoVariables[code]
		if !ok {
			return nil, fmt.Errorf("openmeteo: unsupported parameter %s", code)
		}
		vars[i] = v
		names[i] = v.name
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(q.Coordinate.Lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(q.Coordinate.Lon, 'f', -1, 64))
		values.Set("start_date", q.Start.Format(time.DateOnly))
		values.Set("end_date", q.End.Format(time.DateOnly))
		values.Set("daily", strings.Join(names, ","))
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily map[string]json.RawMessage `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode openmeteo response: %w", err)
	}

	var days []string
	if err := json.Unmarshal(payload.Daily["time"], &days); err != nil {
		return nil, fmt.Errorf("openmeteo response has no daily time axis: %w", err)
	}

	series := make([][]*float64, len(vars))
	for i, v := range vars {
		raw, ok := payload.Daily[v.name]
		if !ok {
			return nil, fmt.Errorf("openmeteo response missing %s", v.name)
		}
		if err := json.Unmarshal(raw, &series[i]); err != nil {
			return nil, fmt.Errorf("decode %s: %w", v.name, err)
		}
		if len(series[i]) != len(days) {
			return nil, fmt.Errorf("openmeteo %s has %d values for %d days", v.name, len(series[i]), len(days))
		}
	}

	table := &weather.Table{
		Columns: append([]string(nil), q.Parameters...),
		Rows:    make([]weather.Observation, 0, len(days)),
	}
	for d, day := range days {
		ts, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fmt.Errorf("invalid openmeteo date %q: %w", day, err)
		}
		obs := weather.Observation{
			Year:   ts.Year(),
			DOY:    ts.YearDay(),
			Values: make([]float64, len(vars)),
		}
		for i, v := range vars {
			if series[i][d] == nil {
				obs.Values[i] = math.NaN()
				continue
			}
			obs.Values[i] = *series[i][d] * v.scale
		}
		table.Rows = append(table.Rows, obs)
	}

	return table, nil
}
