package providers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/crop-prediction/internal/common"
	"github.com/i474232898/crop-prediction/internal/weather"
)

// DefaultNASAPowerURL is the NASA POWER daily point endpoint.
const DefaultNASAPowerURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

const powerDateLayout = "20060102"

// powerFillValue marks a missing daily value in POWER exports.
const powerFillValue = -999

// NASAPowerProvider implements weather.DailyProvider for the NASA POWER API
// using its CSV output.
type NASAPowerProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewNASAPowerProvider(client *http.Client, baseURL string, backoff BackoffConfig) *NASAPowerProvider {
	if baseURL == "" {
		baseURL = DefaultNASAPowerURL
	}
	return &NASAPowerProvider{
		name:    "nasapower",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newBreaker("nasapower"),
	}
}

func (p *NASAPowerProvider) Name() string {
	return p.name
}

func (p *NASAPowerProvider) FetchDaily(ctx context.Context, q weather.DailyQuery) (*weather.Table, error) {
	if len(q.Parameters) == 0 {
		return nil, fmt.Errorf("nasapower: no parameters requested")
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("start", q.Start.Format(powerDateLayout))
		values.Set("end", q.End.Format(powerDateLayout))
		values.Set("latitude", strconv.FormatFloat(q.Coordinate.Lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(q.Coordinate.Lon, 'f', -1, 64))
		values.Set("community", "ag")
		values.Set("parameters", strings.Join(q.Parameters, ","))
		values.Set("format", "csv")
		values.Set("header", "false")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return ParsePowerCSV(resp.Body)
}

// ParsePowerCSV reads a header-less NASA POWER CSV export: a single column
// header line (YEAR, DOY, parameter codes...) followed by one row per day.
// Every column other than YEAR and DOY becomes a Table column, in file order.
// Fill values (-999) are stored as NaN.
func ParsePowerCSV(r io.Reader) (*weather.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty response")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if common.HasAny(header[0], "{", "<") {
		return nil, fmt.Errorf("response is not csv")
	}

	yearIdx, doyIdx := -1, -1
	var columns []string
	var valueIdx []int
	for i, h := range header {
		switch strings.ToUpper(h) {
		case "YEAR":
			yearIdx = i
		case "DOY":
			doyIdx = i
		default:
			columns = append(columns, h)
			valueIdx = append(valueIdx, i)
		}
	}
	if yearIdx < 0 || doyIdx < 0 {
		return nil, fmt.Errorf("missing YEAR/DOY columns in header %v", header)
	}

	table := &weather.Table{Columns: columns}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		year, err := strconv.Atoi(strings.TrimSpace(rec[yearIdx]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid YEAR %q", line, rec[yearIdx])
		}
		doy, err := strconv.Atoi(strings.TrimSpace(rec[doyIdx]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid DOY %q", line, rec[doyIdx])
		}

		obs := weather.Observation{
			Year:   year,
			DOY:    doy,
			Values: make([]float64, len(valueIdx)),
		}
		for j, idx := range valueIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s value %q", line, columns[j], rec[idx])
			}
			if v == powerFillValue {
				v = math.NaN()
			}
			obs.Values[j] = v
		}
		table.Rows = append(table.Rows, obs)
	}

	return table, nil
}
