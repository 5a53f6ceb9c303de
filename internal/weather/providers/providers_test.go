package providers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/crop-prediction/internal/weather"
)

const samplePowerCSV = `YEAR,DOY,T2M_MAX,T2M_MIN,PRECTOTCORR
2020,1,31.2,22.1,4.5
2020,2,30.8,21.9,-999
2020,3,29.9,22.4,0.0
`

func TestParsePowerCSV(t *testing.T) {
	table, err := ParsePowerCSV(strings.NewReader(samplePowerCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"T2M_MAX", "T2M_MIN", "PRECTOTCORR"}
	if strings.Join(table.Columns, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected columns %v", table.Columns)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table.Rows))
	}
	if r := table.Rows[0]; r.Year != 2020 || r.DOY != 1 || r.Values[0] != 31.2 {
		t.Fatalf("unexpected first row %+v", r)
	}
	if v := table.Rows[1].Values[2]; !math.IsNaN(v) {
		t.Fatalf("expected fill value to become NaN, got %v", v)
	}
}

func TestParsePowerCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "json error body", body: `{"messages":["bad request"]}`},
		{name: "missing DOY", body: "YEAR,T2M_MAX\n2020,1\n"},
		{name: "bad number", body: "YEAR,DOY,T2M_MAX\n2020,1,abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePowerCSV(strings.NewReader(tt.body)); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestNASAPowerProviderBuildsRequest(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(samplePowerCSV))
	}))
	defer srv.Close()

	p := NewNASAPowerProvider(srv.Client(), srv.URL, DefaultBackoff)
	table, err := p.FetchDaily(context.Background(), weather.DailyQuery{
		Coordinate: weather.Coordinate{Lat: -6.123456, Lon: 106.5},
		Start:      time.Date(2012, 5, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
		Parameters: []string{"T2M_MAX", "T2M_MIN"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table.Rows))
	}

	for _, want := range []string{
		"start=20120501",
		"end=20220501",
		"latitude=-6.123456",
		"longitude=106.5",
		"community=ag",
		"parameters=T2M_MAX%2CT2M_MIN",
		"format=csv",
		"header=false",
	} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestNASAPowerProviderDoesNotRetryByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewNASAPowerProvider(srv.Client(), srv.URL, DefaultBackoff)
	_, err := p.FetchDaily(context.Background(), weather.DailyQuery{Parameters: []string{"T2M_MAX"}})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestNASAPowerProviderRetriesWhenConfigured(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(samplePowerCSV))
	}))
	defer srv.Close()

	backoff := BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	p := NewNASAPowerProvider(srv.Client(), srv.URL, backoff)
	if _, err := p.FetchDaily(context.Background(), weather.DailyQuery{Parameters: []string{"T2M_MAX"}}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewNASAPowerProvider(srv.Client(), srv.URL, DefaultBackoff)
	q := weather.DailyQuery{Parameters: []string{"T2M_MAX"}}

	// The breaker trips after more than five consecutive failures.
	for i := 0; i < 6; i++ {
		_, err := p.FetchDaily(context.Background(), q)
		if !errors.Is(err, errServerError) {
			t.Fatalf("attempt %d: expected server error, got %v", i+1, err)
		}
	}

	_, err := p.FetchDaily(context.Background(), q)
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 6 {
		t.Fatalf("expected the open circuit to skip the upstream call, got %d calls", got)
	}
}

func TestOpenElevationProvider(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{name: "ok", body: `{"results":[{"latitude":1,"longitude":2,"elevation":450}]}`, want: 450},
		{name: "zero is valid", body: `{"results":[{"latitude":1,"longitude":2,"elevation":0}]}`, want: 0},
		{name: "no results", body: `{"results":[]}`, wantErr: true},
		{name: "missing elevation", body: `{"results":[{"latitude":1}]}`, wantErr: true},
		{name: "malformed", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLocations string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotLocations = r.URL.Query().Get("locations")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenElevationProvider(srv.Client(), srv.URL, DefaultBackoff)
			got, err := p.FetchElevation(context.Background(), weather.Coordinate{Lat: 1.5, Lon: 2.25})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if gotLocations != "1.500000,2.250000" {
				t.Fatalf("unexpected locations parameter %q", gotLocations)
			}
		})
	}
}

func TestOpenMeteoProviderConvertsToPowerColumns(t *testing.T) {
	body := `{"daily":{
		"time":["2020-12-31","2021-01-01"],
		"temperature_2m_max":[30.5,null],
		"temperature_2m_min":[20.5,21.0],
		"shortwave_radiation_sum":[8.64,17.28]
	}}`
	var gotDaily string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDaily = r.URL.Query().Get("daily")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(srv.Client(), srv.URL, DefaultBackoff)
	table, err := p.FetchDaily(context.Background(), weather.DailyQuery{
		Start:      time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Parameters: []string{weather.ParamTempMax, weather.ParamTempMin, weather.ParamPAR},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDaily != "temperature_2m_max,temperature_2m_min,shortwave_radiation_sum" {
		t.Fatalf("unexpected daily variables %q", gotDaily)
	}
	if r := table.Rows[0]; r.Year != 2020 || r.DOY != 366 {
		t.Fatalf("expected 2020 DOY 366, got %+v", r)
	}
	if r := table.Rows[1]; r.Year != 2021 || r.DOY != 1 || !math.IsNaN(r.Values[0]) {
		t.Fatalf("expected null to become NaN on 2021 DOY 1, got %+v", r)
	}
	// 8.64 MJ/m² over a day is 100 W/m², 46% of which is PAR.
	if v := table.Rows[0].Values[2]; math.Abs(v-46) > 1e-9 {
		t.Fatalf("expected PAR 46 W/m², got %v", v)
	}
}

func TestOpenMeteoProviderRejectsUnknownParameter(t *testing.T) {
	p := NewOpenMeteoProvider(http.DefaultClient, "http://127.0.0.1:0", DefaultBackoff)
	if _, err := p.FetchDaily(context.Background(), weather.DailyQuery{Parameters: []string{"WS2M"}}); err == nil {
		t.Fatal("expected error for unsupported parameter")
	}
}
