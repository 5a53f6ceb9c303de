package weather

import (
	"fmt"

	"github.com/i474232898/crop-prediction/internal/common"
)

// NASA POWER parameter codes used by the prediction models.
const (
	ParamTempMax       = "T2M_MAX"
	ParamTempMin       = "T2M_MIN"
	ParamPrecipitation = "PRECTOTCORR"
	ParamRootMoisture  = "GWETROOT"
	ParamPAR           = "ALLSKY_SFC_PAR_TOT"
	ParamHumidity      = "RH2M"
)

// Derived keys produced by Aggregate in addition to the raw parameter codes.
const (
	KeyAvgTemperature   = "avg_temperature"
	KeyDiurnalTempRange = "diurnal_temp_range"
	KeyAvgTotalGDD      = "avg_total_gdd"
)

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns the cache key for this coordinate. Both components are rounded
// to two decimals, so points closer than ~1km share a key.
func (c Coordinate) Key() string {
	return common.RoundKey(c.Lat) + "_" + common.RoundKey(c.Lon)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lon)
}

// Observation is one daily row of the upstream table.
// Values is aligned with the owning Table's Columns.
type Observation struct {
	Year   int
	DOY    int
	Values []float64
}

// Table is an ordered set of daily observations for one coordinate, date
// range and parameter set. Tables handed out by the Service are shared with
// the cache and must not be modified.
type Table struct {
	Columns []string
	Rows    []Observation
}

// Index returns the position of column in Values, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// SeasonWindow is a growing season starting at StartDOY and lasting
// LengthDays. StartDOY+LengthDays may exceed 365, in which case the season
// runs into the following calendar year.
type SeasonWindow struct {
	StartDOY   int
	LengthDays int
}

// EndDOY is the last selected day-of-year, possibly beyond the year end.
func (w SeasonWindow) EndDOY() int {
	return w.StartDOY + w.LengthDays
}

// YearlyAggregate holds the seasonal means for one year that had data.
type YearlyAggregate struct {
	Year   int                `json:"year"`
	Days   int                `json:"days"`
	Values map[string]float64 `json:"values"`
}

// Averages is the multi-year feature set produced by Aggregate. Values is
// keyed by parameter code and by the derived Key* constants; keys without a
// single contributing year are absent.
type Averages struct {
	Values map[string]float64 `json:"values"`
	Years  []YearlyAggregate  `json:"years"`
}

// Get returns the averaged value for key.
func (a Averages) Get(key string) (float64, bool) {
	v, ok := a.Values[key]
	return v, ok
}
