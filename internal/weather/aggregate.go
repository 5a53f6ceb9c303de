package weather

import (
	"fmt"
	"math"
)

// AggregateOptions selects the years and the in-year window to average.
type AggregateOptions struct {
	// StartYear is the first season year; YearSpan years are considered.
	StartYear int
	YearSpan  int

	// Window is the growing season. A nil window selects each whole
	// calendar year.
	Window *SeasonWindow

	// BaseTemp enables the diurnal range and growing-degree-day features.
	BaseTemp *float64
}

// IsLeapYear reports whether y is a Gregorian leap year.
func IsLeapYear(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

// DaysInYear returns 366 for leap years and 365 otherwise.
func DaysInYear(y int) int {
	if IsLeapYear(y) {
		return 366
	}
	return 365
}

// SelectSeason returns the rows of t falling in year's instance of w. A
// season whose end passes day 365 continues into year+1 up to the overflow
// day, computed against the length of year.
func SelectSeason(t *Table, year int, w SeasonWindow) []Observation {
	var out []Observation
	end := w.EndDOY()

	if end <= 365 {
		for _, r := range t.Rows {
			if r.Year == year && r.DOY >= w.StartDOY && r.DOY <= end {
				out = append(out, r)
			}
		}
		return out
	}

	overflow := end - DaysInYear(year)
	for _, r := range t.Rows {
		if r.Year == year && r.DOY >= w.StartDOY {
			out = append(out, r)
		}
	}
	for _, r := range t.Rows {
		if r.Year == year+1 && r.DOY <= overflow {
			out = append(out, r)
		}
	}
	return out
}

func selectYear(t *Table, year int) []Observation {
	var out []Observation
	for _, r := range t.Rows {
		if r.Year == year {
			out = append(out, r)
		}
	}
	return out
}

// Aggregate reduces a daily table into multi-year seasonal averages.
//
// For every year in range the selected rows are averaged per column; years
// without any selected row are skipped rather than counted as zero. The
// per-year values are then averaged over the contributing years. A key with
// no contributing year is left out of the result.
func Aggregate(t *Table, opts AggregateOptions) (Averages, error) {
	if t == nil {
		return Averages{}, fmt.Errorf("aggregate: nil table")
	}
	if opts.YearSpan <= 0 {
		return Averages{}, fmt.Errorf("aggregate: year span must be positive, got %d", opts.YearSpan)
	}
	if w := opts.Window; w != nil && (w.StartDOY < 1 || w.StartDOY > 366 || w.LengthDays < 0) {
		return Averages{}, fmt.Errorf("aggregate: invalid season window %+v", *w)
	}

	maxIdx := t.Index(ParamTempMax)
	minIdx := t.Index(ParamTempMin)
	hasTemps := maxIdx >= 0 && minIdx >= 0

	yearly := make(map[string][]float64)
	var years []YearlyAggregate

	for y := opts.StartYear; y < opts.StartYear+opts.YearSpan; y++ {
		var rows []Observation
		if opts.Window != nil {
			rows = SelectSeason(t, y, *opts.Window)
		} else {
			rows = selectYear(t, y)
		}
		if len(rows) == 0 {
			continue
		}

		agg := YearlyAggregate{Year: y, Days: len(rows), Values: make(map[string]float64)}

		for i, col := range t.Columns {
			if m, ok := columnMean(rows, i); ok {
				agg.Values[col] = m
			}
		}

		if hasTemps {
			var sumMean, sumRange, gdd float64
			var n int
			for _, r := range rows {
				hi, lo := r.Values[maxIdx], r.Values[minIdx]
				if math.IsNaN(hi) || math.IsNaN(lo) {
					continue
				}
				mean := (hi + lo) / 2
				sumMean += mean
				sumRange += hi - lo
				if opts.BaseTemp != nil {
					gdd += math.Max(0, mean-*opts.BaseTemp)
				}
				n++
			}
			if n > 0 {
				agg.Values[KeyAvgTemperature] = sumMean / float64(n)
				if opts.BaseTemp != nil {
					agg.Values[KeyDiurnalTempRange] = sumRange / float64(n)
					agg.Values[KeyAvgTotalGDD] = gdd
				}
			}
		}

		for k, v := range agg.Values {
			yearly[k] = append(yearly[k], v)
		}
		years = append(years, agg)
	}

	out := Averages{Values: make(map[string]float64, len(yearly)), Years: years}
	for k, vs := range yearly {
		var sum float64
		for _, v := range vs {
			sum += v
		}
		out.Values[k] = sum / float64(len(vs))
	}

	return out, nil
}

// columnMean averages column idx over rows, ignoring missing (NaN) values.
func columnMean(rows []Observation, idx int) (float64, bool) {
	var sum float64
	var n int
	for _, r := range rows {
		v := r.Values[idx]
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
