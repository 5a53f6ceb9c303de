package features

import (
	"errors"
	"fmt"

	"github.com/i474232898/crop-prediction/internal/model"
	"github.com/i474232898/crop-prediction/internal/weather"
)

// ErrFeatureAssembly matches every *AssemblyError.
var ErrFeatureAssembly = errors.New("feature assembly failed")

// AssemblyError names the aggregate key that was missing.
type AssemblyError struct {
	Key string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("%v: missing %q", ErrFeatureAssembly, e.Key)
}

func (e *AssemblyError) Is(target error) bool {
	return target == ErrFeatureAssembly
}

// YieldColumns is the column order expected by the yield regressor after the plant name.
var YieldColumns = []string{
	weather.ParamTempMin,
	weather.ParamTempMax,
	weather.KeyAvgTemperature,
	weather.KeyDiurnalTempRange,
	weather.KeyAvgTotalGDD,
	weather.ParamPrecipitation,
	weather.ParamPAR,
}

// CropColumns is the column order expected by the crop classifier before
// elevation and sun exposure.
var CropColumns = []string{
	weather.KeyAvgTemperature,
	weather.ParamPrecipitation,
	weather.ParamHumidity,
	weather.ParamPAR,
}

// Yield builds the regressor input: plant name followed by YieldColumns.
func Yield(plant string, avg weather.Averages) (model.Row, error) {
	row := model.Row{model.Cat(plant)}
	for _, key := range YieldColumns {
		v, ok := avg.Get(key)
		if !ok {
			return nil, &AssemblyError{Key: key}
		}
		row = append(row, model.Num(v))
	}
	return row, nil
}

// Crop builds the classifier input: CropColumns, elevation, sun exposure.
func Crop(avg weather.Averages, elevation float64, sunExposure string) (model.Row, error) {
	row := make(model.Row, 0, len(CropColumns)+2)
	for _, key := range CropColumns {
		v, ok := avg.Get(key)
		if !ok {
			return nil, &AssemblyError{Key: key}
		}
		row = append(row, model.Num(v))
	}
	row = append(row, model.Num(elevation), model.Cat(sunExposure))
	return row, nil
}
