package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrModelNotLoaded is returned when a model artifact is missing or invalid.
var ErrModelNotLoaded = errors.New("model not loaded")

// Artifact file names expected in the model directory.
const (
	YieldRegressorFile   = "yield_prediction_regressor.json"
	YieldTransformerFile = "yield_prediction_transformer.json"
	CropClassifierFile   = "crop_recommendation_classifier.json"
	CropTransformerFile  = "crop_recommendation_transformer.json"
	CropLabelEncoderFile = "crop_recommendation_labelencoder.json"
)

// LabelEncoder maps encoded class labels back to their names.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// Decode returns the name of encoded label i.
func (l *LabelEncoder) Decode(i int) (string, error) {
	if i < 0 || i >= len(l.Classes) {
		return "", fmt.Errorf("label %d outside 0..%d", i, len(l.Classes)-1)
	}
	return l.Classes[i], nil
}

// YieldModel predicts yield per square meter (in tonnes) from a row.
type YieldModel struct {
	Transformer *Transformer
	Forest      *Forest
}

// Predict runs the transformer and the regression forest.
func (m *YieldModel) Predict(row Row) (float64, error) {
	x, err := m.Transformer.Transform(row)
	if err != nil {
		return 0, err
	}
	return m.Forest.Predict(x)
}

// CropModel recommends a crop name from a row.
type CropModel struct {
	Transformer *Transformer
	Forest      *Forest
	Labels      *LabelEncoder
}

// Recommend runs the transformer, the classifier and the label decoder.
func (m *CropModel) Recommend(row Row) (string, error) {
	x, err := m.Transformer.Transform(row)
	if err != nil {
		return "", err
	}
	label, err := m.Forest.Classify(x)
	if err != nil {
		return "", err
	}
	return m.Labels.Decode(label)
}

// Models bundles every artifact the service needs.
type Models struct {
	Yield *YieldModel
	Crop  *CropModel
}

// LoadDir reads and validates all artifacts from dir. Any missing or
// malformed file fails the whole load with ErrModelNotLoaded.
func LoadDir(dir string) (*Models, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: model directory %q not found; export the artifacts with scripts/export_models.py and set MODEL_DIR",
			ErrModelNotLoaded, dir)
	}

	yt := &Transformer{}
	yf := &Forest{}
	ct := &Transformer{}
	cf := &Forest{}
	le := &LabelEncoder{}

	files := []struct {
		name string
		dst  any
	}{
		{YieldRegressorFile, yf},
		{YieldTransformerFile, yt},
		{CropClassifierFile, cf},
		{CropTransformerFile, ct},
		{CropLabelEncoderFile, le},
	}
	for _, f := range files {
		if err := readJSON(filepath.Join(dir, f.name), f.dst); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
		}
	}

	if err := yt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelNotLoaded, YieldTransformerFile, err)
	}
	if err := yf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelNotLoaded, YieldRegressorFile, err)
	}
	if yf.Kind != KindRegressor {
		return nil, fmt.Errorf("%w: %s is a %s", ErrModelNotLoaded, YieldRegressorFile, yf.Kind)
	}
	if yt.OutputWidth() != yf.Features {
		return nil, fmt.Errorf("%w: yield transformer emits %d features, regressor expects %d",
			ErrModelNotLoaded, yt.OutputWidth(), yf.Features)
	}

	if err := ct.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelNotLoaded, CropTransformerFile, err)
	}
	if err := cf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelNotLoaded, CropClassifierFile, err)
	}
	if cf.Kind != KindClassifier {
		return nil, fmt.Errorf("%w: %s is a %s", ErrModelNotLoaded, CropClassifierFile, cf.Kind)
	}
	if ct.OutputWidth() != cf.Features {
		return nil, fmt.Errorf("%w: crop transformer emits %d features, classifier expects %d",
			ErrModelNotLoaded, ct.OutputWidth(), cf.Features)
	}
	for _, c := range cf.Classes {
		if c < 0 || c >= len(le.Classes) {
			return nil, fmt.Errorf("%w: classifier label %d has no name in %s", ErrModelNotLoaded, c, CropLabelEncoderFile)
		}
	}

	slog.Info("models loaded",
		"dir", dir,
		"yield_trees", len(yf.Trees),
		"crop_trees", len(cf.Trees),
		"crops", len(le.Classes),
	)

	return &Models{
		Yield: &YieldModel{Transformer: yt, Forest: yf},
		Crop:  &CropModel{Transformer: ct, Forest: cf, Labels: le},
	}, nil
}

func readJSON(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
