package model

import (
	"fmt"
)

// Tree is a binary decision tree in flat array form: node i splits on
// Feature[i] at Threshold[i], going to ChildrenLeft[i] when the value is
// less than or equal to the threshold. Leaves have ChildrenLeft[i] == -1 and
// carry their output in Value[i] (one value for regression, one weight per
// class for classification).
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

func (t *Tree) validate(width, outputs int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays have mismatched lengths")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == -1 {
			if len(t.Value[i]) != outputs {
				return fmt.Errorf("leaf %d has %d outputs, want %d", i, len(t.Value[i]), outputs)
			}
			continue
		}
		// children always come after their parent, which also rules out cycles
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= width {
			return fmt.Errorf("node %d splits on feature %d outside 0..%d", i, f, width-1)
		}
	}
	return nil
}

func (t *Tree) leaf(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// Forest kinds.
const (
	KindRegressor  = "regressor"
	KindClassifier = "classifier"
)

// Forest is a random forest exported from training.
type Forest struct {
	Kind     string `json:"kind"`
	Features int    `json:"n_features"`
	// Classes holds the encoded label of each classifier output index.
	Classes []int  `json:"classes,omitempty"`
	Trees   []Tree `json:"trees"`
}

// Validate checks the forest definition.
func (f *Forest) Validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	if f.Features <= 0 {
		return fmt.Errorf("forest n_features must be positive")
	}
	outputs := 1
	switch f.Kind {
	case KindRegressor:
	case KindClassifier:
		if len(f.Classes) == 0 {
			return fmt.Errorf("classifier has no classes")
		}
		outputs = len(f.Classes)
	default:
		return fmt.Errorf("unsupported forest kind %q", f.Kind)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Features, outputs); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (f *Forest) checkInput(x []float64) error {
	if len(x) != f.Features {
		return fmt.Errorf("%w: got %d features, want %d", ErrInputShape, len(x), f.Features)
	}
	return nil
}

// Predict returns the mean leaf value of a regression forest.
func (f *Forest) Predict(x []float64) (float64, error) {
	if f.Kind != KindRegressor {
		return 0, fmt.Errorf("predict called on %s forest", f.Kind)
	}
	if err := f.checkInput(x); err != nil {
		return 0, err
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].leaf(x)[0]
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictProba returns the averaged class distribution of a classification
// forest. Each tree's leaf weights are normalized before averaging.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if f.Kind != KindClassifier {
		return nil, fmt.Errorf("predict_proba called on %s forest", f.Kind)
	}
	if err := f.checkInput(x); err != nil {
		return nil, err
	}
	proba := make([]float64, len(f.Classes))
	for i := range f.Trees {
		leaf := f.Trees[i].leaf(x)
		var total float64
		for _, w := range leaf {
			total += w
		}
		if total == 0 {
			continue
		}
		for c, w := range leaf {
			proba[c] += w / total
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Classify returns the encoded label with the highest probability. Ties go
// to the lowest index.
func (f *Forest) Classify(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return f.Classes[best], nil
}
