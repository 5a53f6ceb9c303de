package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownCategory is returned when a categorical input was not seen during training.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInputShape is returned when an input row does not match the model's expected width.
	ErrInputShape = errors.New("input shape mismatch")
)

// Value is one cell of a model input row: numeric or categorical.
type Value struct {
	Num   float64
	Cat   string
	IsCat bool
}

// Num wraps a numeric feature.
func Num(v float64) Value { return Value{Num: v} }

// Cat wraps a categorical feature.
func Cat(s string) Value { return Value{Cat: s, IsCat: true} }

func (v Value) String() string {
	if v.IsCat {
		return v.Cat
	}
	return fmt.Sprintf("%g", v.Num)
}

// MarshalJSON encodes the value as a bare JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsCat {
		return json.Marshal(v.Cat)
	}
	return json.Marshal(v.Num)
}

// Row is an ordered model input.
type Row []Value

// Encoder kinds understood by Transformer.
const (
	EncoderOneHot  = "onehot"
	EncoderOrdinal = "ordinal"
)

// Encoder turns one categorical column into numeric output columns.
type Encoder struct {
	Kind       string   `json:"kind"`
	Column     int      `json:"column"`
	Categories []string `json:"categories"`
}

// Transformer mirrors a column transformer with passthrough remainder:
// encoder outputs come first, in encoder order, followed by every column not
// claimed by an encoder, in input order.
type Transformer struct {
	Width    int       `json:"n_features_in"`
	Encoders []Encoder `json:"encoders"`
}

// Validate checks the transformer definition.
func (t *Transformer) Validate() error {
	if t.Width <= 0 {
		return fmt.Errorf("transformer: n_features_in must be positive")
	}
	seen := make(map[int]bool)
	for i, e := range t.Encoders {
		if e.Kind != EncoderOneHot && e.Kind != EncoderOrdinal {
			return fmt.Errorf("transformer: encoder %d has unsupported kind %q", i, e.Kind)
		}
		if len(e.Categories) == 0 {
			return fmt.Errorf("transformer: encoder %d has no categories", i)
		}
		col := t.resolve(e.Column)
		if col < 0 || col >= t.Width {
			return fmt.Errorf("transformer: encoder %d column %d out of range", i, e.Column)
		}
		if seen[col] {
			return fmt.Errorf("transformer: column %d encoded twice", col)
		}
		seen[col] = true
	}
	return nil
}

// OutputWidth is the number of numeric columns Transform produces.
func (t *Transformer) OutputWidth() int {
	n := t.Width
	for _, e := range t.Encoders {
		n--
		if e.Kind == EncoderOneHot {
			n += len(e.Categories)
		} else {
			n++
		}
	}
	return n
}

func (t *Transformer) resolve(col int) int {
	if col < 0 {
		return t.Width + col
	}
	return col
}

// Transform encodes row into a numeric vector.
func (t *Transformer) Transform(row Row) ([]float64, error) {
	if len(row) != t.Width {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrInputShape, len(row), t.Width)
	}

	out := make([]float64, 0, t.OutputWidth())
	claimed := make(map[int]bool, len(t.Encoders))

	for _, e := range t.Encoders {
		col := t.resolve(e.Column)
		claimed[col] = true
		v := row[col]
		if !v.IsCat {
			return nil, fmt.Errorf("%w: column %d must be categorical", ErrInputShape, col)
		}
		idx := indexOf(e.Categories, v.Cat)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, v.Cat)
		}
		switch e.Kind {
		case EncoderOneHot:
			for i := range e.Categories {
				if i == idx {
					out = append(out, 1)
				} else {
					out = append(out, 0)
				}
			}
		case EncoderOrdinal:
			out = append(out, float64(idx))
		}
	}

	for i, v := range row {
		if claimed[i] {
			continue
		}
		if v.IsCat {
			return nil, fmt.Errorf("%w: column %d must be numeric", ErrInputShape, i)
		}
		out = append(out, v.Num)
	}

	return out, nil
}

func indexOf(items []string, s string) int {
	for i, it := range items {
		if it == s {
			return i
		}
	}
	return -1
}
