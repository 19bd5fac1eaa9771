// Package adapters gives the three heterogeneous models one predict contract.
// Adapters never own the underlying model; they only read from it.
package adapters

import (
	"github.com/pkg/errors"

	"github.com/Brownie44l1/fusion-api/internal/features"
	"github.com/Brownie44l1/fusion-api/internal/imaging"
	"github.com/Brownie44l1/fusion-api/internal/model"
)

// positiveClass is the probability column of a two-class classifier.
const positiveClass = 1

type TabularAdapter struct {
	name      string
	predictor model.Predictor
	schema    *features.Schema
}

func NewTabularAdapter(name string, predictor model.Predictor, schema *features.Schema) *TabularAdapter {
	return &TabularAdapter{name: name, predictor: predictor, schema: schema}
}

func (a *TabularAdapter) Name() string { return a.name }

// FeatureOrder is the exact column order the model was fitted on.
func (a *TabularAdapter) FeatureOrder() []string { return a.schema.ExpectedOrder }

func (a *TabularAdapter) UsableFeatures() []string { return a.schema.UsableFeatures }

// ZeroFilled lists the model columns that every request sends as 0, either
// because the schema does not mark them usable or because no engineered
// feature carries that name.
func (a *TabularAdapter) ZeroFilled() []string {
	usable := make(map[string]bool, len(a.UsableFeatures()))
	for _, name := range a.UsableFeatures() {
		if _, ok := features.Lookup(name); ok {
			usable[name] = true
		}
	}
	var zero []string
	for _, name := range a.FeatureOrder() {
		if !usable[name] {
			zero = append(zero, name)
		}
	}
	return zero
}

func (a *TabularAdapter) SchemaVersion() string { return a.schema.Version }

func (a *TabularAdapter) Schema() *features.Schema { return a.schema }

// Score returns the positive-class probability for one aligned row.
func (a *TabularAdapter) Score(v features.Vector) (float64, error) {
	order := a.FeatureOrder()
	if len(v.Columns) != len(order) || len(v.Values) != len(order) {
		return 0, model.InferenceError(a.name,
			errors.Errorf("expected %d columns, got %d", len(order), len(v.Columns)))
	}
	for i, name := range order {
		if v.Columns[i] != name {
			return 0, model.InferenceError(a.name,
				errors.Errorf("column %d is %q, expected %q", i, v.Columns[i], name))
		}
	}

	out, err := a.predictor.Predict(v.Values)
	if err != nil {
		return 0, model.InferenceError(a.name, err)
	}
	if len(out) < positiveClass+1 {
		return 0, model.InferenceError(a.name,
			errors.Errorf("expected a two-class probability output, got %d values", len(out)))
	}
	return float64(out[positiveClass]), nil
}

type NailAdapter struct {
	name      string
	predictor model.Predictor
	layout    imaging.Layout
	size      int
	norm      imaging.Normalization
}

func NewNailAdapter(name string, predictor model.Predictor, size int, layout imaging.Layout, norm imaging.Normalization) *NailAdapter {
	return &NailAdapter{name: name, predictor: predictor, size: size, layout: layout, norm: norm}
}

func (a *NailAdapter) Name() string { return a.name }

func (a *NailAdapter) InputSize() int { return a.size }

func (a *NailAdapter) Normalization() imaging.Normalization { return a.norm }

func (a *NailAdapter) Predict(t imaging.Tensor) (model.NailProbs, error) {
	var probs model.NailProbs
	if err := checkTensor(t, a.size); err != nil {
		return probs, model.InferenceError(a.name, err)
	}

	out, err := a.predictor.Predict(t.Flatten(a.layout))
	if err != nil {
		return probs, model.InferenceError(a.name, err)
	}
	if len(out) != len(probs) {
		return probs, model.InferenceError(a.name,
			errors.Errorf("expected %d class probabilities, got %d", len(probs), len(out)))
	}
	for i, v := range out {
		probs[i] = float64(v)
	}
	return probs, nil
}

type RetinaAdapter struct {
	name      string
	predictor model.Predictor
	layout    imaging.Layout
	size      int
}

func NewRetinaAdapter(name string, predictor model.Predictor, size int, layout imaging.Layout) *RetinaAdapter {
	return &RetinaAdapter{name: name, predictor: predictor, size: size, layout: layout}
}

func (a *RetinaAdapter) Name() string { return a.name }

func (a *RetinaAdapter) InputSize() int { return a.size }

// Predict returns the disease likelihood.
func (a *RetinaAdapter) Predict(t imaging.Tensor) (float64, error) {
	if err := checkTensor(t, a.size); err != nil {
		return 0, model.InferenceError(a.name, err)
	}

	out, err := a.predictor.Predict(t.Flatten(a.layout))
	if err != nil {
		return 0, model.InferenceError(a.name, err)
	}
	if len(out) == 0 {
		return 0, model.InferenceError(a.name, errors.New("empty output"))
	}
	return float64(out[0]), nil
}

func checkTensor(t imaging.Tensor, size int) error {
	if t.Height != size || t.Width != size {
		return errors.Errorf("expected %dx%d image, got %dx%d", size, size, t.Width, t.Height)
	}
	return nil
}
