// Package fusion combines the three model outputs into one risk distribution.
//
// Each model's confidence in its own output decides how much it contributes.
// The tabular score feeds Diabetes and Hypertension equally, the nail model
// contributes its two disease classes and the retina model alone drives
// Kidney/DR.
package fusion

import (
	"math"

	"github.com/Brownie44l1/fusion-api/internal/model"
)

// Epsilon replaces a zero confidence total.
const Epsilon = 1e-8

type Weights struct {
	Tabular float64
	Nail    float64
	DR      float64
}

func (w Weights) Sum() float64 {
	return w.Tabular + w.Nail + w.DR
}

type Risks struct {
	Diabetes     float64
	Hypertension float64
	KidneyDR     float64
}

func (r Risks) Sum() float64 {
	return r.Diabetes + r.Hypertension + r.KidneyDR
}

type Result struct {
	Risks   Risks
	Weights Weights
	// Degenerate is set when every category score was zero and the risks
	// fell back to a uniform split.
	Degenerate bool
}

// Fuse weights each model by its confidence and normalizes the category
// scores to sum to one.
func Fuse(tabScore float64, nail model.NailProbs, drProb float64) Result {
	confTab, confNail, confDR := tabScore, nail.Max(), drProb

	total := confTab + confNail + confDR
	if total == 0 {
		total = Epsilon
	}

	w := Weights{
		Tabular: confTab / total,
		Nail:    confNail / total,
		DR:      confDR / total,
	}

	raw := Risks{
		Diabetes:     w.Nail*nail[model.NailDiabetes] + w.Tabular*tabScore,
		Hypertension: w.Nail*nail[model.NailHypertension] + w.Tabular*tabScore,
		KidneyDR:     w.DR * drProb,
	}

	sum := raw.Sum()
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Result{
			Risks:      Risks{Diabetes: 1.0 / 3, Hypertension: 1.0 / 3, KidneyDR: 1.0 / 3},
			Weights:    w,
			Degenerate: true,
		}
	}

	return Result{
		Risks: Risks{
			Diabetes:     raw.Diabetes / sum,
			Hypertension: raw.Hypertension / sum,
			KidneyDR:     raw.KidneyDR / sum,
		},
		Weights: w,
	}
}
