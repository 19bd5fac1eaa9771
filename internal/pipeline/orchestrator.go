// Package pipeline runs one prediction request end to end.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/fusion-api/internal/adapters"
	"github.com/Brownie44l1/fusion-api/internal/features"
	"github.com/Brownie44l1/fusion-api/internal/fusion"
	"github.com/Brownie44l1/fusion-api/internal/imaging"
	"github.com/Brownie44l1/fusion-api/internal/metrics"
	"github.com/Brownie44l1/fusion-api/internal/model"
)

type Orchestrator struct {
	registry *adapters.Registry
	builder  *features.Builder
	nail     *imaging.Nail
	retina   *imaging.Retina
}

// New wires the preprocessors to the loaded models. Image sizes and nail
// normalization come from the adapters so they always agree with the models.
func New(registry *adapters.Registry, clahe imaging.CLAHE) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		builder:  features.NewBuilder(registry.Tabular.Schema()),
		nail:     imaging.NewNail(registry.Nail.InputSize(), registry.Nail.Normalization()),
		retina:   imaging.NewRetina(registry.Retina.InputSize(), clahe),
	}
}

// Predict preprocesses every input before any model runs, so a bad upload
// fails the request without partial inference. The three model calls then
// run concurrently and are joined before fusion.
func (o *Orchestrator) Predict(ctx context.Context, req model.RawRequest) (*model.PredictionResponse, error) {
	start := time.Now()
	resp, err := o.predict(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Timing("predict.latency", time.Since(start), []string{"outcome:" + outcome})
	metrics.Count("predict.requests", 1, []string{"outcome:" + outcome})
	return resp, err
}

func (o *Orchestrator) predict(ctx context.Context, req model.RawRequest) (*model.PredictionResponse, error) {
	var (
		row          features.Vector
		nailTensor   imaging.Tensor
		retinaTensor imaging.Tensor
	)

	var prep errgroup.Group
	prep.Go(func() error {
		row = o.builder.Build(req)
		return nil
	})
	prep.Go(func() error {
		var err error
		nailTensor, err = timed("preprocess.nail", func() (imaging.Tensor, error) {
			return o.nail.Preprocess(req.NailImage)
		})
		return err
	})
	prep.Go(func() error {
		var err error
		retinaTensor, err = timed("preprocess.retina", func() (imaging.Tensor, error) {
			return o.retina.Preprocess(req.RetinaImage)
		})
		return err
	})
	if err := prep.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		tabScore  float64
		nailProbs model.NailProbs
		drProb    float64
	)

	var infer errgroup.Group
	infer.Go(func() error {
		var err error
		tabScore, err = timed("inference.tabular", func() (float64, error) {
			return o.registry.Tabular.Score(row)
		})
		return err
	})
	infer.Go(func() error {
		var err error
		nailProbs, err = timed("inference.nail", func() (model.NailProbs, error) {
			return o.registry.Nail.Predict(nailTensor)
		})
		return err
	})
	infer.Go(func() error {
		var err error
		drProb, err = timed("inference.retina", func() (float64, error) {
			return o.registry.Retina.Predict(retinaTensor)
		})
		return err
	})
	if err := infer.Wait(); err != nil {
		return nil, err
	}

	fused := fusion.Fuse(tabScore, nailProbs, drProb)
	if fused.Degenerate {
		log.Warn().
			Float64("tabular_score", tabScore).
			Floats64("nail_probs", nailProbs[:]).
			Float64("dr_prob", drProb).
			Msg("all fused categories scored zero, returning uniform risks")
		metrics.Count("fusion.degenerate", 1, nil)
	}

	log.Debug().
		Float64("tabular_score", tabScore).
		Floats64("nail_probs", nailProbs[:]).
		Float64("dr_prob", drProb).
		Float64("w_tabular", fused.Weights.Tabular).
		Float64("w_nail", fused.Weights.Nail).
		Float64("w_dr", fused.Weights.DR).
		Msg("fused prediction")

	return buildResponse(tabScore, nailProbs, drProb, fused), nil
}

func buildResponse(tabScore float64, nail model.NailProbs, drProb float64, fused fusion.Result) *model.PredictionResponse {
	return &model.PredictionResponse{
		TabularScore: tabScore,
		NailProbs: model.NailProbsResponse{
			LowRisk:      nail[model.NailLowRisk],
			Diabetes:     nail[model.NailDiabetes],
			Hypertension: nail[model.NailHypertension],
		},
		DRProb: drProb,
		FusedRisks: model.FusedRisksResponse{
			Diabetes:     fused.Risks.Diabetes,
			Hypertension: fused.Risks.Hypertension,
			KidneyDR:     fused.Risks.KidneyDR,
		},
		ModelWeights: model.ModelWeightsResponse{
			Tabular: fused.Weights.Tabular,
			Nail:    fused.Weights.Nail,
			DR:      fused.Weights.DR,
		},
	}
}

func timed[T any](name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.Timing(name, time.Since(start), nil)
	return v, err
}
