package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fusion-api/internal/adapters"
	"github.com/Brownie44l1/fusion-api/internal/features"
	"github.com/Brownie44l1/fusion-api/internal/imaging"
	"github.com/Brownie44l1/fusion-api/internal/model"
)

const testSize = 32

type countingPredictor struct {
	mu     sync.Mutex
	out    []float32
	err    error
	calls  int
	inputs [][]float32
}

func (p *countingPredictor) Predict(input []float32) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.inputs = append(p.inputs, append([]float32(nil), input...))
	return p.out, p.err
}

type fixture struct {
	tabular *countingPredictor
	nail    *countingPredictor
	retina  *countingPredictor
	orch    *Orchestrator
}

func (f *fixture) totalCalls() int {
	return f.tabular.calls + f.nail.calls + f.retina.calls
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tabular: &countingPredictor{out: []float32{0.4, 0.6}},
		nail:    &countingPredictor{out: []float32{0.1, 0.7, 0.2}},
		retina:  &countingPredictor{out: []float32{0.3}},
	}
	schema := &features.Schema{
		Version:        "test",
		UsableFeatures: features.Names(),
		ExpectedOrder:  []string{"Age", "BMI", "LowSteps", "Gender_encoded", "Smoker"},
	}
	clahe, err := imaging.NewCLAHE(2.0, 8)
	require.NoError(t, err)

	registry := &adapters.Registry{
		Tabular: adapters.NewTabularAdapter("tabular", f.tabular, schema),
		Nail:    adapters.NewNailAdapter("nail", f.nail, testSize, imaging.LayoutNHWC, imaging.NormalizeEfficientNet),
		Retina:  adapters.NewRetinaAdapter("retina", f.retina, testSize, imaging.LayoutNHWC),
	}
	f.orch = New(registry, clahe)
	return f
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func validRequest(t *testing.T) model.RawRequest {
	return model.RawRequest{
		Age:                  52,
		Gender:               0,
		WeightKg:             70,
		HeightCm:             175,
		DailySteps:           3000,
		ExerciseHoursPerWeek: 1,
		SleepHours:           7,
		AlcoholPerWeek:       10,
		CaloriesPerDay:       2400,
		NailImage:            pngBytes(t, color.RGBA{R: 210, G: 160, B: 150, A: 255}),
		RetinaImage:          pngBytes(t, color.RGBA{R: 180, G: 60, B: 20, A: 255}),
	}
}

func TestPredictWorkedExample(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orch.Predict(context.Background(), validRequest(t))
	require.NoError(t, err)

	assert.InDelta(t, 0.6, resp.TabularScore, 1e-6)
	assert.InDelta(t, 0.7, resp.NailProbs.Diabetes, 1e-6)
	assert.InDelta(t, 0.3, resp.DRProb, 1e-6)

	assert.InDelta(t, 0.375, resp.ModelWeights.Tabular, 1e-6)
	assert.InDelta(t, 0.4375, resp.ModelWeights.Nail, 1e-6)
	assert.InDelta(t, 0.1875, resp.ModelWeights.DR, 1e-6)

	assert.InDelta(t, 0.590, resp.FusedRisks.Diabetes, 1e-3)
	assert.InDelta(t, 0.347, resp.FusedRisks.Hypertension, 1e-3)
	assert.InDelta(t, 0.0625, resp.FusedRisks.KidneyDR, 1e-3)

	require.Len(t, f.tabular.inputs, 1)
	row := f.tabular.inputs[0]
	require.Len(t, row, 5)
	assert.Equal(t, float32(52), row[0])
	assert.InDelta(t, 22.857, row[1], 1e-3)
	assert.Equal(t, float32(1), row[2])
	assert.Equal(t, float32(0), row[4])
	assert.Len(t, f.nail.inputs[0], testSize*testSize*3)
}

func TestPredictRejectsBadImagesBeforeInference(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RawRequest)
	}{
		{"bad nail image", func(r *model.RawRequest) { r.NailImage = []byte("not an image") }},
		{"bad retina image", func(r *model.RawRequest) { r.RetinaImage = []byte{0xff, 0xd8, 0x00} }},
		{"empty retina image", func(r *model.RawRequest) { r.RetinaImage = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest(t)
			tt.mutate(&req)

			resp, err := f.orch.Predict(context.Background(), req)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, model.ErrImageDecode)
			assert.Zero(t, f.totalCalls(), "no model may run when an upload is invalid")
		})
	}
}

func TestPredictInferenceFailure(t *testing.T) {
	f := newFixture(t)
	f.retina.err = stderrors.New("shape mismatch")

	resp, err := f.orch.Predict(context.Background(), validRequest(t))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, model.ErrInference)
	assert.Equal(t, 1, f.retina.calls, "inference is not retried")
}

func TestPredictIsDeterministic(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)

	first, err := f.orch.Predict(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orch.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, f.retina.inputs, 2)
	assert.Equal(t, f.retina.inputs[0], f.retina.inputs[1])
	assert.Equal(t, f.nail.inputs[0], f.nail.inputs[1])
}

func TestPredictCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Predict(ctx, validRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.totalCalls())
}

func TestPredictDegenerateFusion(t *testing.T) {
	f := newFixture(t)
	f.tabular.out = []float32{1, 0}
	f.nail.out = []float32{1, 0, 0}
	f.retina.out = []float32{0}

	resp, err := f.orch.Predict(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, resp.FusedRisks.Diabetes, 1e-9)
	assert.InDelta(t, 1.0/3, resp.FusedRisks.KidneyDR, 1e-9)
	assert.InDelta(t, 1.0, resp.ModelWeights.Nail, 1e-9)
}
