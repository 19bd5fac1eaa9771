package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fusion-api/internal/model"
)

type fakePredictor struct {
	resp  *model.PredictionResponse
	err   error
	calls int
	got   model.RawRequest
}

func (f *fakePredictor) Predict(_ context.Context, req model.RawRequest) (*model.PredictionResponse, error) {
	f.calls++
	f.got = req
	return f.resp, f.err
}

func validFields() map[string]string {
	return map[string]string{
		"Age":                     "45",
		"Gender":                  "1",
		"Weight_kg":               "70.5",
		"Height_cm":               "175",
		"Daily_Steps":             "3000",
		"Exercise_Hours_per_Week": "2.5",
		"Sleep_Hours":             "6.5",
		"Alcohol_per_Week":        "10",
		"Calories_per_Day":        "2200",
	}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".jpg")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func defaultFiles() map[string][]byte {
	return map[string][]byte{
		"nail_image": []byte("nail-bytes"),
		"dr_image":   []byte("retina-bytes"),
	}
}

func newRouter(p Predictor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(p, Info{SchemaVersion: "v1", Models: []string{"tabular", "nail", "retina"}}, 1<<20).Register(r)
	return r
}

func post(t *testing.T, r http.Handler, fields map[string]string, files map[string][]byte) *httptest.ResponseRecorder {
	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPredictSuccess(t *testing.T) {
	p := &fakePredictor{resp: &model.PredictionResponse{
		TabularScore: 0.6,
		NailProbs:    model.NailProbsResponse{LowRisk: 0.1, Diabetes: 0.7, Hypertension: 0.2},
		DRProb:       0.3,
		FusedRisks:   model.FusedRisksResponse{Diabetes: 0.59, Hypertension: 0.35, KidneyDR: 0.06},
		ModelWeights: model.ModelWeightsResponse{Tabular: 0.375, Nail: 0.4375, DR: 0.1875},
	}}

	w := post(t, newRouter(p), validFields(), defaultFiles())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, 45, p.got.Age)
	assert.Equal(t, 1, p.got.Gender)
	assert.Equal(t, 70.5, p.got.WeightKg)
	assert.Equal(t, 3000, p.got.DailySteps)
	assert.Equal(t, 6.5, p.got.SleepHours)
	assert.Equal(t, 10, p.got.AlcoholPerWeek)
	assert.Equal(t, []byte("nail-bytes"), p.got.NailImage)
	assert.Equal(t, []byte("retina-bytes"), p.got.RetinaImage)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, 0.6, payload["tabular_score"])
	assert.Equal(t, 0.7, payload["nail_probs"].(map[string]any)["Diabetes"])
	assert.Equal(t, 0.06, payload["fused_risks"].(map[string]any)["Kidney/DR"])
	assert.Equal(t, 0.1875, payload["model_weights"].(map[string]any)["DR"])
}

func TestPredictRejectsBadForms(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(fields map[string]string, files map[string][]byte)
		field  string
	}{
		{"missing age", func(f map[string]string, _ map[string][]byte) { delete(f, "Age") }, "Age"},
		{"blank weight", func(f map[string]string, _ map[string][]byte) { f["Weight_kg"] = " " }, "Weight_kg"},
		{"fractional steps", func(f map[string]string, _ map[string][]byte) { f["Daily_Steps"] = "3000.5" }, "Daily_Steps"},
		{"hex age", func(f map[string]string, _ map[string][]byte) { f["Age"] = "0x1F" }, "Age"},
		{"binary steps", func(f map[string]string, _ map[string][]byte) { f["Daily_Steps"] = "0b101" }, "Daily_Steps"},
		{"bare sign", func(f map[string]string, _ map[string][]byte) { f["Gender"] = "-" }, "Gender"},
		{"non numeric sleep", func(f map[string]string, _ map[string][]byte) { f["Sleep_Hours"] = "lots" }, "Sleep_Hours"},
		{"missing nail image", func(_ map[string]string, f map[string][]byte) { delete(f, "nail_image") }, "nail_image"},
		{"missing retina image", func(_ map[string]string, f map[string][]byte) { delete(f, "dr_image") }, "dr_image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePredictor{}
			fields, files := validFields(), defaultFiles()
			tt.mutate(fields, files)

			w := post(t, newRouter(p), fields, files)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, w.Body.String(), tt.field)
			assert.Zero(t, p.calls)
		})
	}
}

func TestPredictReadsIntegersInBase10(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"010", 10},
		{"08", 8},
		{"0045", 45},
		{"+45", 45},
		{"0", 0},
		{"000", 0},
		{"45.0", 45},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := &fakePredictor{resp: &model.PredictionResponse{}}
			fields := validFields()
			fields["Age"] = tt.raw
			fields["Daily_Steps"] = "0" + fields["Daily_Steps"]

			w := post(t, newRouter(p), fields, defaultFiles())
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, p.got.Age)
			assert.Equal(t, 3000, p.got.DailySteps)
		})
	}
}

func TestPredictNotMultipart(t *testing.T) {
	p := &fakePredictor{}
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(`{"Age": 1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newRouter(p).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Zero(t, p.calls)
}

func TestPredictErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"decode", model.DecodeError("nail_image", errors.New("bad header")), http.StatusBadRequest},
		{"inference", model.InferenceError("retina", errors.New("shape")), http.StatusInternalServerError},
		{"timeout", errors.Wrap(context.DeadlineExceeded, "predict"), http.StatusGatewayTimeout},
		{"other", errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, newRouter(&fakePredictor{err: tt.err}), validFields(), defaultFiles())
			assert.Equal(t, tt.code, w.Code)

			var payload map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestHealthAndRoot(t *testing.T) {
	r := newRouter(&fakePredictor{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "v1", health["schema_version"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/predict")
}
