package model

// Metadata describes one exported ONNX model. It is read from the JSON file
// shipped next to the model binary.
type Metadata struct {
	Name        string   `json:"name"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      string   `json:"layout"`
}

// InputSize is the number of float32 values a single inference call consumes.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

// OutputSize is the number of float32 values a single inference call produces.
func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		size *= int(dim)
	}
	return size
}

// RawRequest is the clinical form plus the two uploaded photographs.
type RawRequest struct {
	Age                  int
	Gender               int
	WeightKg             float64
	HeightCm             float64
	DailySteps           int
	ExerciseHoursPerWeek float64
	SleepHours           float64
	AlcoholPerWeek       int
	CaloriesPerDay       int

	NailImage   []byte
	RetinaImage []byte
}

// Nail classifier output indices.
const (
	NailLowRisk = iota
	NailDiabetes
	NailHypertension
)

// NailProbs is the nail classifier's probability simplex.
type NailProbs [3]float64

// Max returns the largest class probability.
func (p NailProbs) Max() float64 {
	m := p[0]
	for _, v := range p[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

type NailProbsResponse struct {
	LowRisk      float64 `json:"Low Risk"`
	Diabetes     float64 `json:"Diabetes"`
	Hypertension float64 `json:"Hypertension"`
}

type FusedRisksResponse struct {
	Diabetes     float64 `json:"Diabetes"`
	Hypertension float64 `json:"Hypertension"`
	KidneyDR     float64 `json:"Kidney/DR"`
}

type ModelWeightsResponse struct {
	Tabular float64 `json:"Tabular"`
	Nail    float64 `json:"Nail"`
	DR      float64 `json:"DR"`
}

// PredictionResponse carries every intermediate model output next to the
// fused result.
type PredictionResponse struct {
	TabularScore float64              `json:"tabular_score"`
	NailProbs    NailProbsResponse    `json:"nail_probs"`
	DRProb       float64              `json:"dr_prob"`
	FusedRisks   FusedRisksResponse   `json:"fused_risks"`
	ModelWeights ModelWeightsResponse `json:"model_weights"`
}
