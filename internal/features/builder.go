// Package features turns the clinical form into the tabular model's input row.
package features

import "github.com/Brownie44l1/fusion-api/internal/model"

// Feature is a column the builder knows how to produce.
type Feature int

const (
	WeightKg Feature = iota
	HeightCm
	DailySteps
	ExerciseHoursPerWeek
	HoursOfSleep
	AlcoholPerWeek
	CaloriesPerDay
	Age
	BMI
	Obese
	LowSteps
	LowSleep
	HighAlcohol
	RiskFlagsSum
	GenderEncoded

	numFeatures
)

// Column names as the tabular model saw them during training.
var featureNames = [numFeatures]string{
	WeightKg:             "Weight_kg_x",
	HeightCm:             "Height_cm_x",
	DailySteps:           "Daily_Steps",
	ExerciseHoursPerWeek: "Exercise_Hours_per_Week",
	HoursOfSleep:         "Hours_of_Sleep",
	AlcoholPerWeek:       "Alcohol_Consumption_per_Week",
	CaloriesPerDay:       "Calories_kcal_per_day",
	Age:                  "Age",
	BMI:                  "BMI",
	Obese:                "Obese",
	LowSteps:             "LowSteps",
	LowSleep:             "LowSleep",
	HighAlcohol:          "HighAlcohol",
	RiskFlagsSum:         "RiskFlagsSum",
	GenderEncoded:        "Gender_encoded",
}

var featureByName = func() map[string]Feature {
	m := make(map[string]Feature, numFeatures)
	for f, name := range featureNames {
		m[name] = Feature(f)
	}
	return m
}()

func (f Feature) String() string {
	if f < 0 || f >= numFeatures {
		return "unknown"
	}
	return featureNames[f]
}

// Lookup resolves a model column name to a known feature.
func Lookup(name string) (Feature, bool) {
	f, ok := featureByName[name]
	return f, ok
}

// Names lists every column the builder produces, in enum order.
func Names() []string {
	names := make([]string, numFeatures)
	copy(names, featureNames[:])
	return names
}

const (
	obeseBMI        = 30.0
	lowStepsPerDay  = 5000
	lowSleepHours   = 6.0
	highAlcoholUnit = 7
)

// Engineered holds one value per known feature.
type Engineered [numFeatures]float64

func (e Engineered) Get(f Feature) float64 {
	return e[f]
}

// Engineer derives BMI, the four risk flags and their sum from the raw form.
// Gender is passed through unchanged as the encoded column.
func Engineer(req model.RawRequest) Engineered {
	var e Engineered

	e[WeightKg] = req.WeightKg
	e[HeightCm] = req.HeightCm
	e[DailySteps] = float64(req.DailySteps)
	e[ExerciseHoursPerWeek] = req.ExerciseHoursPerWeek
	e[HoursOfSleep] = req.SleepHours
	e[AlcoholPerWeek] = float64(req.AlcoholPerWeek)
	e[CaloriesPerDay] = float64(req.CaloriesPerDay)
	e[Age] = float64(req.Age)

	heightM := req.HeightCm / 100
	e[BMI] = req.WeightKg / (heightM * heightM)

	e[Obese] = flag(e[BMI] >= obeseBMI)
	e[LowSteps] = flag(req.DailySteps < lowStepsPerDay)
	e[LowSleep] = flag(req.SleepHours < lowSleepHours)
	e[HighAlcohol] = flag(req.AlcoholPerWeek >= highAlcoholUnit)
	e[RiskFlagsSum] = e[Obese] + e[LowSteps] + e[LowSleep] + e[HighAlcohol]

	e[GenderEncoded] = float64(req.Gender)

	return e
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Vector is a single inference row whose columns follow the model's order.
type Vector struct {
	Columns []string
	Values  []float32
}

// Align keeps the engineered features listed in usable, then reindexes them
// to order. Columns in order that are unknown or not usable are zero-filled;
// engineered features absent from order are dropped.
func Align(e Engineered, usable, order []string) Vector {
	var keep [numFeatures]bool
	for _, name := range usable {
		if f, ok := Lookup(name); ok {
			keep[f] = true
		}
	}

	v := Vector{
		Columns: make([]string, len(order)),
		Values:  make([]float32, len(order)),
	}
	copy(v.Columns, order)
	for i, name := range order {
		if f, ok := Lookup(name); ok && keep[f] {
			v.Values[i] = float32(e[f])
		}
	}
	return v
}

// Builder builds aligned rows for one feature schema.
type Builder struct {
	schema *Schema
}

func NewBuilder(schema *Schema) *Builder {
	return &Builder{schema: schema}
}

func (b *Builder) Schema() *Schema {
	return b.schema
}

func (b *Builder) Build(req model.RawRequest) Vector {
	return Align(Engineer(req), b.schema.UsableFeatures, b.schema.ExpectedOrder)
}
