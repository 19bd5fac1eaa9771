package model

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Predictor is the contract every loaded model satisfies.
type Predictor interface {
	Predict(input []float32) ([]float32, error)
}

// InitRuntime loads the onnxruntime shared library and initializes the
// process-wide environment. An empty libraryPath keeps the platform default.
func InitRuntime(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX environment")
	}
	return nil
}

// DestroyRuntime tears down the environment created by InitRuntime.
func DestroyRuntime() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// LoadMetadata reads a model's JSON metadata file.
func LoadMetadata(metadataPath string) (Metadata, error) {
	var metadata Metadata
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return metadata, errors.Wrap(err, "failed to read metadata")
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, errors.Wrap(err, "failed to parse metadata")
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if metadata.InputSize() == 0 || metadata.OutputSize() == 0 {
		return metadata, errors.Errorf("metadata %s: input_shape and output_shape are required", metadataPath)
	}
	return metadata, nil
}

// Session is a loaded ONNX model. Tensors are allocated per call, so one
// Session may serve concurrent requests.
type Session struct {
	session  *ort.DynamicAdvancedSession
	Metadata Metadata
}

func NewSession(modelPath string, metadata Metadata) (*Session, error) {
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create ONNX session for %s", modelPath)
	}

	return &Session{
		session:  session,
		Metadata: metadata,
	}, nil
}

func (s *Session) Predict(inputData []float32) ([]float32, error) {
	if len(inputData) != s.Metadata.InputSize() {
		return nil, errors.Errorf("expected %d input values, got %d", s.Metadata.InputSize(), len(inputData))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(s.Metadata.InputShape...), inputData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output tensor")
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	outputData := outputTensor.GetData()
	result := make([]float32, len(outputData))
	copy(result, outputData)
	return result, nil
}

func (s *Session) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
}
