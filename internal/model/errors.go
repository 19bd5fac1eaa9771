package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrImageDecode is returned when an uploaded payload is not a decodable image.
	ErrImageDecode = errors.New("image decode failed")

	// ErrInference is returned when a model call fails or returns an output
	// of the wrong shape. Inference is deterministic, so it is never retried.
	ErrInference = errors.New("model inference failed")
)

// MissingFieldError rejects a request before any model is invoked.
type MissingFieldError struct {
	Field  string
	Reason string
}

func (e *MissingFieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("field %q is required", e.Field)
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// DecodeError wraps ErrImageDecode with the name of the offending upload.
func DecodeError(source string, cause error) error {
	if cause == nil {
		return errors.Wrap(ErrImageDecode, source)
	}
	return errors.Wrapf(ErrImageDecode, "%s: %v", source, cause)
}

// InferenceError wraps ErrInference with the model name.
func InferenceError(modelName string, cause error) error {
	if cause == nil {
		return errors.Wrap(ErrInference, modelName)
	}
	return errors.Wrapf(ErrInference, "%s: %v", modelName, cause)
}
