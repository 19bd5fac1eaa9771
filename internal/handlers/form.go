package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/Brownie44l1/fusion-api/internal/model"
)

// Form field names of the prediction endpoint.
const (
	fieldAge            = "Age"
	fieldGender         = "Gender"
	fieldWeight         = "Weight_kg"
	fieldHeight         = "Height_cm"
	fieldSteps          = "Daily_Steps"
	fieldExercise       = "Exercise_Hours_per_Week"
	fieldSleep          = "Sleep_Hours"
	fieldAlcohol        = "Alcohol_per_Week"
	fieldCalories       = "Calories_per_Day"
	fieldNailImage      = "nail_image"
	fieldRetinaImage    = "dr_image"
	multipartMemoryBase = 10 << 20
)

type formReader struct {
	c   *gin.Context
	err error
}

func (f *formReader) value(field string) (string, bool) {
	if f.err != nil {
		return "", false
	}
	raw, ok := f.c.GetPostForm(field)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		f.err = &model.MissingFieldError{Field: field}
		return "", false
	}
	return raw, true
}

func (f *formReader) int(field string) int {
	raw, ok := f.value(field)
	if !ok {
		return 0
	}
	v, err := cast.ToIntE(decimal(raw))
	if err != nil {
		f.err = &model.MissingFieldError{Field: field, Reason: "must be an integer"}
	}
	return v
}

// decimal strips leading zeros so cast reads the value in base 10. cast
// honours base prefixes, which would turn "010" into 8 and accept "0x1F".
func decimal(raw string) string {
	sign := ""
	if raw[0] == '+' || raw[0] == '-' {
		sign, raw = raw[:1], raw[1:]
	}
	digits := strings.TrimLeft(raw, "0")
	if len(digits) < len(raw) && (digits == "" || digits[0] == '.') {
		digits = "0" + digits
	}
	return sign + digits
}

func (f *formReader) float(field string) float64 {
	raw, ok := f.value(field)
	if !ok {
		return 0
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		f.err = &model.MissingFieldError{Field: field, Reason: "must be a number"}
	}
	return v
}

func (f *formReader) file(field string) []byte {
	if f.err != nil {
		return nil
	}
	header, err := f.c.FormFile(field)
	if err != nil {
		f.err = &model.MissingFieldError{Field: field, Reason: "image file is required"}
		return nil
	}
	data, err := readUpload(header)
	if err != nil {
		f.err = errors.Wrapf(err, "failed to read %s", field)
		return nil
	}
	return data
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// parseRequest reads the multipart form. Every scalar field and both uploads
// are required; values are only type-checked, not range-checked.
func parseRequest(c *gin.Context, maxBytes int64) (model.RawRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	if err := c.Request.ParseMultipartForm(min(maxBytes, multipartMemoryBase)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.RawRequest{}, &model.MissingFieldError{Field: "body", Reason: "upload too large"}
		}
		return model.RawRequest{}, &model.MissingFieldError{Field: "body", Reason: "expected a multipart form"}
	}

	f := &formReader{c: c}
	req := model.RawRequest{
		Age:                  f.int(fieldAge),
		Gender:               f.int(fieldGender),
		WeightKg:             f.float(fieldWeight),
		HeightCm:             f.float(fieldHeight),
		DailySteps:           f.int(fieldSteps),
		ExerciseHoursPerWeek: f.float(fieldExercise),
		SleepHours:           f.float(fieldSleep),
		AlcoholPerWeek:       f.int(fieldAlcohol),
		CaloriesPerDay:       f.int(fieldCalories),
		NailImage:            f.file(fieldNailImage),
		RetinaImage:          f.file(fieldRetinaImage),
	}
	if f.err != nil {
		return model.RawRequest{}, f.err
	}
	return req, nil
}
