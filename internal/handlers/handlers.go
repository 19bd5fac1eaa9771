package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/fusion-api/internal/model"
)

// Predictor serves one fused prediction.
type Predictor interface {
	Predict(ctx context.Context, req model.RawRequest) (*model.PredictionResponse, error)
}

// Info is reported by the health endpoint.
type Info struct {
	SchemaVersion string   `json:"schema_version"`
	Models        []string `json:"models"`
}

type Handler struct {
	predictor      Predictor
	info           Info
	maxUploadBytes int64
}

func NewHandler(predictor Predictor, info Info, maxUploadBytes int64) *Handler {
	return &Handler{
		predictor:      predictor,
		info:           info,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "API is running. Use /predict to POST images and tabular data."})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"schema_version": h.info.SchemaVersion,
		"models":         h.info.Models,
	})
}

func (h *Handler) Predict(c *gin.Context) {
	req, err := parseRequest(c, h.maxUploadBytes)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.predictor.Predict(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("prediction failed")
	} else {
		log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("rejected request")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Prediction failed"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func statusFor(err error) int {
	var missing *model.MissingFieldError
	switch {
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrImageDecode):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
