package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/climeval/internal/domain"
	"go.ngs.io/climeval/internal/usecase"
)

// Handler handles HTTP requests for grid normalization and regrid preparation.
type Handler struct {
	regridUC *usecase.RegridUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(regridUC *usecase.RegridUseCase) *Handler {
	return &Handler{
		regridUC: regridUC,
	}
}

// NormalizeRequest is the body of POST /v1/grids/normalize.
type NormalizeRequest struct {
	Grid domain.GridInput `json:"grid"`
	Zoom *int             `json:"zoom"`
}

// NormalizeGrid handles POST /v1/grids/normalize.
func (h *Handler) NormalizeGrid(c *gin.Context) {
	var req NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.regridUC.Normalize(req.Grid, req.Zoom)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Prepare handles POST /v1/regrid/prepare.
func (h *Handler) Prepare(c *gin.Context) {
	var req usecase.PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.regridUC.Prepare(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// EvaluateFormula handles POST /v1/formula/evaluate.
func (h *Handler) EvaluateFormula(c *gin.Context) {
	var req usecase.FormulaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := usecase.EvaluateFormula(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var cerr *domain.ConfigurationError
	switch {
	case errors.As(err, &cerr):
		status = http.StatusBadRequest
		if len(cerr.Suggestions) > 0 {
			body["suggestions"] = cerr.Suggestions
		}
	case errors.Is(err, usecase.ErrInvalidFormula):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingArtifact):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrGeneration):
		status = http.StatusBadGateway
	}
	if id, ok := c.Get("request_id"); ok {
		body["request_id"] = id
	}
	c.JSON(status, body)
}
