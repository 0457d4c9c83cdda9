package handlers

import (
	"encoding/json"
	"net/http"

	"care-alert/internal/middleware"
	"care-alert/internal/models"
	"care-alert/internal/services"
	apperrors "care-alert/pkg/errors"
	"care-alert/pkg/pagination"
	"care-alert/pkg/response"
	"care-alert/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AlertHandler struct {
	service *services.AlertService
}

func NewAlertHandler(service *services.AlertService) *AlertHandler {
	return &AlertHandler{service: service}
}

// Create handles detector-originated alert creation.
func (h *AlertHandler) Create(c *gin.Context) {
	var req services.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.service.CreateAlert(c.Request.Context(), &req)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	response.Success(c, alert)
}

type createFromAnomalyRequest struct {
	SharerEmail string                `json:"sharer_email" binding:"required,email"`
	Anomaly     *models.AnomalyResult `json:"anomaly" binding:"required"`
	Context     json.RawMessage       `json:"context"`
}

func (h *AlertHandler) CreateFromAnomaly(c *gin.Context) {
	var req createFromAnomalyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.service.CreateAlertFromAnomaly(c.Request.Context(), req.SharerEmail, req.Anomaly, req.Context)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	// alert is nil when the detector result was not an anomaly.
	response.Success(c, alert)
}

type createFromPatternBreakRequest struct {
	SharerEmail  string               `json:"sharer_email" binding:"required,email"`
	PatternBreak *models.PatternBreak `json:"pattern_break" binding:"required"`
	Context      json.RawMessage      `json:"context"`
}

func (h *AlertHandler) CreateFromPatternBreak(c *gin.Context) {
	var req createFromPatternBreakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.service.CreateAlertFromPatternBreak(c.Request.Context(), req.SharerEmail, req.PatternBreak, req.Context)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	response.Success(c, alert)
}

func (h *AlertHandler) Acknowledge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := h.service.Acknowledge(c.Request.Context(), id, middleware.CaregiverEmail(c))
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	response.Success(c, alert)
}

type resolveRequest struct {
	Note *string `json:"note"`
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid alert id")
		return
	}

	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	alert, err := h.service.Resolve(c.Request.Context(), id, middleware.CaregiverEmail(c), req.Note)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	response.Success(c, alert)
}

// List returns alerts across all sharers the authenticated caregiver is
// linked to.
func (h *AlertHandler) List(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	alerts, total, err := h.service.GetAlertsForCaregiver(c.Request.Context(), middleware.CaregiverEmail(c), filters)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	response.List(c, alerts, total, filters.Page, filters.PageSize)
}

// ListForSharer returns one sharer's alerts, access-checked against the
// authenticated caregiver. No relationship yields an empty list.
func (h *AlertHandler) ListForSharer(c *gin.Context) {
	sharerEmail := c.Param("email")
	if err := validator.Var(sharerEmail, "required,email"); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid sharer email")
		return
	}

	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	alerts, total, err := h.service.GetAlertsForSharer(c.Request.Context(), sharerEmail, middleware.CaregiverEmail(c), filters)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}
	response.List(c, alerts, total, filters.Page, filters.PageSize)
}

func parseFilters(c *gin.Context) (models.AlertFilters, bool) {
	filters := models.AlertFilters{
		Status:   models.AlertStatus(c.Query("status")),
		Page:     pagination.GetPage(c),
		PageSize: pagination.GetPageSize(c),
	}
	if raw := c.Query("severity"); raw != "" {
		severity, err := models.ParseSeverity(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return filters, false
		}
		filters.Severity = &severity
	}
	return filters, true
}
