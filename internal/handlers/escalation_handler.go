package handlers

import (
	"net/http"

	"care-alert/internal/services"
	"care-alert/pkg/response"

	"github.com/gin-gonic/gin"
)

type EscalationHandler struct {
	sweeper *services.EscalationSweeper
}

func NewEscalationHandler(sweeper *services.EscalationSweeper) *EscalationHandler {
	return &EscalationHandler{sweeper: sweeper}
}

// Process runs one escalation sweep on demand, outside the worker schedule.
func (h *EscalationHandler) Process(c *gin.Context) {
	escalated, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"escalated": escalated})
}
