package handlers

import (
	"net/http"

	"care-alert/internal/services"
	apperrors "care-alert/pkg/errors"
	"care-alert/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	service *services.AuthService
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	account, token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		codeErr := apperrors.FromError(err)
		response.Error(c, codeErr.Code, codeErr.Message)
		return
	}

	response.Success(c, gin.H{
		"token": token,
		"account": gin.H{
			"email": account.Email,
			"name":  account.Name,
		},
	})
}
