// Package http 团队注册的 HTTP 接口层
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/exchangesim/internal/team/domain"
	"github.com/wyfcoding/exchangesim/pkg/middleware"
	"github.com/wyfcoding/exchangesim/pkg/response"
)

// Handler 团队 HTTP 处理器
type Handler struct {
	registry *domain.Registry
}

// NewHandler 创建处理器
func NewHandler(registry *domain.Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes 注册团队路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/teams", h.Register)
}

type registerRequest struct {
	TeamName string `json:"team_name" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// Register 注册团队，响应含一次性下发的 API key
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, c.GetString(middleware.RequestIDKey),
			"INVALID_REQUEST", err.Error())
		return
	}

	team, err := h.registry.Register(req.TeamName, req.Role)
	if err != nil {
		code := "INVALID_ROLE"
		if err == domain.ErrTeamNameTaken {
			code = "TEAM_NAME_TAKEN"
		}
		response.ErrorWithStatus(c, http.StatusBadRequest, c.GetString(middleware.RequestIDKey), code, err.Error())
		return
	}
	response.Success(c, c.GetString(middleware.RequestIDKey), team)
}
