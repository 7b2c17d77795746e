// Package http 交易所核心的 HTTP 接口层
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/exchangesim/internal/exchange/application"
	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	"github.com/wyfcoding/exchangesim/pkg/middleware"
	"github.com/wyfcoding/exchangesim/pkg/response"
)

// Handler 交易所 HTTP 处理器
type Handler struct {
	service *application.Service
}

// NewHandler 创建处理器
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes 注册交易路由，auth 为 API key 鉴权中间件
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	trading := r.Group("", auth)
	{
		trading.POST("/orders", h.SubmitOrder)
		trading.DELETE("/orders/:id", h.CancelOrder)
		trading.GET("/orders", h.OpenOrders)
		trading.GET("/orders/history", h.OrderHistory)
		trading.GET("/positions", h.Positions)
		trading.GET("/depth/:symbol", h.Depth)
	}

	r.GET("/instruments", h.Instruments)
	r.GET("/phase", h.Phase)

	admin := r.Group("/admin")
	{
		admin.POST("/instruments", h.ListInstrument)
	}
}

// writeResult 将协调器结果写为统一包络
func (h *Handler) writeResult(c *gin.Context, result *application.Result) {
	requestID := result.RequestID
	if requestID == "" {
		requestID = c.GetString(middleware.RequestIDKey)
	}

	if result.Success {
		response.SuccessOrder(c, requestID, result.OrderID, result.Payload)
		return
	}
	if len(result.Details) > 0 {
		response.ErrorWithDetails(c, result.HTTPStatus, requestID, result.Code, result.Message, result.Details)
		return
	}
	response.ErrorWithStatus(c, result.HTTPStatus, requestID, result.Code, result.Message)
}

// SubmitOrder 下单
func (h *Handler) SubmitOrder(c *gin.Context) {
	var req application.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, c.GetString(middleware.RequestIDKey),
			"INVALID_REQUEST", err.Error())
		return
	}

	teamID := c.GetString(middleware.TeamIDKey)
	role := c.GetString(middleware.TeamRoleKey)
	result := h.service.SubmitOrder(c.Request.Context(), teamID, role, &req)
	h.writeResult(c, result)
}

// CancelOrder 撤单
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	teamID := c.GetString(middleware.TeamIDKey)

	result := h.service.CancelOrder(c.Request.Context(), teamID, orderID)
	h.writeResult(c, result)
}

// OpenOrders 查询未终态订单
func (h *Handler) OpenOrders(c *gin.Context) {
	teamID := c.GetString(middleware.TeamIDKey)
	orders := h.service.OpenOrders(teamID)
	response.Success(c, c.GetString(middleware.RequestIDKey), gin.H{"orders": orders})
}

// OrderHistory 查询历史订单
func (h *Handler) OrderHistory(c *gin.Context) {
	teamID := c.GetString(middleware.TeamIDKey)
	orders := h.service.OrderHistory(teamID)
	response.Success(c, c.GetString(middleware.RequestIDKey), gin.H{"orders": orders})
}

// Positions 查询持仓
func (h *Handler) Positions(c *gin.Context) {
	teamID := c.GetString(middleware.TeamIDKey)
	positions := h.service.Positions(teamID)
	response.Success(c, c.GetString(middleware.RequestIDKey), gin.H{"positions": positions})
}

// Depth 行情深度
func (h *Handler) Depth(c *gin.Context) {
	symbol := c.Param("symbol")
	levels, _ := strconv.Atoi(c.DefaultQuery("levels", "0"))

	depth, err := h.service.DepthSnapshot(symbol, levels)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, c.GetString(middleware.RequestIDKey),
			"INVALID_INSTRUMENT", err.Error())
		return
	}
	response.Success(c, c.GetString(middleware.RequestIDKey), depth)
}

// Instruments 全部已挂牌合约
func (h *Handler) Instruments(c *gin.Context) {
	response.Success(c, c.GetString(middleware.RequestIDKey), gin.H{"instruments": h.service.Instruments()})
}

// Phase 当前时段状态
func (h *Handler) Phase(c *gin.Context) {
	response.Success(c, c.GetString(middleware.RequestIDKey), h.service.CurrentPhase())
}

// ListInstrument 挂牌合约，管理操作
func (h *Handler) ListInstrument(c *gin.Context) {
	var req application.ListInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, c.GetString(middleware.RequestIDKey),
			"INVALID_REQUEST", err.Error())
		return
	}

	inst, err := h.service.ListInstrument(&req)
	if err != nil {
		code := "INVALID_REQUEST"
		if err == exchange.ErrSymbolExists {
			code = "SYMBOL_EXISTS"
		}
		response.ErrorWithStatus(c, http.StatusBadRequest, c.GetString(middleware.RequestIDKey), code, err.Error())
		return
	}
	response.Success(c, c.GetString(middleware.RequestIDKey), inst)
}
