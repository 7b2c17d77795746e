// Package response 提供统一的 HTTP 响应信封
package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope 所有 HTTP 响应的统一外层结构
type Envelope struct {
	Success   bool           `json:"success"`
	RequestID string         `json:"request_id,omitempty"`
	OrderID   string         `json:"order_id,omitempty"`
	Data      any            `json:"data,omitempty"`
	Error     *ErrorBody     `json:"error,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// ErrorBody 错误信息
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Success 返回成功响应
func Success(c *gin.Context, requestID string, data any) {
	c.JSON(200, Envelope{
		Success:   true,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SuccessOrder 返回订单操作的成功响应，order_id 置于信封顶层
func SuccessOrder(c *gin.Context, requestID, orderID string, data any) {
	c.JSON(200, Envelope{
		Success:   true,
		RequestID: requestID,
		OrderID:   orderID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorWithStatus 返回错误响应
func ErrorWithStatus(c *gin.Context, status int, requestID, code, message string) {
	c.JSON(status, Envelope{
		Success:   false,
		RequestID: requestID,
		Error:     &ErrorBody{Code: code, Message: message},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorWithDetails 返回附带细节的错误响应
func ErrorWithDetails(c *gin.Context, status int, requestID, code, message string, details map[string]any) {
	c.JSON(status, Envelope{
		Success:   false,
		RequestID: requestID,
		Error:     &ErrorBody{Code: code, Message: message, Details: details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
