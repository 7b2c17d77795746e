// Package middleware 提供 Gin 通用中间件（日志、trace、panic recover、鉴权）
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/exchangesim/pkg/logger"
	"github.com/wyfcoding/exchangesim/pkg/response"
)

// RequestIDKey context key for request ID
const RequestIDKey = "request_id"

// TraceIDKey context key for trace ID
const TraceIDKey = "trace_id"

// TeamIDKey context key for the authenticated team
const TeamIDKey = "team_id"

// TeamRoleKey context key for the authenticated team's role
const TeamRoleKey = "team_role"

// GinLoggingMiddleware Gin 日志中间件
func GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, requestID) //nolint:staticcheck
		ctx = context.WithValue(ctx, TraceIDKey, traceID)                      //nolint:staticcheck
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"status_code", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

// GinRecoveryMiddleware Gin panic 恢复中间件
func GinRecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(RequestIDKey)
				supportRef := uuid.New().String()

				logger.Error(c.Request.Context(), "HTTP request panicked",
					"panic", err,
					"support_reference", supportRef,
				)

				response.ErrorWithDetails(c, http.StatusInternalServerError, requestID,
					"INTERNAL_ERROR", "internal server error",
					map[string]any{"support_reference": supportRef})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// GinCORSMiddleware Gin CORS 中间件
func GinCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key, X-Request-ID, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// APIKeyAuthenticator 校验 api key 并返回团队身份
type APIKeyAuthenticator interface {
	AuthenticateKey(apiKey string) (teamID, role string, err error)
}

// APIKeyAuth 基于 X-API-Key 头（或 api_key 查询参数）的鉴权中间件
func APIKeyAuth(auth APIKeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			response.ErrorWithStatus(c, http.StatusUnauthorized, c.GetString(RequestIDKey),
				"UNAUTHORIZED", "missing api key")
			c.Abort()
			return
		}

		teamID, role, err := auth.AuthenticateKey(key)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusUnauthorized, c.GetString(RequestIDKey),
				"UNAUTHORIZED", "invalid api key")
			c.Abort()
			return
		}

		c.Set(TeamIDKey, teamID)
		c.Set(TeamRoleKey, role)
		c.Next()
	}
}
