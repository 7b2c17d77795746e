// Package ws WebSocket 推送通道
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	exchangeapp "github.com/wyfcoding/exchangesim/internal/exchange/application"
	notification "github.com/wyfcoding/exchangesim/internal/notification/application"
	"github.com/wyfcoding/exchangesim/pkg/logger"
	"github.com/wyfcoding/exchangesim/pkg/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Handler WebSocket 接入点，握手经 API key 鉴权
type Handler struct {
	service  *exchangeapp.Service
	upgrader websocket.Upgrader
}

// NewHandler 创建接入点
func NewHandler(service *exchangeapp.Service) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve 升级连接并接入事件流，首条消息为全量持仓
func (h *Handler) Serve(c *gin.Context) {
	teamID := c.GetString(middleware.TeamIDKey)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed",
			"team_id", teamID,
			"error", err,
		)
		return
	}

	sub := h.service.SubscribePush(teamID)
	client := &client{
		conn:    conn,
		sub:     sub,
		service: h.service,
	}
	go client.writePump()
	go client.readPump()
}

// client 单个推送连接
type client struct {
	conn    *websocket.Conn
	sub     *notification.Subscriber
	service *exchangeapp.Service
}

// writePump 把订阅事件写到连接，周期性发送 ping
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只消费控制帧，连接断开时解除订阅
func (c *client) readPump() {
	defer func() {
		c.service.UnsubscribePush(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
