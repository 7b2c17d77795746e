// Package domain 推送通道的事件契约
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType 推送事件类型
type EventType string

const (
	// EventNewOrderAck 交易所接受委托（非校验通过）
	EventNewOrderAck EventType = "new_order_ack"
	// EventExecutionReport 每笔成交一条
	EventExecutionReport EventType = "execution_report"
	// EventOrderCancelled 撤单成功
	EventOrderCancelled EventType = "order_cancelled"
	// EventPositionSnapshot 订阅建立时推送的全量持仓
	EventPositionSnapshot EventType = "position_snapshot"
	// EventPhaseChange 时段切换，对全部订阅者广播一次
	EventPhaseChange EventType = "phase_change"
)

// Event 推送事件，Seq 为每连接单调递增序号，掉帧时序号仍前进以便订阅端检测
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewOrderAck 委托接受回报
type NewOrderAck struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Quantity      int64  `json:"quantity"`
}

// ExecutionReport 成交回报
type ExecutionReport struct {
	OrderID       string          `json:"order_id"`
	TradeID       string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	Remaining     int64           `json:"remaining"`
	LiquidityType string          `json:"liquidity_type"`
	Fee           decimal.Decimal `json:"fee"`
}

// OrderCancelled 撤单回报
type OrderCancelled struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	// 剩余未成交即被撤销的数量
	Remaining int64 `json:"remaining"`
}

// PositionSnapshot 全量持仓
type PositionSnapshot struct {
	Positions map[string]int64 `json:"positions"`
}

// PhaseChange 时段切换
type PhaseChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}
