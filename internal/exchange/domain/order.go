package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide 买卖方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ParseOrderSide 解析买卖方向，大小写不敏感
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return OrderSideBuy, nil
	case "SELL":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("invalid order side: %q", s)
	}
}

// Opposite 返回对手方向
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// ParseOrderType 解析订单类型，大小写不敏感
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return OrderTypeLimit, nil
	case "MARKET":
		return OrderTypeMarket, nil
	default:
		return "", fmt.Errorf("invalid order type: %q", s)
	}
}

// OrderStatus 订单状态
// NEW/PARTIALLY_FILLED 可以转为 CANCELLED，其余转移单调不可逆
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPendingNew      OrderStatus = "PENDING_NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal 是否终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order 订单实体
// 挂在订单簿上时由订单簿独占持有，终态后转入历史归档
type Order struct {
	// 服务端分配的订单 ID
	OrderID string `json:"order_id"`
	// 客户端自定义引用
	ClientOrderID string `json:"client_order_id,omitempty"`
	// 合约代码
	Symbol string `json:"symbol"`
	// 所属团队
	TeamID string `json:"team_id"`
	// 买卖方向
	Side OrderSide `json:"side"`
	// 订单类型
	Type OrderType `json:"type"`
	// 限价（市价单为零值）
	Price decimal.Decimal `json:"price"`
	// 委托数量
	Quantity int64 `json:"quantity"`
	// 剩余数量，不变量 0 <= Remaining <= Quantity
	Remaining int64 `json:"remaining"`
	// 订单状态
	Status OrderStatus `json:"status"`
	// 提交时间
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewOrder 创建订单
func NewOrder(orderID, teamID, symbol string, side OrderSide, typ OrderType, price decimal.Decimal, quantity int64, clientOrderID string) *Order {
	return &Order{
		OrderID:       orderID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		TeamID:        teamID,
		Side:          side,
		Type:          typ,
		Price:         price,
		Quantity:      quantity,
		Remaining:     quantity,
		Status:        OrderStatusNew,
		SubmittedAt:   time.Now(),
	}
}

// FilledQuantity 已成交数量
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.Remaining
}

// CanBeCancelled 是否可以撤单
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPendingNew || o.Status == OrderStatusPartiallyFilled
}

// before 价格相同档位内的排队顺序：先按提交时间，再按订单 ID 字典序
func (o *Order) before(other *Order) bool {
	if o.SubmittedAt.Equal(other.SubmittedAt) {
		return o.OrderID < other.OrderID
	}
	return o.SubmittedAt.Before(other.SubmittedAt)
}

// OrderArchive 终态订单的历史归档
type OrderArchive interface {
	Save(order *Order)
	Get(orderID string) (*Order, bool)
	ListByTeam(teamID string) []*Order
}
