package domain

import (
	"github.com/shopspring/decimal"
)

// OrderResult 撮合处理一笔订单后的结果
type OrderResult struct {
	Order     *Order
	Status    OrderStatus
	Trades    []*Trade
	Remaining int64
	// 拒单原因码，仅 REJECTED 时有值
	Reason string
}

// FilledQuantity 本次结果中的累计成交数量
func (r *OrderResult) FilledQuantity() int64 {
	var total int64
	for _, t := range r.Trades {
		total += t.Quantity
	}
	return total
}

// AveragePrice 成交均价，无成交返回零值
func (r *OrderResult) AveragePrice() decimal.Decimal {
	filled := r.FilledQuantity()
	if filled == 0 {
		return decimal.Zero
	}
	notional := decimal.Zero
	for _, t := range r.Trades {
		notional = notional.Add(t.Price.Mul(decimal.NewFromInt(t.Quantity)))
	}
	return notional.Div(decimal.NewFromInt(filled))
}

// MatchingEngine 撮合引擎，连续撮合与集合竞价各自实现
type MatchingEngine interface {
	// Submit 提交订单撮合
	Submit(order *Order) (*OrderResult, error)
	// Cancel 撤销订单
	Cancel(orderID, teamID string) (*Order, error)
}

// ContinuousEngine 连续撮合引擎，订单到达即与订单簿撮合
type ContinuousEngine struct {
	book *OrderBook
}

// NewContinuousEngine 创建连续撮合引擎
func NewContinuousEngine(book *OrderBook) *ContinuousEngine {
	return &ContinuousEngine{book: book}
}

// Submit 立即撮合，限价单剩余部分挂簿
func (e *ContinuousEngine) Submit(order *Order) (*OrderResult, error) {
	trades := e.book.Add(order)
	return &OrderResult{
		Order:     order,
		Status:    order.Status,
		Trades:    trades,
		Remaining: order.Remaining,
	}, nil
}

// Cancel 从订单簿撤单
func (e *ContinuousEngine) Cancel(orderID, teamID string) (*Order, error) {
	return e.book.Cancel(orderID, teamID)
}

// Book 返回底层订单簿
func (e *ContinuousEngine) Book() *OrderBook {
	return e.book
}
