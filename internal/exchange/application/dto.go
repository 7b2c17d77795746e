package application

import (
	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

// SubmitOrderRequest 下单请求
type SubmitOrderRequest struct {
	InstrumentID  string           `json:"instrument_id" binding:"required"`
	Side          string           `json:"side" binding:"required"`
	Quantity      int64            `json:"quantity"`
	Price         *decimal.Decimal `json:"price"`
	OrderType     string           `json:"order_type" binding:"required"`
	ClientOrderID string           `json:"client_order_id"`
	RequestID     string           `json:"request_id"`
}

// SubmitOrderResponse 下单结果
type SubmitOrderResponse struct {
	OrderID        string           `json:"order_id"`
	ClientOrderID  string           `json:"client_order_id,omitempty"`
	Status         string           `json:"status"`
	FilledQuantity int64            `json:"filled_quantity"`
	AveragePrice   *decimal.Decimal `json:"average_price,omitempty"`
	Fees           decimal.Decimal  `json:"fees"`
	LiquidityType  string           `json:"liquidity_type,omitempty"`
}

// CancelOrderResponse 撤单结果
type CancelOrderResponse struct {
	OrderID           string `json:"order_id"`
	Status            string `json:"status"`
	CancelledQuantity int64  `json:"cancelled_quantity"`
}

// ListInstrumentRequest 挂牌请求
type ListInstrumentRequest struct {
	Symbol     string           `json:"symbol" binding:"required"`
	Underlying string           `json:"underlying"`
	Kind       string           `json:"kind" binding:"required"`
	Strike     *decimal.Decimal `json:"strike"`
	Expiry     string           `json:"expiry"`
	OptionType string           `json:"option_type"`
}

// OrderView 订单视图
type OrderView struct {
	OrderID        string           `json:"order_id"`
	ClientOrderID  string           `json:"client_order_id,omitempty"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Type           string           `json:"type"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Quantity       int64            `json:"quantity"`
	Remaining      int64            `json:"remaining"`
	FilledQuantity int64            `json:"filled_quantity"`
	Status         string           `json:"status"`
	SubmittedAt    string           `json:"submitted_at"`
}

// NewOrderView 构造订单视图
func NewOrderView(o *exchange.Order) OrderView {
	v := OrderView{
		OrderID:        o.OrderID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Quantity:       o.Quantity,
		Remaining:      o.Remaining,
		FilledQuantity: o.FilledQuantity(),
		Status:         string(o.Status),
		SubmittedAt:    o.SubmittedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if o.Type == exchange.OrderTypeLimit {
		price := o.Price
		v.Price = &price
	}
	return v
}
