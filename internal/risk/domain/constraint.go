// Package domain 角色无关的委托约束规则引擎
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

// 约束违例码，与 API 错误码一致
const (
	CodePositionLimit    = "POSITION_LIMIT_EXCEEDED"
	CodePortfolioLimit   = "PORTFOLIO_LIMIT_EXCEEDED"
	CodeInvalidQuantity  = "INVALID_QUANTITY"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeOrderTypeBlocked = "ORDER_TYPE_NOT_ALLOWED"
	CodeInstrumentBlock  = "INVALID_INSTRUMENT"
	CodeMarketClosed     = "MARKET_CLOSED"
	CodeInvalidPrice     = "INVALID_PRICE"
)

// Violation 约束违例，首个违例即短路返回
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationContext 一次校验所需的全部快照，约束自身不持有状态
type ValidationContext struct {
	Order  *exchange.Order
	TeamID string
	Role   string
	Phase  exchange.Phase
	// 团队当前持仓 symbol -> 有符号数量
	Positions map[string]int64
	// 当前整秒窗口内已接受的订单数
	OrdersThisSecond int
}

// signedQuantity 委托的有符号数量，买正卖负
func (c *ValidationContext) signedQuantity() int64 {
	if c.Order.Side == exchange.OrderSideBuy {
		return c.Order.Quantity
	}
	return -c.Order.Quantity
}

// Constraint 单条约束，校验不得修改任何状态
type Constraint interface {
	Name() string
	Check(ctx *ValidationContext) *Violation
}

// PositionLimit 单合约持仓限制
type PositionLimit struct {
	Max int64
	// Symmetric 为 true 时限制 |持仓|，否则只限制委托方向上的敞口
	Symmetric bool
}

func (c *PositionLimit) Name() string { return "position_limit" }

func (c *PositionLimit) Check(ctx *ValidationContext) *Violation {
	after := ctx.Positions[ctx.Order.Symbol] + ctx.signedQuantity()

	if c.Symmetric {
		if after > c.Max || after < -c.Max {
			return &Violation{
				Code:    CodePositionLimit,
				Message: fmt.Sprintf("position limit exceeded: %d would breach ±%d on %s", after, c.Max, ctx.Order.Symbol),
			}
		}
		return nil
	}
	if ctx.Order.Side == exchange.OrderSideBuy && after > c.Max {
		return &Violation{
			Code:    CodePositionLimit,
			Message: fmt.Sprintf("position limit exceeded: long %d exceeds %d on %s", after, c.Max, ctx.Order.Symbol),
		}
	}
	if ctx.Order.Side == exchange.OrderSideSell && after < -c.Max {
		return &Violation{
			Code:    CodePositionLimit,
			Message: fmt.Sprintf("position limit exceeded: short %d exceeds %d on %s", after, c.Max, ctx.Order.Symbol),
		}
	}
	return nil
}

// PortfolioLimit 全组合总敞口限制 Σ|持仓| <= MaxTotal
type PortfolioLimit struct {
	MaxTotal int64
}

func (c *PortfolioLimit) Name() string { return "portfolio_limit" }

func (c *PortfolioLimit) Check(ctx *ValidationContext) *Violation {
	var total int64
	for symbol, qty := range ctx.Positions {
		if symbol == ctx.Order.Symbol {
			qty += ctx.signedQuantity()
		}
		if qty < 0 {
			qty = -qty
		}
		total += qty
	}
	if _, held := ctx.Positions[ctx.Order.Symbol]; !held {
		delta := ctx.signedQuantity()
		if delta < 0 {
			delta = -delta
		}
		total += delta
	}

	if total > c.MaxTotal {
		return &Violation{
			Code:    CodePortfolioLimit,
			Message: fmt.Sprintf("portfolio limit exceeded: total exposure %d exceeds %d", total, c.MaxTotal),
		}
	}
	return nil
}

// OrderSize 单笔委托数量区间
type OrderSize struct {
	Min int64
	Max int64
}

func (c *OrderSize) Name() string { return "order_size" }

func (c *OrderSize) Check(ctx *ValidationContext) *Violation {
	q := ctx.Order.Quantity
	if q < c.Min || (c.Max > 0 && q > c.Max) {
		return &Violation{
			Code:    CodeInvalidQuantity,
			Message: fmt.Sprintf("order size %d outside [%d, %d]", q, c.Min, c.Max),
		}
	}
	return nil
}

// OrderRate 每秒委托频率限制，窗口按整秒对齐
type OrderRate struct {
	MaxPerSecond int
}

func (c *OrderRate) Name() string { return "order_rate" }

func (c *OrderRate) Check(ctx *ValidationContext) *Violation {
	if ctx.OrdersThisSecond >= c.MaxPerSecond {
		return &Violation{
			Code:    CodeRateLimit,
			Message: fmt.Sprintf("rate limit exceeded: %d orders per second", c.MaxPerSecond),
		}
	}
	return nil
}

// AllowedOrderTypes 委托类型白名单
type AllowedOrderTypes struct {
	Types []exchange.OrderType
}

func (c *AllowedOrderTypes) Name() string { return "allowed_order_types" }

func (c *AllowedOrderTypes) Check(ctx *ValidationContext) *Violation {
	for _, t := range c.Types {
		if ctx.Order.Type == t {
			return nil
		}
	}
	return &Violation{
		Code:    CodeOrderTypeBlocked,
		Message: fmt.Sprintf("order type %s not allowed for role %s", ctx.Order.Type, ctx.Role),
	}
}

// AllowedInstruments 合约白名单
type AllowedInstruments struct {
	Symbols []string
}

func (c *AllowedInstruments) Name() string { return "allowed_instruments" }

func (c *AllowedInstruments) Check(ctx *ValidationContext) *Violation {
	for _, s := range c.Symbols {
		if ctx.Order.Symbol == s {
			return nil
		}
	}
	return &Violation{
		Code:    CodeInstrumentBlock,
		Message: fmt.Sprintf("instrument %s not allowed for role %s", ctx.Order.Symbol, ctx.Role),
	}
}

// TradingWindow 允许下单的时段白名单
type TradingWindow struct {
	Phases []exchange.Phase
}

func (c *TradingWindow) Name() string { return "trading_window" }

func (c *TradingWindow) Check(ctx *ValidationContext) *Violation {
	for _, p := range c.Phases {
		if ctx.Phase == p {
			return nil
		}
	}
	return &Violation{
		Code:    CodeMarketClosed,
		Message: fmt.Sprintf("trading not allowed in phase %s", ctx.Phase),
	}
}

// PriceRange 限价单价格区间，市价单不检查
type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func (c *PriceRange) Name() string { return "price_range" }

func (c *PriceRange) Check(ctx *ValidationContext) *Violation {
	if ctx.Order.Type != exchange.OrderTypeLimit {
		return nil
	}
	p := ctx.Order.Price
	if p.LessThan(c.Min) || (c.Max.IsPositive() && p.GreaterThan(c.Max)) {
		return &Violation{
			Code:    CodeInvalidPrice,
			Message: fmt.Sprintf("price %s outside [%s, %s]", p, c.Min, c.Max),
		}
	}
	return nil
}
