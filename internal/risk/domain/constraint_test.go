package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

func buyOrder(qty int64) *exchange.Order {
	return exchange.NewOrder("ORD-1", "T1", "SPY-C-100", exchange.OrderSideBuy, exchange.OrderTypeLimit, decimal.NewFromInt(100), qty, "")
}

func sellOrder(qty int64) *exchange.Order {
	return exchange.NewOrder("ORD-2", "T1", "SPY-C-100", exchange.OrderSideSell, exchange.OrderTypeLimit, decimal.NewFromInt(100), qty, "")
}

func ctxWith(order *exchange.Order, positions map[string]int64) *ValidationContext {
	return &ValidationContext{
		Order:     order,
		TeamID:    "T1",
		Role:      "retail",
		Phase:     exchange.PhaseContinuous,
		Positions: positions,
	}
}

func TestPositionLimitSymmetric(t *testing.T) {
	limit := &PositionLimit{Max: 50, Symmetric: true}

	// 当前 +45，买 10 将突破 +50
	v := limit.Check(ctxWith(buyOrder(10), map[string]int64{"SPY-C-100": 45}))
	require.NotNil(t, v)
	assert.Equal(t, CodePositionLimit, v.Code)

	// 恰好到达上限允许
	assert.Nil(t, limit.Check(ctxWith(buyOrder(5), map[string]int64{"SPY-C-100": 45})))

	// 空头方向同样受限
	v = limit.Check(ctxWith(sellOrder(10), map[string]int64{"SPY-C-100": -45}))
	require.NotNil(t, v)
	assert.Equal(t, CodePositionLimit, v.Code)

	// 反向减仓放行
	assert.Nil(t, limit.Check(ctxWith(sellOrder(10), map[string]int64{"SPY-C-100": 45})))
}

func TestPositionLimitAsymmetric(t *testing.T) {
	limit := &PositionLimit{Max: 50}

	assert.Nil(t, limit.Check(ctxWith(buyOrder(50), nil)))
	v := limit.Check(ctxWith(buyOrder(51), nil))
	require.NotNil(t, v)
	assert.Equal(t, CodePositionLimit, v.Code)

	assert.Nil(t, limit.Check(ctxWith(sellOrder(50), nil)))
	assert.NotNil(t, limit.Check(ctxWith(sellOrder(51), nil)))
}

func TestPortfolioLimit(t *testing.T) {
	limit := &PortfolioLimit{MaxTotal: 100}

	positions := map[string]int64{"SPY-C-100": 40, "SPY-P-100": -50}
	// 总敞口 40+50=90，买 10 后 50+50=100 恰好合规
	assert.Nil(t, limit.Check(ctxWith(buyOrder(10), positions)))
	// 买 11 后 101 超限
	v := limit.Check(ctxWith(buyOrder(11), positions))
	require.NotNil(t, v)
	assert.Equal(t, CodePortfolioLimit, v.Code)

	// 未持仓的新合约计入增量
	fresh := exchange.NewOrder("ORD-3", "T1", "QQQ-C-50", exchange.OrderSideBuy, exchange.OrderTypeLimit, decimal.NewFromInt(10), 20, "")
	v = limit.Check(ctxWith(fresh, map[string]int64{"SPY-C-100": 90}))
	require.NotNil(t, v)
}

func TestOrderSize(t *testing.T) {
	size := &OrderSize{Min: 1, Max: 100}

	assert.Nil(t, size.Check(ctxWith(buyOrder(1), nil)))
	assert.Nil(t, size.Check(ctxWith(buyOrder(100), nil)))

	v := size.Check(ctxWith(buyOrder(101), nil))
	require.NotNil(t, v)
	assert.Equal(t, CodeInvalidQuantity, v.Code)
}

func TestOrderRate(t *testing.T) {
	rate := &OrderRate{MaxPerSecond: 3}

	ctx := ctxWith(buyOrder(1), nil)
	ctx.OrdersThisSecond = 2
	assert.Nil(t, rate.Check(ctx))

	ctx.OrdersThisSecond = 3
	v := rate.Check(ctx)
	require.NotNil(t, v)
	assert.Equal(t, CodeRateLimit, v.Code)
}

func TestAllowedOrderTypes(t *testing.T) {
	allowed := &AllowedOrderTypes{Types: []exchange.OrderType{exchange.OrderTypeLimit}}

	assert.Nil(t, allowed.Check(ctxWith(buyOrder(1), nil)))

	market := exchange.NewOrder("ORD-4", "T1", "SPY-C-100", exchange.OrderSideBuy, exchange.OrderTypeMarket, decimal.Zero, 1, "")
	v := allowed.Check(ctxWith(market, nil))
	require.NotNil(t, v)
	assert.Equal(t, CodeOrderTypeBlocked, v.Code)
}

func TestAllowedInstruments(t *testing.T) {
	allowed := &AllowedInstruments{Symbols: []string{"QQQ-C-50"}}

	v := allowed.Check(ctxWith(buyOrder(1), nil))
	require.NotNil(t, v)
	assert.Equal(t, CodeInstrumentBlock, v.Code)
}

func TestTradingWindow(t *testing.T) {
	window := &TradingWindow{Phases: []exchange.Phase{exchange.PhaseContinuous}}

	assert.Nil(t, window.Check(ctxWith(buyOrder(1), nil)))

	ctx := ctxWith(buyOrder(1), nil)
	ctx.Phase = exchange.PhasePreOpen
	v := window.Check(ctx)
	require.NotNil(t, v)
	assert.Equal(t, CodeMarketClosed, v.Code)
}

func TestPriceRange(t *testing.T) {
	pr := &PriceRange{Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(150)}

	assert.Nil(t, pr.Check(ctxWith(buyOrder(1), nil)))

	cheap := exchange.NewOrder("ORD-5", "T1", "SPY-C-100", exchange.OrderSideBuy, exchange.OrderTypeLimit, decimal.NewFromInt(10), 1, "")
	v := pr.Check(ctxWith(cheap, nil))
	require.NotNil(t, v)
	assert.Equal(t, CodeInvalidPrice, v.Code)

	// 市价单不检查价格
	market := exchange.NewOrder("ORD-6", "T1", "SPY-C-100", exchange.OrderSideBuy, exchange.OrderTypeMarket, decimal.Zero, 1, "")
	assert.Nil(t, pr.Check(ctxWith(market, nil)))
}

func TestRegistryShortCircuitsOnFirstViolation(t *testing.T) {
	registry := NewRegistry()
	registry.SetRole("retail", []Constraint{
		&OrderSize{Min: 1, Max: 10},
		&PositionLimit{Max: 5, Symmetric: true},
	})

	// 两条都违反时返回配置顺序在前的违例
	ctx := ctxWith(buyOrder(20), nil)
	v := registry.Validate(ctx)
	require.NotNil(t, v)
	assert.Equal(t, CodeInvalidQuantity, v.Code)

	// 未配置角色无约束
	ctx.Role = "unknown"
	assert.Nil(t, registry.Validate(ctx))
}
