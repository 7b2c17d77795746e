package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

func testSchedule(t *testing.T) *FeeSchedule {
	t.Helper()
	mm, err := ParseRoleFees("0.0002", "0.0005")
	require.NoError(t, err)
	retail, err := ParseRoleFees("0.0000", "0.0010")
	require.NoError(t, err)
	return NewFeeSchedule(map[string]RoleFees{
		"market_maker": mm,
		"retail":       retail,
	})
}

func testTrade(aggressor exchange.AggressorSide) *exchange.Trade {
	return &exchange.Trade{
		TradeID:   "T-1",
		Symbol:    "SPY-C-100",
		BuyerID:   "A",
		SellerID:  "B",
		Price:     decimal.NewFromInt(100),
		Quantity:  10,
		Aggressor: aggressor,
	}
}

func TestFeesAggressorPaysTaker(t *testing.T) {
	schedule := testSchedule(t)

	// 卖方主动：买方为 maker 得返还，卖方为 taker 扣费
	entries := schedule.FeesForTrade(testTrade(exchange.AggressorSell), "market_maker", "retail")
	require.Len(t, entries, 2)

	buyer, seller := entries[0], entries[1]
	assert.Equal(t, "A", buyer.TeamID)
	assert.Equal(t, exchange.LiquidityMaker, buyer.Liquidity)
	// 1000 * 0.0002 = 0.2 返还
	assert.True(t, buyer.Amount.Equal(decimal.RequireFromString("0.2")), "buyer fee %s", buyer.Amount)

	assert.Equal(t, "B", seller.TeamID)
	assert.Equal(t, exchange.LiquidityTaker, seller.Liquidity)
	// 1000 * 0.0010 = 1 扣费
	assert.True(t, seller.Amount.Equal(decimal.RequireFromString("-1")), "seller fee %s", seller.Amount)
}

func TestFeesAuctionBothMaker(t *testing.T) {
	schedule := testSchedule(t)

	entries := schedule.FeesForTrade(testTrade(exchange.AggressorAuction), "market_maker", "retail")
	require.Len(t, entries, 2)
	assert.Equal(t, exchange.LiquidityMaker, entries[0].Liquidity)
	assert.Equal(t, exchange.LiquidityMaker, entries[1].Liquidity)
	// 双方都按 maker 返还计
	assert.True(t, entries[0].Amount.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, entries[1].Amount.GreaterThanOrEqual(decimal.Zero))
}

func TestFeesUnknownRoleZero(t *testing.T) {
	schedule := testSchedule(t)

	entries := schedule.FeesForTrade(testTrade(exchange.AggressorBuy), "unknown", "unknown")
	assert.True(t, entries[0].Amount.IsZero())
	assert.True(t, entries[1].Amount.IsZero())
}

func TestParseRoleFeesInvalid(t *testing.T) {
	_, err := ParseRoleFees("abc", "0.1")
	assert.Error(t, err)
	_, err = ParseRoleFees("0.1", "")
	assert.Error(t, err)
}
