package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
)

// AggressorSide 成交的主动方：吃掉盘口的一侧付 taker 费，集合竞价双方均视为 maker
type AggressorSide string

const (
	AggressorBuy     AggressorSide = "BUY"
	AggressorSell    AggressorSide = "SELL"
	AggressorAuction AggressorSide = "AUCTION"
)

// LiquidityType 流动性类型，决定费率方向
type LiquidityType string

const (
	LiquidityMaker LiquidityType = "MAKER"
	LiquidityTaker LiquidityType = "TAKER"
)

// Trade 成交记录，生成后不可变
type Trade struct {
	TradeID     string          `json:"trade_id"`
	Symbol      string          `json:"symbol"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Aggressor   AggressorSide   `json:"aggressor_side"`
	Timestamp   time.Time       `json:"timestamp"`
}

// LiquidityFor 返回某一方向在本笔成交中的流动性类型
func (t *Trade) LiquidityFor(side OrderSide) LiquidityType {
	if t.Aggressor == AggressorAuction {
		return LiquidityMaker
	}
	if string(t.Aggressor) == string(side) {
		return LiquidityTaker
	}
	return LiquidityMaker
}

// TeamSide 返回团队在本笔成交中的方向；团队两侧自成交时按买方计
func (t *Trade) TeamSide(teamID string) (OrderSide, bool) {
	if t.BuyerID == teamID {
		return OrderSideBuy, true
	}
	if t.SellerID == teamID {
		return OrderSideSell, true
	}
	return "", false
}

func generateTradeID() string {
	return fmt.Sprintf("T-%d", idgen.GenID())
}
