// Package domain 成交结算的费用模型：按角色的 maker/taker 费率表
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

// RoleFees 单角色费率，金额符号约定：正数为给团队的返还，负数为扣费
type RoleFees struct {
	MakerRebate decimal.Decimal
	TakerFee    decimal.Decimal
}

// FeeSchedule 按角色的静态费率表，启动时装载后只读
type FeeSchedule struct {
	roles    map[string]RoleFees
	fallback RoleFees
}

// NewFeeSchedule 创建费率表
func NewFeeSchedule(roles map[string]RoleFees) *FeeSchedule {
	return &FeeSchedule{roles: roles}
}

// ParseRoleFees 解析十进制字符串费率
func ParseRoleFees(makerRebate, takerFee string) (RoleFees, error) {
	maker, err := decimal.NewFromString(makerRebate)
	if err != nil {
		return RoleFees{}, fmt.Errorf("invalid maker_rebate %q: %w", makerRebate, err)
	}
	taker, err := decimal.NewFromString(takerFee)
	if err != nil {
		return RoleFees{}, fmt.Errorf("invalid taker_fee %q: %w", takerFee, err)
	}
	return RoleFees{MakerRebate: maker, TakerFee: taker}, nil
}

// ForRole 角色费率，未配置角色按零费率
func (s *FeeSchedule) ForRole(role string) RoleFees {
	if f, ok := s.roles[role]; ok {
		return f
	}
	return s.fallback
}

// FeeEntry 单边费用条目，每笔成交产生买卖各一条
type FeeEntry struct {
	TradeID   string                 `json:"trade_id"`
	TeamID    string                 `json:"team_id"`
	Symbol    string                 `json:"symbol"`
	Liquidity exchange.LiquidityType `json:"liquidity_type"`
	// 正数为返还给团队，负数为扣费
	Amount decimal.Decimal `json:"amount"`
}

// FeesForTrade 计算一笔成交的双边费用
// maker 得返还、taker 扣费，集合竞价成交双方均按 maker 计
func (s *FeeSchedule) FeesForTrade(trade *exchange.Trade, buyerRole, sellerRole string) []FeeEntry {
	notional := trade.Price.Mul(decimal.NewFromInt(trade.Quantity))

	return []FeeEntry{
		s.entry(trade, trade.BuyerID, buyerRole, trade.LiquidityFor(exchange.OrderSideBuy), notional),
		s.entry(trade, trade.SellerID, sellerRole, trade.LiquidityFor(exchange.OrderSideSell), notional),
	}
}

func (s *FeeSchedule) entry(trade *exchange.Trade, teamID, role string, liq exchange.LiquidityType, notional decimal.Decimal) FeeEntry {
	fees := s.ForRole(role)
	var amount decimal.Decimal
	if liq == exchange.LiquidityMaker {
		amount = notional.Mul(fees.MakerRebate)
	} else {
		amount = notional.Mul(fees.TakerFee).Neg()
	}
	return FeeEntry{
		TradeID:   trade.TradeID,
		TeamID:    teamID,
		Symbol:    trade.Symbol,
		Liquidity: liq,
		Amount:    amount,
	}
}
