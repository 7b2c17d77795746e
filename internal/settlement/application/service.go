// Package application 结算服务：成交驱动的持仓更新与费用计提
package application

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	position "github.com/wyfcoding/exchangesim/internal/position/domain"
	"github.com/wyfcoding/exchangesim/internal/settlement/domain"
	"github.com/wyfcoding/exchangesim/pkg/logger"
)

// RoleResolver 解析团队所属角色，费率按角色取
type RoleResolver interface {
	RoleOf(teamID string) string
}

// TradePublisher 对外发布成交流水，失败不阻断结算
type TradePublisher interface {
	PublishTrade(ctx context.Context, trade *exchange.Trade, fees []domain.FeeEntry) error
}

// Service 结算服务，全部成交经由单一结算通道保证持仓不变量
type Service struct {
	positions *position.Book
	fees      *domain.FeeSchedule
	roles     RoleResolver
	publisher TradePublisher

	mu     sync.Mutex
	ledger map[string]decimal.Decimal
}

// NewService 创建结算服务，publisher 可为 nil
func NewService(positions *position.Book, fees *domain.FeeSchedule, roles RoleResolver, publisher TradePublisher) *Service {
	return &Service{
		positions: positions,
		fees:      fees,
		roles:     roles,
		publisher: publisher,
		ledger:    make(map[string]decimal.Decimal),
	}
}

// SettleTrade 结算一笔成交：先更新双边持仓，再计提双边费用
func (s *Service) SettleTrade(ctx context.Context, trade *exchange.Trade) []domain.FeeEntry {
	s.positions.ApplyTrade(trade)

	entries := s.fees.FeesForTrade(trade, s.roles.RoleOf(trade.BuyerID), s.roles.RoleOf(trade.SellerID))
	s.mu.Lock()
	for _, e := range entries {
		s.ledger[e.TeamID] = s.ledger[e.TeamID].Add(e.Amount)
	}
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.PublishTrade(ctx, trade, entries); err != nil {
			logger.Warn(ctx, "trade feed publish failed",
				"trade_id", trade.TradeID,
				"error", err,
			)
		}
	}
	return entries
}

// FeesTotal 团队累计费用净额，正数为净返还
func (s *Service) FeesTotal(teamID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger[teamID]
}

// Positions 持仓账本
func (s *Service) Positions() *position.Book {
	return s.positions
}
