// Package domain 团队持仓账本
package domain

import (
	"sync"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

// Book 持仓账本 {team -> {symbol -> 有符号数量}}
// 不变量：任意时刻持仓等于该团队该合约全部成交的 Σ买 - Σ卖
type Book struct {
	mu        sync.RWMutex
	positions map[string]map[string]int64
}

// NewBook 创建持仓账本
func NewBook() *Book {
	return &Book{positions: make(map[string]map[string]int64)}
}

// ApplyTrade 按成交原子更新买卖双方持仓
func (b *Book) ApplyTrade(trade *exchange.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.add(trade.BuyerID, trade.Symbol, trade.Quantity)
	b.add(trade.SellerID, trade.Symbol, -trade.Quantity)
}

func (b *Book) add(teamID, symbol string, delta int64) {
	m, ok := b.positions[teamID]
	if !ok {
		m = make(map[string]int64)
		b.positions[teamID] = m
	}
	m[symbol] += delta
	if m[symbol] == 0 {
		delete(m, symbol)
	}
}

// Get 团队在某合约上的持仓
func (b *Book) Get(teamID, symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[teamID][symbol]
}

// Snapshot 团队全部持仓的拷贝
func (b *Book) Snapshot(teamID string) map[string]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]int64, len(b.positions[teamID]))
	for symbol, qty := range b.positions[teamID] {
		out[symbol] = qty
	}
	return out
}
