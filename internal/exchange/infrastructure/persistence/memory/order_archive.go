// Package memory 提供交易所核心的内存态存储实现
package memory

import (
	"sort"
	"sync"

	"github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

// OrderArchive 终态订单内存归档，实现 domain.OrderArchive
type OrderArchive struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	byTeam map[string][]string
}

// NewOrderArchive 创建归档
func NewOrderArchive() *OrderArchive {
	return &OrderArchive{
		orders: make(map[string]*domain.Order),
		byTeam: make(map[string][]string),
	}
}

// Save 归档订单，重复保存以最新状态为准
func (a *OrderArchive) Save(order *domain.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.orders[order.OrderID]; !exists {
		a.byTeam[order.TeamID] = append(a.byTeam[order.TeamID], order.OrderID)
	}
	a.orders[order.OrderID] = order
}

// Get 按订单 ID 查询
func (a *OrderArchive) Get(orderID string) (*domain.Order, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	o, ok := a.orders[orderID]
	return o, ok
}

// ListByTeam 返回团队全部归档订单，按提交时间排序
func (a *OrderArchive) ListByTeam(teamID string) []*domain.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := a.byTeam[teamID]
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.orders[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}
