package domain

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// priceLevel 同一价格档位的订单队列，FIFO
type priceLevel struct {
	price  decimal.Decimal
	orders *list.List // *Order
	volume int64
}

func newPriceLevel(price decimal.Decimal) *priceLevel {
	return &priceLevel{
		price:  price,
		orders: list.New(),
	}
}

// bookEntry 订单在订单簿内的位置索引，支持 O(1) 撤单定位
type bookEntry struct {
	order   *Order
	level   *priceLevel
	element *list.Element
}

// DepthLevel 行情深度中的一个价格档位
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth 订单簿快照
type Depth struct {
	Symbol    string       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// OrderBook 单合约的限价订单簿，价格优先、时间次之
// 买档降序、卖档升序，同档位内按入簿顺序排队
type OrderBook struct {
	mu     sync.RWMutex
	symbol string

	bids []*priceLevel // 价格降序
	asks []*priceLevel // 价格升序

	// orderID -> 位置索引
	entries map[string]*bookEntry

	// 为 false 时同一团队的对手挂单被跳过，不与之成交
	allowSelfTrade bool
}

// NewOrderBook 创建订单簿
func NewOrderBook(symbol string, allowSelfTrade bool) *OrderBook {
	return &OrderBook{
		symbol:         symbol,
		entries:        make(map[string]*bookEntry),
		allowSelfTrade: allowSelfTrade,
	}
}

// Symbol 返回合约代码
func (b *OrderBook) Symbol() string {
	return b.symbol
}

// Add 将订单撮合进订单簿，返回即时产生的成交
// 限价单剩余部分入簿挂单；市价单不入簿，吃完对手盘后剩余即撤销
func (b *OrderBook) Add(order *Order) []*Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	var trades []*Trade
	if order.Side == OrderSideBuy {
		trades = b.matchAgainst(order, &b.asks)
	} else {
		trades = b.matchAgainst(order, &b.bids)
	}

	switch {
	case order.Remaining == 0:
		order.Status = OrderStatusFilled
	case order.Type == OrderTypeMarket:
		// 市价单不挂单，剩余数量直接撤销
		order.Status = OrderStatusCancelled
	default:
		if order.FilledQuantity() > 0 {
			order.Status = OrderStatusPartiallyFilled
		} else {
			order.Status = OrderStatusNew
		}
		b.rest(order)
	}
	return trades
}

// matchAgainst 按价格优先顺序扫描对手档位撮合
func (b *OrderBook) matchAgainst(taker *Order, levels *[]*priceLevel) []*Trade {
	var trades []*Trade

	for taker.Remaining > 0 && len(*levels) > 0 {
		best := (*levels)[0]
		if taker.Type == OrderTypeLimit && !crosses(taker, best.price) {
			break
		}

		elem := best.orders.Front()
		for taker.Remaining > 0 && elem != nil {
			maker := elem.Value.(*Order)
			next := elem.Next()

			if !b.allowSelfTrade && maker.TeamID == taker.TeamID {
				elem = next
				continue
			}

			qty := taker.Remaining
			if maker.Remaining < qty {
				qty = maker.Remaining
			}

			taker.Remaining -= qty
			maker.Remaining -= qty
			best.volume -= qty

			if maker.Remaining == 0 {
				maker.Status = OrderStatusFilled
				best.orders.Remove(elem)
				delete(b.entries, maker.OrderID)
			} else {
				maker.Status = OrderStatusPartiallyFilled
			}

			trades = append(trades, b.newTrade(taker, maker, best.price, qty))
			elem = next
		}

		if best.orders.Len() == 0 {
			*levels = (*levels)[1:]
		} else if taker.Remaining > 0 {
			// 档位未清空但无法继续成交，只剩同团队挂单
			break
		}
	}
	return trades
}

// crosses 限价单价格是否能与对手档位成交
func crosses(taker *Order, levelPrice decimal.Decimal) bool {
	if taker.Side == OrderSideBuy {
		return taker.Price.GreaterThanOrEqual(levelPrice)
	}
	return taker.Price.LessThanOrEqual(levelPrice)
}

// newTrade 按挂单价成交，主动方为 taker 一侧
func (b *OrderBook) newTrade(taker, maker *Order, price decimal.Decimal, qty int64) *Trade {
	t := &Trade{
		TradeID:   generateTradeID(),
		Symbol:    b.symbol,
		Price:     price,
		Quantity:  qty,
		Aggressor: AggressorSide(taker.Side),
		Timestamp: time.Now(),
	}
	if taker.Side == OrderSideBuy {
		t.BuyOrderID, t.BuyerID = taker.OrderID, taker.TeamID
		t.SellOrderID, t.SellerID = maker.OrderID, maker.TeamID
	} else {
		t.BuyOrderID, t.BuyerID = maker.OrderID, maker.TeamID
		t.SellOrderID, t.SellerID = taker.OrderID, taker.TeamID
	}
	return t
}

// rest 将限价单剩余部分挂入订单簿
func (b *OrderBook) rest(order *Order) {
	levels := &b.asks
	if order.Side == OrderSideBuy {
		levels = &b.bids
	}

	idx := sort.Search(len(*levels), func(i int) bool {
		if order.Side == OrderSideBuy {
			return (*levels)[i].price.LessThanOrEqual(order.Price)
		}
		return (*levels)[i].price.GreaterThanOrEqual(order.Price)
	})

	var level *priceLevel
	if idx < len(*levels) && (*levels)[idx].price.Equal(order.Price) {
		level = (*levels)[idx]
	} else {
		level = newPriceLevel(order.Price)
		*levels = append(*levels, nil)
		copy((*levels)[idx+1:], (*levels)[idx:])
		(*levels)[idx] = level
	}

	elem := level.orders.PushBack(order)
	level.volume += order.Remaining
	b.entries[order.OrderID] = &bookEntry{order: order, level: level, element: elem}
}

// Cancel 撤销挂单，校验归属
func (b *OrderBook) Cancel(orderID, teamID string) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if entry.order.TeamID != teamID {
		return nil, ErrNotOrderOwner
	}

	b.removeEntry(entry)
	entry.order.Status = OrderStatusCancelled
	return entry.order, nil
}

func (b *OrderBook) removeEntry(entry *bookEntry) {
	entry.level.orders.Remove(entry.element)
	entry.level.volume -= entry.order.Remaining
	delete(b.entries, entry.order.OrderID)
	if entry.level.orders.Len() == 0 {
		b.dropLevel(entry.level, entry.order.Side)
	}
}

func (b *OrderBook) dropLevel(level *priceLevel, side OrderSide) {
	levels := &b.asks
	if side == OrderSideBuy {
		levels = &b.bids
	}
	for i, l := range *levels {
		if l == level {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
			return
		}
	}
}

// BestBid 最优买价
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 {
		return decimal.Zero, false
	}
	return b.bids[0].price, true
}

// BestAsk 最优卖价
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.asks) == 0 {
		return decimal.Zero, false
	}
	return b.asks[0].price, true
}

// Depth 返回前 maxLevels 档的行情快照，maxLevels <= 0 时返回全部
func (b *OrderBook) Depth(maxLevels int) *Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	d := &Depth{
		Symbol:    b.symbol,
		Bids:      snapshotLevels(b.bids, maxLevels),
		Asks:      snapshotLevels(b.asks, maxLevels),
		Timestamp: time.Now(),
	}
	return d
}

func snapshotLevels(levels []*priceLevel, max int) []DepthLevel {
	n := len(levels)
	if max > 0 && max < n {
		n = max
	}
	out := make([]DepthLevel, 0, n)
	for _, l := range levels[:n] {
		out = append(out, DepthLevel{
			Price:    l.price,
			Quantity: l.volume,
			Orders:   l.orders.Len(),
		})
	}
	return out
}

// Get 按订单 ID 查询在簿订单
func (b *OrderBook) Get(orderID string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[orderID]
	if !ok {
		return nil, false
	}
	return entry.order, true
}

// OrdersForTeam 返回团队全部在簿订单
func (b *OrderBook) OrdersForTeam(teamID string) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Order
	for _, entry := range b.entries {
		if entry.order.TeamID == teamID {
			out = append(out, entry.order)
		}
	}
	return out
}

// Size 在簿订单总数
func (b *OrderBook) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Drain 清空订单簿并返回全部被撤销的订单，用于收盘全撤
func (b *OrderBook) Drain() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Order, 0, len(b.entries))
	for _, entry := range b.entries {
		entry.order.Status = OrderStatusCancelled
		out = append(out, entry.order)
	}
	b.bids = nil
	b.asks = nil
	b.entries = make(map[string]*bookEntry)

	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}
