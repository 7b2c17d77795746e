package domain

import (
	cryptorand "crypto/rand"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionPrice 定价策略的输出：统一成交价与该价位的可成交量
type AuctionPrice struct {
	ClearingPrice decimal.Decimal `json:"clearing_price"`
	MaxVolume     int64           `json:"max_volume"`
	// 最大成交量并列时的价格区间，无并列时上下界相等
	PriceLow  decimal.Decimal `json:"price_low"`
	PriceHigh decimal.Decimal `json:"price_high"`
}

// PricingStrategy 集合竞价定价策略
// buys 按价格降序、sells 按价格升序传入，市价单排在各自最前
type PricingStrategy interface {
	Name() string
	CalculateClearingPrice(buys, sells []*Order) (*AuctionPrice, bool)
}

// executableVolume 价位 p 上的可成交量 min(累计买量@>=p, 累计卖量@<=p)
// 市价单在任何价位都计入
func executableVolume(price decimal.Decimal, buys, sells []*Order) int64 {
	var bidQty, askQty int64
	for _, o := range buys {
		if o.Type == OrderTypeMarket || o.Price.GreaterThanOrEqual(price) {
			bidQty += o.Remaining
		}
	}
	for _, o := range sells {
		if o.Type == OrderTypeMarket || o.Price.LessThanOrEqual(price) {
			askQty += o.Remaining
		}
	}
	if bidQty < askQty {
		return bidQty
	}
	return askQty
}

// EquilibriumStrategy 传统定价：成交价取与最优买价交叉的最低卖价
type EquilibriumStrategy struct{}

func (EquilibriumStrategy) Name() string { return "equilibrium" }

func (EquilibriumStrategy) CalculateClearingPrice(buys, sells []*Order) (*AuctionPrice, bool) {
	bestAsk := decimal.Zero
	hasAsk := false
	for _, s := range sells {
		if s.Type == OrderTypeMarket {
			continue
		}
		if !hasAsk || s.Price.LessThan(bestAsk) {
			bestAsk = s.Price
			hasAsk = true
		}
	}
	if !hasAsk {
		return nil, false
	}

	crossed := false
	for _, b := range buys {
		if b.Type == OrderTypeMarket || b.Price.GreaterThanOrEqual(bestAsk) {
			crossed = true
			break
		}
	}
	if !crossed {
		return nil, false
	}

	vol := executableVolume(bestAsk, buys, sells)
	if vol == 0 {
		return nil, false
	}
	return &AuctionPrice{
		ClearingPrice: bestAsk,
		MaxVolume:     vol,
		PriceLow:      bestAsk,
		PriceHigh:     bestAsk,
	}, true
}

// MaxVolumeStrategy 最大成交量定价，多价位并列时取区间中点
type MaxVolumeStrategy struct{}

func (MaxVolumeStrategy) Name() string { return "maximum_volume" }

func (MaxVolumeStrategy) CalculateClearingPrice(buys, sells []*Order) (*AuctionPrice, bool) {
	// 候选价取两侧全部限价
	seen := make(map[string]struct{})
	var candidates []decimal.Decimal
	for _, o := range append(append([]*Order{}, buys...), sells...) {
		if o.Type == OrderTypeMarket {
			continue
		}
		key := o.Price.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, o.Price)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].LessThan(candidates[j]) })

	var bestVol int64
	var tied []decimal.Decimal
	for _, p := range candidates {
		vol := executableVolume(p, buys, sells)
		switch {
		case vol > bestVol:
			bestVol = vol
			tied = tied[:0]
			tied = append(tied, p)
		case vol == bestVol && vol > 0:
			tied = append(tied, p)
		}
	}
	if bestVol == 0 {
		return nil, false
	}

	low, high := tied[0], tied[len(tied)-1]
	clearing := low
	if !low.Equal(high) {
		clearing = low.Add(high).Div(decimal.NewFromInt(2))
	}
	return &AuctionPrice{
		ClearingPrice: clearing,
		MaxVolume:     bestVol,
		PriceLow:      low,
		PriceHigh:     high,
	}, true
}

// AuctionResult 单合约一轮集合竞价的结果
type AuctionResult struct {
	Symbol string `json:"symbol"`
	// Priced 为 false 表示未形成成交价，全部订单转入连续簿
	Priced        bool            `json:"priced"`
	ClearingPrice decimal.Decimal `json:"clearing_price"`
	// 集合竞价统一价成交量，不含转簿后的连续成交
	Volume int64 `json:"volume"`
	// 全部成交，含统一价成交与残余转簿时的连续成交
	Trades  []*Trade       `json:"trades"`
	Results []*OrderResult `json:"-"`
}

// BatchEngine 集合竞价引擎
// 竞价时段内只收单不撮合，ExecuteBatch 时以统一价一次性撮合
type BatchEngine struct {
	mu       sync.Mutex
	strategy PricingStrategy
	pending  map[string][]*Order // symbol -> 到达顺序
	index    map[string]*Order   // orderID -> order
	rng      *rand.Rand
}

// BatchOption 构造选项
type BatchOption func(*BatchEngine)

// WithRand 注入随机源，测试用
func WithRand(r *rand.Rand) BatchOption {
	return func(e *BatchEngine) { e.rng = r }
}

// NewBatchEngine 创建集合竞价引擎，默认使用强随机种子的 ChaCha8
func NewBatchEngine(strategy PricingStrategy, opts ...BatchOption) *BatchEngine {
	e := &BatchEngine{
		strategy: strategy,
		pending:  make(map[string][]*Order),
		index:    make(map[string]*Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		var seed [32]byte
		if _, err := cryptorand.Read(seed[:]); err != nil {
			panic("auction rng seed: " + err.Error())
		}
		e.rng = rand.New(rand.NewChaCha8(seed))
	}
	return e
}

// Strategy 当前定价策略
func (e *BatchEngine) Strategy() PricingStrategy {
	return e.strategy
}

// Submit 收单入缓冲，状态置为 PENDING_NEW，不触碰订单簿
func (e *BatchEngine) Submit(order *Order) (*OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order.Status = OrderStatusPendingNew
	e.pending[order.Symbol] = append(e.pending[order.Symbol], order)
	e.index[order.OrderID] = order

	return &OrderResult{
		Order:     order,
		Status:    OrderStatusPendingNew,
		Remaining: order.Remaining,
	}, nil
}

// Cancel 撤销缓冲中的待竞价订单
func (e *BatchEngine) Cancel(orderID, teamID string) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.index[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.TeamID != teamID {
		return nil, ErrNotOrderOwner
	}

	e.removePending(order)
	order.Status = OrderStatusCancelled
	return order, nil
}

func (e *BatchEngine) removePending(order *Order) {
	delete(e.index, order.OrderID)
	queue := e.pending[order.Symbol]
	for i, o := range queue {
		if o.OrderID == order.OrderID {
			e.pending[order.Symbol] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(e.pending[order.Symbol]) == 0 {
		delete(e.pending, order.Symbol)
	}
}

// PendingCount 缓冲中的订单数
func (e *BatchEngine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.index)
}

// PendingForTeam 返回团队在缓冲中的全部订单
func (e *BatchEngine) PendingForTeam(teamID string) []*Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Order
	for _, o := range e.index {
		if o.TeamID == teamID {
			out = append(out, o)
		}
	}
	return out
}

// DrainPending 清空缓冲并撤销全部待竞价订单，用于收盘全撤
func (e *BatchEngine) DrainPending() []*Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Order, 0, len(e.index))
	for _, o := range e.index {
		o.Status = OrderStatusCancelled
		out = append(out, o)
	}
	e.pending = make(map[string][]*Order)
	e.index = make(map[string]*Order)

	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// ExecuteBatch 对缓冲中的全部合约执行集合竞价
// 统一价成交的主动方为 AUCTION，残余通过订单簿转入连续撮合
func (e *BatchEngine) ExecuteBatch(books map[string]*OrderBook) map[string]*AuctionResult {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string][]*Order)
	e.index = make(map[string]*Order)
	e.mu.Unlock()

	results := make(map[string]*AuctionResult, len(pending))
	for symbol, orders := range pending {
		book, ok := books[symbol]
		if !ok {
			continue
		}
		results[symbol] = e.runAuction(symbol, orders, book)
	}
	return results
}

func (e *BatchEngine) runAuction(symbol string, orders []*Order, book *OrderBook) *AuctionResult {
	var buys, sells []*Order
	for _, o := range orders {
		if o.Side == OrderSideBuy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}
	buys = e.arrange(buys, true)
	sells = e.arrange(sells, false)

	result := &AuctionResult{Symbol: symbol}
	// 每笔成交只挂在买方结果上，下游按笔结算恰好一次
	tradesByOrder := make(map[string][]*Trade)

	price, priced := e.strategy.CalculateClearingPrice(buys, sells)
	if priced {
		result.Priced = true
		result.ClearingPrice = price.ClearingPrice
		e.fill(symbol, price, buys, sells, result, tradesByOrder)
	}

	// 残余转簿，可能与簿中或彼此之间继续成交
	for _, o := range orders {
		if o.Remaining == 0 {
			continue
		}
		carried := book.Add(o)
		result.Trades = append(result.Trades, carried...)
		for _, t := range carried {
			tradesByOrder[t.BuyOrderID] = append(tradesByOrder[t.BuyOrderID], t)
		}
	}

	for _, o := range orders {
		result.Results = append(result.Results, &OrderResult{
			Order:     o,
			Status:    o.Status,
			Trades:    tradesByOrder[o.OrderID],
			Remaining: o.Remaining,
		})
	}
	return result
}

// fill 统一价配对成交，成交量以策略给出的上限为准
func (e *BatchEngine) fill(symbol string, price *AuctionPrice, buys, sells []*Order, result *AuctionResult, tradesByOrder map[string][]*Trade) {
	eligibleBuys := eligibleAt(buys, price.ClearingPrice, true)
	eligibleSells := eligibleAt(sells, price.ClearingPrice, false)

	remaining := price.MaxVolume
	bi, si := 0, 0
	now := time.Now()
	for remaining > 0 && bi < len(eligibleBuys) && si < len(eligibleSells) {
		buy, sell := eligibleBuys[bi], eligibleSells[si]

		qty := buy.Remaining
		if sell.Remaining < qty {
			qty = sell.Remaining
		}
		if remaining < qty {
			qty = remaining
		}

		buy.Remaining -= qty
		sell.Remaining -= qty
		remaining -= qty

		t := &Trade{
			TradeID:     generateTradeID(),
			Symbol:      symbol,
			BuyOrderID:  buy.OrderID,
			SellOrderID: sell.OrderID,
			BuyerID:     buy.TeamID,
			SellerID:    sell.TeamID,
			Price:       price.ClearingPrice,
			Quantity:    qty,
			Aggressor:   AggressorAuction,
			Timestamp:   now,
		}
		result.Trades = append(result.Trades, t)
		result.Volume += qty
		tradesByOrder[buy.OrderID] = append(tradesByOrder[buy.OrderID], t)

		if buy.Remaining == 0 {
			buy.Status = OrderStatusFilled
			bi++
		} else {
			buy.Status = OrderStatusPartiallyFilled
		}
		if sell.Remaining == 0 {
			sell.Status = OrderStatusFilled
			si++
		} else {
			sell.Status = OrderStatusPartiallyFilled
		}
	}
}

// eligibleAt 筛选能在成交价上成交的订单，保持传入的优先顺序
func eligibleAt(orders []*Order, price decimal.Decimal, isBuy bool) []*Order {
	var out []*Order
	for _, o := range orders {
		if o.Type == OrderTypeMarket {
			out = append(out, o)
			continue
		}
		if isBuy && o.Price.GreaterThanOrEqual(price) {
			out = append(out, o)
		}
		if !isBuy && o.Price.LessThanOrEqual(price) {
			out = append(out, o)
		}
	}
	return out
}

// arrange 市价单优先，限价按优先级排档，同档位内随机打乱
func (e *BatchEngine) arrange(orders []*Order, isBuy bool) []*Order {
	var market []*Order
	levels := make(map[string][]*Order)
	var prices []decimal.Decimal
	for _, o := range orders {
		if o.Type == OrderTypeMarket {
			market = append(market, o)
			continue
		}
		key := o.Price.String()
		if _, ok := levels[key]; !ok {
			prices = append(prices, o.Price)
		}
		levels[key] = append(levels[key], o)
	}

	sort.Slice(prices, func(i, j int) bool {
		if isBuy {
			return prices[i].GreaterThan(prices[j])
		}
		return prices[i].LessThan(prices[j])
	})

	e.shuffle(market)
	out := make([]*Order, 0, len(orders))
	out = append(out, market...)
	for _, p := range prices {
		group := levels[p.String()]
		e.shuffle(group)
		out = append(out, group...)
	}
	return out
}

func (e *BatchEngine) shuffle(orders []*Order) {
	e.rng.Shuffle(len(orders), func(i, j int) {
		orders[i], orders[j] = orders[j], orders[i]
	})
}
