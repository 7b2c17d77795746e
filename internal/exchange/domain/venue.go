package domain

import (
	"sort"
	"sync"
)

// MatchingMode 场所级撮合模式
const (
	ModeContinuous = "continuous"
	ModeBatch      = "batch"
)

// VenueConfig 场所配置
type VenueConfig struct {
	// Mode 撮合模式，batch 模式下全部订单走集合竞价引擎
	Mode string
	// AllowSelfTrade 为 false 时连续撮合跳过同团队对手挂单
	AllowSelfTrade bool
	// DepthLevels 行情快照默认档位数
	DepthLevels int
}

// ExecutionListener 场所执行回调，时段切换产生的成交与撤单经此回流结算管线
type ExecutionListener interface {
	OnAuctionResults(results map[string]*AuctionResult)
	OnMassCancel(orders []*Order)
	OnPhaseChange(from, to Phase)
}

// Venue 交易场所门面，持有合约注册表、订单簿、撮合引擎与时段机
type Venue struct {
	mu       sync.RWMutex
	config   VenueConfig
	registry *InstrumentRegistry
	phases   *PhaseManager
	batch    *BatchEngine

	books   map[string]*OrderBook
	engines map[string]*ContinuousEngine

	transitions *TransitionHandler
	listener    ExecutionListener
}

// NewVenue 创建交易场所
func NewVenue(cfg VenueConfig, registry *InstrumentRegistry, phases *PhaseManager, batch *BatchEngine) *Venue {
	v := &Venue{
		config:   cfg,
		registry: registry,
		phases:   phases,
		batch:    batch,
		books:    make(map[string]*OrderBook),
		engines:  make(map[string]*ContinuousEngine),
	}
	v.transitions = NewTransitionHandler(v)
	return v
}

// SetListener 注册执行回调，须在开始处理订单前完成
func (v *Venue) SetListener(l ExecutionListener) {
	v.listener = l
}

// Registry 合约注册表
func (v *Venue) Registry() *InstrumentRegistry {
	return v.registry
}

// ListInstrument 挂牌合约并创建订单簿
func (v *Venue) ListInstrument(inst *Instrument) error {
	if err := v.registry.Add(inst); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	book := NewOrderBook(inst.Symbol, v.config.AllowSelfTrade)
	v.books[inst.Symbol] = book
	v.engines[inst.Symbol] = NewContinuousEngine(book)
	return nil
}

// CurrentPhase 当前时段状态
func (v *Venue) CurrentPhase() PhaseState {
	return v.phases.Current()
}

// Submit 提交订单，按时段能力向量决定收单与撮合路径
func (v *Venue) Submit(order *Order) (*OrderResult, error) {
	v.mu.RLock()
	engine, ok := v.engines[order.Symbol]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownInstrument
	}

	state := v.phases.Current()
	if !state.OrderEntryAllowed {
		order.Status = OrderStatusRejected
		reason := ReasonMarketClosed
		if state.Phase == PhaseOpeningAuction {
			reason = ReasonAuctionInProgress
		}
		return &OrderResult{
			Order:     order,
			Status:    OrderStatusRejected,
			Remaining: order.Remaining,
			Reason:    reason,
		}, nil
	}

	// batch 模式下全部委托进竞价缓冲；竞价前时段同样只收单不撮合
	if v.config.Mode == ModeBatch || state.Style == StyleNone {
		return v.batch.Submit(order)
	}
	return engine.Submit(order)
}

// Cancel 撤销订单，先查竞价缓冲再查各订单簿
func (v *Venue) Cancel(orderID, teamID string) (*Order, error) {
	state := v.phases.Current()
	if !state.CancellationAllowed {
		return nil, ErrCancelNotAllowed
	}

	if order, err := v.batch.Cancel(orderID, teamID); err == nil {
		return order, nil
	} else if err == ErrNotOrderOwner {
		return nil, err
	}

	v.mu.RLock()
	books := make([]*OrderBook, 0, len(v.books))
	for _, b := range v.books {
		books = append(books, b)
	}
	v.mu.RUnlock()

	for _, book := range books {
		order, err := book.Cancel(orderID, teamID)
		if err == nil {
			return order, nil
		}
		if err == ErrNotOrderOwner {
			return nil, err
		}
	}
	return nil, ErrOrderNotFound
}

// CheckPhaseTransitions 周期性时段检查，由撮合工作协程捎带调用
func (v *Venue) CheckPhaseTransitions() *TransitionOutcome {
	out := v.transitions.Check(v.phases.Current().Phase)
	if out == nil {
		return nil
	}

	if v.listener != nil {
		v.listener.OnPhaseChange(out.From, out.To)
		if out.Auction != nil {
			v.listener.OnAuctionResults(out.Auction)
		}
		if len(out.Cancelled) > 0 {
			v.listener.OnMassCancel(out.Cancelled)
		}
	}
	return out
}

// ExecuteOpeningAuction 对全部订单簿执行开盘集合竞价
func (v *Venue) ExecuteOpeningAuction() map[string]*AuctionResult {
	v.mu.RLock()
	books := make(map[string]*OrderBook, len(v.books))
	for s, b := range v.books {
		books[s] = b
	}
	v.mu.RUnlock()

	return v.batch.ExecuteBatch(books)
}

// CancelAllOrders 撤销全部在簿与待竞价订单，收盘动作
func (v *Venue) CancelAllOrders() []*Order {
	v.mu.RLock()
	books := make([]*OrderBook, 0, len(v.books))
	for _, b := range v.books {
		books = append(books, b)
	}
	v.mu.RUnlock()

	var cancelled []*Order
	for _, book := range books {
		cancelled = append(cancelled, book.Drain()...)
	}
	cancelled = append(cancelled, v.batch.DrainPending()...)

	sort.Slice(cancelled, func(i, j int) bool { return cancelled[i].before(cancelled[j]) })
	return cancelled
}

// Depth 行情深度快照
func (v *Venue) Depth(symbol string, levels int) (*Depth, error) {
	v.mu.RLock()
	book, ok := v.books[symbol]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownInstrument
	}
	if levels <= 0 {
		levels = v.config.DepthLevels
	}
	return book.Depth(levels), nil
}

// OpenOrders 团队全部未终态订单，含在簿与待竞价
func (v *Venue) OpenOrders(teamID string) []*Order {
	v.mu.RLock()
	books := make([]*OrderBook, 0, len(v.books))
	for _, b := range v.books {
		books = append(books, b)
	}
	v.mu.RUnlock()

	var out []*Order
	for _, book := range books {
		out = append(out, book.OrdersForTeam(teamID)...)
	}
	out = append(out, v.batch.PendingForTeam(teamID)...)

	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// Book 按合约取订单簿，测试与行情查询用
func (v *Venue) Book(symbol string) (*OrderBook, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.books[symbol]
	return b, ok
}
