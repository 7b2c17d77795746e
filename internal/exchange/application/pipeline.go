package application

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	notification "github.com/wyfcoding/exchangesim/internal/notification/application"
	notifdomain "github.com/wyfcoding/exchangesim/internal/notification/domain"
	risk "github.com/wyfcoding/exchangesim/internal/risk/application"
	riskdomain "github.com/wyfcoding/exchangesim/internal/risk/domain"
	settlement "github.com/wyfcoding/exchangesim/internal/settlement/application"
	settlementdomain "github.com/wyfcoding/exchangesim/internal/settlement/domain"
	"github.com/wyfcoding/exchangesim/pkg/logger"
	"github.com/wyfcoding/exchangesim/pkg/metrics"
)

// PipelineConfig 管线配置
type PipelineConfig struct {
	QueueCapacity      int
	PhaseCheckInterval time.Duration
	EnqueueTimeout     time.Duration
}

// Pipeline 三级工作管线：校验、撮合、结算
// 各级经有界队列串联，撮合协程捎带执行时段检查
type Pipeline struct {
	cfg PipelineConfig

	orderQ  chan orderMsg
	matchQ  chan matchMsg
	settleQ chan settlementMsg

	venue       *exchange.Venue
	validator   *risk.Validator
	settlement  *settlement.Service
	archive     exchange.OrderArchive
	fanout      *notification.Fanout
	coordinator *Coordinator
	metrics     *metrics.Metrics

	wg sync.WaitGroup
}

// NewPipeline 创建管线并注册为场所的执行回调
func NewPipeline(
	cfg PipelineConfig,
	venue *exchange.Venue,
	validator *risk.Validator,
	settlementSvc *settlement.Service,
	archive exchange.OrderArchive,
	fanout *notification.Fanout,
	coordinator *Coordinator,
	m *metrics.Metrics,
) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	p := &Pipeline{
		cfg:         cfg,
		orderQ:      make(chan orderMsg, cfg.QueueCapacity),
		matchQ:      make(chan matchMsg, cfg.QueueCapacity),
		settleQ:     make(chan settlementMsg, cfg.QueueCapacity),
		venue:       venue,
		validator:   validator,
		settlement:  settlementSvc,
		archive:     archive,
		fanout:      fanout,
		coordinator: coordinator,
		metrics:     m,
	}
	venue.SetListener(p)
	return p
}

// Start 启动三个工作协程
func (p *Pipeline) Start() {
	p.wg.Add(3)
	go p.validatorLoop()
	go p.matcherLoop()
	go p.settlerLoop()
}

// Stop 投递关停哨兵并等待各级排空退出
func (p *Pipeline) Stop() {
	p.orderQ <- orderMsg{kind: msgPoison}
	p.wg.Wait()
}

// Enqueue 将委托消息投入首级队列，队列满且超时未入队返回 false
func (p *Pipeline) enqueue(msg orderMsg) bool {
	select {
	case p.orderQ <- msg:
		return true
	default:
	}

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case p.orderQ <- msg:
		return true
	case <-timer.C:
		return false
	}
}

// validatorLoop 校验阶段：按角色约束表校验新委托，撤单直接放行
func (p *Pipeline) validatorLoop() {
	defer p.wg.Done()
	for msg := range p.orderQ {
		if msg.kind == msgPoison {
			p.matchQ <- matchMsg{kind: msgPoison}
			return
		}
		p.observeQueues()
		p.guard(msg.requestID, "EXCHANGE_ERROR", func() {
			p.validateOne(msg)
		})
	}
}

func (p *Pipeline) validateOne(msg orderMsg) {
	p.coordinator.Advance(msg.requestID, StageValidating)

	if msg.kind == msgCancel {
		p.matchQ <- matchMsg{kind: msgCancel, requestID: msg.requestID, teamID: msg.teamID, role: msg.role, orderID: msg.orderID}
		return
	}

	vctx := &riskdomain.ValidationContext{
		Order:     msg.order,
		TeamID:    msg.teamID,
		Role:      msg.role,
		Phase:     p.venue.CurrentPhase().Phase,
		Positions: p.settlement.Positions().Snapshot(msg.teamID),
	}
	if violation := p.validator.Validate(vctx); violation != nil {
		if p.metrics != nil {
			p.metrics.OrdersRejected.WithLabelValues(violation.Code).Inc()
		}
		p.coordinator.CompleteErr(msg.requestID, http.StatusBadRequest, violation.Code, violation.Message, nil)
		return
	}

	p.validator.RecordAccepted(msg.teamID)
	p.matchQ <- matchMsg{kind: msgNew, requestID: msg.requestID, teamID: msg.teamID, role: msg.role, order: msg.order}
}

// matcherLoop 撮合阶段，每次队列读取或超时后捎带检查时段切换
func (p *Pipeline) matcherLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PhaseCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-p.matchQ:
			if msg.kind == msgPoison {
				p.settleQ <- settlementMsg{kind: msgPoison}
				return
			}
			p.guard(msg.requestID, "EXCHANGE_ERROR", func() {
				p.matchOne(msg)
			})
			p.checkPhases()
		case <-ticker.C:
			p.checkPhases()
		}
	}
}

func (p *Pipeline) matchOne(msg matchMsg) {
	p.coordinator.Advance(msg.requestID, StageMatching)

	if msg.kind == msgCancel {
		order, err := p.venue.Cancel(msg.orderID, msg.teamID)
		if err != nil {
			// 不泄露订单是否存在，统一返回通用失败
			p.coordinator.CompleteErr(msg.requestID, http.StatusBadRequest, "CANCEL_FAILED", "cancel failed", nil)
			return
		}
		p.settleQ <- settlementMsg{
			kind:      msgCancel,
			requestID: msg.requestID,
			teamID:    msg.teamID,
			result: &exchange.OrderResult{
				Order:     order,
				Status:    order.Status,
				Remaining: order.Remaining,
			},
		}
		return
	}

	result, err := p.venue.Submit(msg.order)
	if err != nil {
		p.coordinator.CompleteErr(msg.requestID, http.StatusBadRequest, "INVALID_INSTRUMENT", err.Error(), nil)
		return
	}
	if result.Status == exchange.OrderStatusRejected {
		p.archive.Save(result.Order)
		if p.metrics != nil {
			p.metrics.OrdersRejected.WithLabelValues(result.Reason).Inc()
		}
		p.coordinator.CompleteErr(msg.requestID, http.StatusBadRequest, result.Reason, "order rejected: "+result.Reason, nil)
		return
	}

	p.settleQ <- settlementMsg{kind: msgNew, requestID: msg.requestID, teamID: msg.teamID, result: result}
}

func (p *Pipeline) checkPhases() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "phase transition panic", "panic", r)
		}
	}()
	p.venue.CheckPhaseTransitions()
}

// settlerLoop 结算阶段：成交入账、费用计提、事件推送与请求终结
func (p *Pipeline) settlerLoop() {
	defer p.wg.Done()
	for msg := range p.settleQ {
		if msg.kind == msgPoison {
			return
		}
		p.guard(msg.requestID, "SETTLEMENT_ERROR", func() {
			p.settleOne(msg)
		})
	}
}

func (p *Pipeline) settleOne(msg settlementMsg) {
	ctx := context.Background()
	result := msg.result
	order := result.Order

	if msg.requestID != "" {
		p.coordinator.Advance(msg.requestID, StageSettling)
	}
	p.archive.Save(order)

	if msg.kind == msgCancel {
		p.settleCancel(msg)
		return
	}

	// 接受回报只对 API 驱动的委托发送，时段切换的内部结算不重复确认
	if msg.requestID != "" {
		p.fanout.PublishToTeam(order.TeamID, notifdomain.EventNewOrderAck, notifdomain.NewOrderAck{
			OrderID:       order.OrderID,
			ClientOrderID: order.ClientOrderID,
			Symbol:        order.Symbol,
			Side:          string(order.Side),
			Status:        string(result.Status),
			Quantity:      order.Quantity,
		})
	}

	fees := decimal.Zero
	liquidity := ""
	for _, trade := range result.Trades {
		// entries[0] 为买方、entries[1] 为卖方
		entries := p.settlement.SettleTrade(ctx, trade)
		if p.metrics != nil {
			p.metrics.TradesTotal.Inc()
			p.metrics.TradeVolume.Add(float64(trade.Quantity))
		}
		p.publishExecution(trade, trade.BuyOrderID, entries[0], order)
		p.publishExecution(trade, trade.SellOrderID, entries[1], order)

		if trade.BuyOrderID == order.OrderID {
			fees = fees.Add(entries[0].Amount)
			liquidity = string(entries[0].Liquidity)
		}
		if trade.SellOrderID == order.OrderID {
			fees = fees.Add(entries[1].Amount)
			liquidity = string(entries[1].Liquidity)
		}
	}

	if p.metrics != nil {
		p.metrics.OrdersTotal.WithLabelValues(string(result.Status)).Inc()
	}

	if msg.requestID == "" {
		return
	}

	resp := SubmitOrderResponse{
		OrderID:        order.OrderID,
		ClientOrderID:  order.ClientOrderID,
		Status:         string(result.Status),
		FilledQuantity: result.FilledQuantity(),
		Fees:           fees,
		LiquidityType:  liquidity,
	}
	if resp.FilledQuantity > 0 {
		avg := result.AveragePrice()
		resp.AveragePrice = &avg
	}
	p.coordinator.CompleteOK(msg.requestID, order.OrderID, resp)
}

func (p *Pipeline) settleCancel(msg settlementMsg) {
	order := msg.result.Order

	p.fanout.PublishToTeam(order.TeamID, notifdomain.EventOrderCancelled, notifdomain.OrderCancelled{
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Remaining: order.Remaining,
	})
	if p.metrics != nil {
		p.metrics.OrdersTotal.WithLabelValues(string(exchange.OrderStatusCancelled)).Inc()
	}

	if msg.requestID == "" {
		return
	}
	p.coordinator.CompleteOK(msg.requestID, order.OrderID, CancelOrderResponse{
		OrderID:           order.OrderID,
		Status:            string(exchange.OrderStatusCancelled),
		CancelledQuantity: order.Remaining,
	})
}

// publishExecution 给成交一侧的团队推送成交回报
func (p *Pipeline) publishExecution(trade *exchange.Trade, orderID string, entry settlementdomain.FeeEntry, resultOrder *exchange.Order) {
	remaining := int64(0)
	if orderID == resultOrder.OrderID {
		remaining = resultOrder.Remaining
	} else if book, ok := p.venue.Book(trade.Symbol); ok {
		if resting, found := book.Get(orderID); found {
			remaining = resting.Remaining
		}
	}

	p.fanout.PublishToTeam(entry.TeamID, notifdomain.EventExecutionReport, notifdomain.ExecutionReport{
		OrderID:       orderID,
		TradeID:       trade.TradeID,
		Symbol:        trade.Symbol,
		Price:         trade.Price,
		Quantity:      trade.Quantity,
		Remaining:     remaining,
		LiquidityType: string(entry.Liquidity),
		Fee:           entry.Amount,
	})
}

// guard 捕获工作协程内的 panic，终结请求后继续循环
func (p *Pipeline) guard(requestID, code string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ref := uuid.NewString()
			logger.Error(context.Background(), "pipeline stage panic",
				"request_id", requestID,
				"support_reference", ref,
				"panic", r,
			)
			if requestID != "" {
				p.coordinator.CompleteErr(requestID, http.StatusInternalServerError, code, "internal error", map[string]any{
					"support_reference": ref,
				})
			}
		}
	}()
	fn()
}

func (p *Pipeline) observeQueues() {
	if p.metrics == nil {
		return
	}
	p.metrics.QueueDepth.WithLabelValues("order").Set(float64(len(p.orderQ)))
	p.metrics.QueueDepth.WithLabelValues("match").Set(float64(len(p.matchQ)))
	p.metrics.QueueDepth.WithLabelValues("settle").Set(float64(len(p.settleQ)))
}

// OnPhaseChange 时段切换广播，场所回调
func (p *Pipeline) OnPhaseChange(from, to exchange.Phase) {
	logger.Info(context.Background(), "phase transition",
		"from", string(from),
		"to", string(to),
	)
	p.fanout.Broadcast(notifdomain.EventPhaseChange, notifdomain.PhaseChange{
		From: string(from),
		To:   string(to),
	})
}

// OnAuctionResults 开盘集合竞价结果回流结算队列
func (p *Pipeline) OnAuctionResults(results map[string]*exchange.AuctionResult) {
	for symbol, result := range results {
		logger.Info(context.Background(), "opening auction executed",
			"symbol", symbol,
			"priced", result.Priced,
			"clearing_price", result.ClearingPrice.String(),
			"volume", result.Volume,
		)
		for _, r := range result.Results {
			p.settleQ <- settlementMsg{kind: msgNew, teamID: r.Order.TeamID, result: r}
		}
	}
}

// OnMassCancel 收盘全撤回流结算队列
func (p *Pipeline) OnMassCancel(orders []*exchange.Order) {
	for _, order := range orders {
		p.settleQ <- settlementMsg{
			kind:   msgCancel,
			teamID: order.TeamID,
			result: &exchange.OrderResult{
				Order:     order,
				Status:    order.Status,
				Remaining: order.Remaining,
			},
		}
	}
}
