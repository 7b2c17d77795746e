package application

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	"github.com/wyfcoding/exchangesim/internal/exchange/infrastructure/persistence/memory"
	notification "github.com/wyfcoding/exchangesim/internal/notification/application"
	notifdomain "github.com/wyfcoding/exchangesim/internal/notification/domain"
	position "github.com/wyfcoding/exchangesim/internal/position/domain"
	risk "github.com/wyfcoding/exchangesim/internal/risk/application"
	riskdomain "github.com/wyfcoding/exchangesim/internal/risk/domain"
	settlement "github.com/wyfcoding/exchangesim/internal/settlement/application"
	settlementdomain "github.com/wyfcoding/exchangesim/internal/settlement/domain"
	"github.com/wyfcoding/exchangesim/pkg/config"
)

// staticRoles 固定角色表，端到端测试用
type staticRoles struct {
	mu    sync.RWMutex
	roles map[string]string
}

func (s *staticRoles) RoleOf(teamID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[teamID]
}

type fixture struct {
	service *Service
	venue   *exchange.Venue
	clock   *testClock
	stop    func()
}

// testClock 可推进的注入时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// newFixture 搭建完整管线：连续交易时段、一个已挂牌合约、两个团队
func newFixture(t *testing.T) *fixture {
	t.Helper()
	// 2026-08-24 周一 10:00，连续交易时段
	return newFixtureAt(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))
}

func newFixtureAt(t *testing.T, start time.Time) *fixture {
	t.Helper()

	clock := &testClock{now: start}

	registry := exchange.NewInstrumentRegistry()
	phases := exchange.NewPhaseManager(exchange.DefaultSchedule(), exchange.WithClock(clock.Now))
	batch := exchange.NewBatchEngine(exchange.MaxVolumeStrategy{})
	venue := exchange.NewVenue(exchange.VenueConfig{
		Mode:        exchange.ModeContinuous,
		DepthLevels: 10,
	}, registry, phases, batch)
	require.NoError(t, venue.ListInstrument(&exchange.Instrument{
		Symbol:     "SPY-C-100",
		Underlying: "SPY",
		Kind:       exchange.KindOption,
		OptionType: exchange.OptionCall,
	}))

	riskRegistry := riskdomain.NewRegistry()
	riskRegistry.SetRole("retail", []riskdomain.Constraint{
		&riskdomain.PositionLimit{Max: 50, Symmetric: true},
	})
	validator := risk.NewValidator(riskRegistry).WithClock(clock.Now)

	mm, err := settlementdomain.ParseRoleFees("0.0002", "0.0005")
	require.NoError(t, err)
	retail, err := settlementdomain.ParseRoleFees("0", "0.0010")
	require.NoError(t, err)
	fees := settlementdomain.NewFeeSchedule(map[string]settlementdomain.RoleFees{
		"market_maker": mm,
		"retail":       retail,
	})
	roles := &staticRoles{roles: map[string]string{"MAKER": "market_maker", "TAKER": "retail"}}
	settlementSvc := settlement.NewService(position.NewBook(), fees, roles, nil)

	archive := memory.NewOrderArchive()
	fanout := notification.NewFanout(64, nil)
	coordinator := NewCoordinator(config.CoordinatorConfig{
		DefaultTimeoutMs:   2000,
		MaxPendingRequests: 100,
		CleanupIntervalMs:  50,
		ResultTTLMs:        1000,
	}, nil)
	coordinator.Start()

	pipeline := NewPipeline(PipelineConfig{
		QueueCapacity:      64,
		PhaseCheckInterval: 10 * time.Millisecond,
		EnqueueTimeout:     100 * time.Millisecond,
	}, venue, validator, settlementSvc, archive, fanout, coordinator, nil)
	pipeline.Start()

	service := NewService(pipeline, coordinator, venue, archive, settlementSvc, fanout)
	return &fixture{
		service: service,
		venue:   venue,
		clock:   clock,
		stop: func() {
			pipeline.Stop()
			coordinator.Stop()
		},
	}
}

func submitLimit(t *testing.T, f *fixture, teamID, role, side string, price int64, qty int64) *Result {
	t.Helper()
	p := decimal.NewFromInt(price)
	return f.service.SubmitOrder(context.Background(), teamID, role, &SubmitOrderRequest{
		InstrumentID: "SPY-C-100",
		Side:         side,
		Quantity:     qty,
		Price:        &p,
		OrderType:    "limit",
	})
}

func TestSubmitOrderRestsOnEmptyBook(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	result := submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10)
	require.True(t, result.Success, "code=%s msg=%s", result.Code, result.Message)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.NotEmpty(t, result.OrderID)

	resp, ok := result.Payload.(SubmitOrderResponse)
	require.True(t, ok)
	assert.Equal(t, string(exchange.OrderStatusNew), resp.Status)
	assert.Equal(t, int64(0), resp.FilledQuantity)
	assert.Nil(t, resp.AveragePrice)

	open := f.service.OpenOrders("MAKER")
	require.Len(t, open, 1)
	assert.Equal(t, result.OrderID, open[0].OrderID)
}

func TestSubmitOrderMatchesAndSettles(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	maker := submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10)
	require.True(t, maker.Success)

	taker := submitLimit(t, f, "TAKER", "retail", "sell", 100, 4)
	require.True(t, taker.Success)

	resp, ok := taker.Payload.(SubmitOrderResponse)
	require.True(t, ok)
	assert.Equal(t, string(exchange.OrderStatusFilled), resp.Status)
	assert.Equal(t, int64(4), resp.FilledQuantity)
	require.NotNil(t, resp.AveragePrice)
	assert.True(t, resp.AveragePrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, string(exchange.LiquidityTaker), resp.LiquidityType)
	// 400 * 0.0010 = 0.4 扣费
	assert.True(t, resp.Fees.Equal(decimal.RequireFromString("-0.4")), "fees %s", resp.Fees)

	assert.Equal(t, int64(4), f.service.Positions("MAKER")["SPY-C-100"])
	assert.Equal(t, int64(-4), f.service.Positions("TAKER")["SPY-C-100"])

	// maker 剩余量在簿
	depth, err := f.service.DepthSnapshot("SPY-C-100", 5)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, int64(6), depth.Bids[0].Quantity)
}

func TestCancelOrderFlow(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	placed := submitLimit(t, f, "MAKER", "market_maker", "buy", 99, 10)
	require.True(t, placed.Success)

	cancelled := f.service.CancelOrder(context.Background(), "MAKER", placed.OrderID)
	require.True(t, cancelled.Success)
	resp, ok := cancelled.Payload.(CancelOrderResponse)
	require.True(t, ok)
	assert.Equal(t, string(exchange.OrderStatusCancelled), resp.Status)
	assert.Equal(t, int64(10), resp.CancelledQuantity)

	assert.Empty(t, f.service.OpenOrders("MAKER"))

	// 重复撤单失败
	again := f.service.CancelOrder(context.Background(), "MAKER", placed.OrderID)
	assert.False(t, again.Success)
	assert.Equal(t, "CANCEL_FAILED", again.Code)
}

func TestCancelOtherTeamsOrderFails(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	placed := submitLimit(t, f, "MAKER", "market_maker", "buy", 99, 10)
	require.True(t, placed.Success)

	result := f.service.CancelOrder(context.Background(), "TAKER", placed.OrderID)
	assert.False(t, result.Success)
	assert.Equal(t, "CANCEL_FAILED", result.Code)
	require.Len(t, f.service.OpenOrders("MAKER"), 1)
}

func TestSubmitRejectedWhenMarketClosed(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	// 17:00 已收盘
	f.clock.Set(time.Date(2026, 8, 24, 17, 0, 0, 0, time.UTC))

	result := submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusBadRequest, result.HTTPStatus)
	assert.Equal(t, "MARKET_CLOSED", result.Code)
}

func TestSubmitRejectedByConstraint(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	result := submitLimit(t, f, "TAKER", "retail", "buy", 100, 60)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusBadRequest, result.HTTPStatus)
	assert.Equal(t, riskdomain.CodePositionLimit, result.Code)

	// 拒单也入历史档案不影响后续下单
	ok := submitLimit(t, f, "TAKER", "retail", "buy", 100, 10)
	assert.True(t, ok.Success)
}

func TestSubmitInvalidInput(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	cases := []struct {
		name string
		req  *SubmitOrderRequest
		code string
	}{
		{"unknown instrument", &SubmitOrderRequest{InstrumentID: "QQQ-C-50", Side: "buy", Quantity: 1, OrderType: "limit"}, "INVALID_INSTRUMENT"},
		{"bad side", &SubmitOrderRequest{InstrumentID: "SPY-C-100", Side: "hold", Quantity: 1, OrderType: "limit"}, "INVALID_SIDE"},
		{"bad type", &SubmitOrderRequest{InstrumentID: "SPY-C-100", Side: "buy", Quantity: 1, OrderType: "stop"}, "ORDER_TYPE_NOT_ALLOWED"},
		{"zero quantity", &SubmitOrderRequest{InstrumentID: "SPY-C-100", Side: "buy", Quantity: 0, OrderType: "limit"}, "INVALID_QUANTITY"},
		{"missing price", &SubmitOrderRequest{InstrumentID: "SPY-C-100", Side: "buy", Quantity: 1, OrderType: "limit"}, "MISSING_PRICE"},
	}
	for _, tc := range cases {
		result := f.service.SubmitOrder(context.Background(), "MAKER", "market_maker", tc.req)
		assert.Equal(t, tc.code, result.Code, tc.name)
		assert.Equal(t, http.StatusBadRequest, result.HTTPStatus, tc.name)
	}
}

func TestPushEventsForTradeLifecycle(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	sub := f.service.SubscribePush("TAKER")
	defer f.service.UnsubscribePush(sub)

	// 首条必为全量持仓
	first := <-sub.Events()
	assert.Equal(t, notifdomain.EventPositionSnapshot, first.Type)
	assert.Equal(t, uint64(1), first.Seq)

	require.True(t, submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10).Success)
	require.True(t, submitLimit(t, f, "TAKER", "retail", "sell", 100, 4).Success)

	ack := <-sub.Events()
	require.Equal(t, notifdomain.EventNewOrderAck, ack.Type)
	assert.Equal(t, uint64(2), ack.Seq)

	report := <-sub.Events()
	require.Equal(t, notifdomain.EventExecutionReport, report.Type)
	exec, ok := report.Data.(notifdomain.ExecutionReport)
	require.True(t, ok)
	assert.Equal(t, int64(4), exec.Quantity)
	assert.Equal(t, string(exchange.LiquidityTaker), exec.LiquidityType)
	assert.Equal(t, int64(0), exec.Remaining)
}

// nextEvent 带超时读取推送事件
func nextEvent(t *testing.T, sub *notification.Subscriber, timeout time.Duration) *notifdomain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(timeout):
		t.Fatal("no event within timeout")
		return nil
	}
}

func noEvent(t *testing.T, sub *notification.Subscriber, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s seq=%d", ev.Type, ev.Seq)
	case <-time.After(wait):
	}
}

func TestOpeningAuctionSettlesEachTradeOnce(t *testing.T) {
	// 2026-08-24 周一 09:00，竞价前时段
	f := newFixtureAt(t, time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))
	defer f.stop()

	sub := f.service.SubscribePush("MAKER")
	defer f.service.UnsubscribePush(sub)
	assert.Equal(t, notifdomain.EventPositionSnapshot, nextEvent(t, sub, time.Second).Type)

	buy := submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10)
	require.True(t, buy.Success, "code=%s", buy.Code)
	resp, ok := buy.Payload.(SubmitOrderResponse)
	require.True(t, ok)
	assert.Equal(t, string(exchange.OrderStatusPendingNew), resp.Status)
	assert.Equal(t, notifdomain.EventNewOrderAck, nextEvent(t, sub, time.Second).Type)

	sell := submitLimit(t, f, "TAKER", "retail", "sell", 100, 10)
	require.True(t, sell.Success, "code=%s", sell.Code)

	// 09:29:45 进入开盘集合竞价，撮合协程捎带触发切换与竞价
	f.clock.Set(time.Date(2026, 8, 24, 9, 29, 45, 0, time.UTC))

	require.Eventually(t, func() bool {
		return f.service.Positions("MAKER")["SPY-C-100"] == 10
	}, 2*time.Second, 10*time.Millisecond)

	// 每笔竞价成交恰好结算一次
	assert.Equal(t, int64(10), f.service.Positions("MAKER")["SPY-C-100"])
	assert.Equal(t, int64(-10), f.service.Positions("TAKER")["SPY-C-100"])

	assert.Equal(t, notifdomain.EventPhaseChange, nextEvent(t, sub, time.Second).Type)
	report := nextEvent(t, sub, time.Second)
	require.Equal(t, notifdomain.EventExecutionReport, report.Type)
	exec, ok := report.Data.(notifdomain.ExecutionReport)
	require.True(t, ok)
	assert.Equal(t, int64(10), exec.Quantity)
	assert.True(t, exec.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, string(exchange.LiquidityMaker), exec.LiquidityType)
	// 没有重复的成交回报
	noEvent(t, sub, 100*time.Millisecond)

	history := f.service.OrderHistory("MAKER")
	require.Len(t, history, 1)
	assert.Equal(t, string(exchange.OrderStatusFilled), history[0].Status)
}

func TestCloseCancelsOrdersAndRejectsSubmits(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	sub := f.service.SubscribePush("MAKER")
	defer f.service.UnsubscribePush(sub)
	assert.Equal(t, notifdomain.EventPositionSnapshot, nextEvent(t, sub, time.Second).Type)

	placed := submitLimit(t, f, "MAKER", "market_maker", "buy", 99, 10)
	require.True(t, placed.Success)
	assert.Equal(t, notifdomain.EventNewOrderAck, nextEvent(t, sub, time.Second).Type)

	// 16:30 收盘，挂单全部撤销
	f.clock.Set(time.Date(2026, 8, 24, 16, 30, 0, 0, time.UTC))

	phase := nextEvent(t, sub, 2*time.Second)
	require.Equal(t, notifdomain.EventPhaseChange, phase.Type)
	change, ok := phase.Data.(notifdomain.PhaseChange)
	require.True(t, ok)
	assert.Equal(t, string(exchange.PhaseClosed), change.To)

	cancelled := nextEvent(t, sub, 2*time.Second)
	require.Equal(t, notifdomain.EventOrderCancelled, cancelled.Type)
	oc, ok := cancelled.Data.(notifdomain.OrderCancelled)
	require.True(t, ok)
	assert.Equal(t, placed.OrderID, oc.OrderID)
	assert.Equal(t, int64(10), oc.Remaining)

	assert.Empty(t, f.service.OpenOrders("MAKER"))

	rejected := submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10)
	assert.False(t, rejected.Success)
	assert.Equal(t, "MARKET_CLOSED", rejected.Code)
}

func TestDuplicateClientRequestIDRejected(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	price := decimal.NewFromInt(100)
	req := &SubmitOrderRequest{
		InstrumentID: "SPY-C-100",
		Side:         "buy",
		Quantity:     1,
		Price:        &price,
		OrderType:    "limit",
		RequestID:    "dup-1",
	}
	first := f.service.SubmitOrder(context.Background(), "MAKER", "market_maker", req)
	require.True(t, first.Success)

	// 结果保留期内重复的 request_id 是客户端错误而非容量问题
	second := f.service.SubmitOrder(context.Background(), "MAKER", "market_maker", req)
	assert.False(t, second.Success)
	assert.Equal(t, http.StatusBadRequest, second.HTTPStatus)
	assert.Equal(t, "INVALID_REQUEST", second.Code)
}

func TestOrderHistoryTracksLiveStatus(t *testing.T) {
	f := newFixture(t)
	defer f.stop()

	placed := submitLimit(t, f, "MAKER", "market_maker", "buy", 100, 10)
	require.True(t, placed.Success)

	history := f.service.OrderHistory("MAKER")
	require.Len(t, history, 1)
	assert.Equal(t, string(exchange.OrderStatusNew), history[0].Status)

	// 成交后档案里的状态随订单实体更新
	require.True(t, submitLimit(t, f, "TAKER", "retail", "sell", 100, 10).Success)
	history = f.service.OrderHistory("MAKER")
	require.Len(t, history, 1)
	assert.Equal(t, string(exchange.OrderStatusFilled), history[0].Status)
}
