// Package application 交易所核心的应用层：请求协调、三级管线与服务门面
package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	notification "github.com/wyfcoding/exchangesim/internal/notification/application"
	settlement "github.com/wyfcoding/exchangesim/internal/settlement/application"
	"github.com/wyfcoding/pkg/idgen"
)

// Service 交易所服务门面
// 下单撤单走 register -> enqueue -> wait 的同步桥接，查询直接读各服务
type Service struct {
	pipeline    *Pipeline
	coordinator *Coordinator
	venue       *exchange.Venue
	archive     exchange.OrderArchive
	settlement  *settlement.Service
	fanout      *notification.Fanout
}

// NewService 创建服务门面
func NewService(
	pipeline *Pipeline,
	coordinator *Coordinator,
	venue *exchange.Venue,
	archive exchange.OrderArchive,
	settlementSvc *settlement.Service,
	fanout *notification.Fanout,
) *Service {
	return &Service{
		pipeline:    pipeline,
		coordinator: coordinator,
		venue:       venue,
		archive:     archive,
		settlement:  settlementSvc,
		fanout:      fanout,
	}
}

// SubmitOrder 下单，阻塞直至管线终结或超时
func (s *Service) SubmitOrder(ctx context.Context, teamID, role string, req *SubmitOrderRequest) *Result {
	order, errResult := s.buildOrder(teamID, req)
	if errResult != nil {
		return errResult
	}

	reg, err := s.coordinator.Register(teamID, req.RequestID)
	if err != nil {
		if errors.Is(err, ErrDuplicateRequestID) {
			return &Result{
				HTTPStatus: http.StatusBadRequest,
				Code:       "INVALID_REQUEST",
				Message:    fmt.Sprintf("request_id already in flight: %s", req.RequestID),
			}
		}
		return &Result{
			HTTPStatus: http.StatusServiceUnavailable,
			Code:       "SERVICE_UNAVAILABLE",
			Message:    "too many in-flight requests",
		}
	}

	msg := orderMsg{kind: msgNew, requestID: reg.RequestID, teamID: teamID, role: role, order: order}
	if !s.pipeline.enqueue(msg) {
		s.coordinator.CompleteErr(reg.RequestID, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "order queue full", nil)
	}
	return s.coordinator.Wait(reg.RequestID, s.coordinator.DefaultTimeout())
}

// buildOrder 输入校验并构造订单实体
func (s *Service) buildOrder(teamID string, req *SubmitOrderRequest) (*exchange.Order, *Result) {
	badRequest := func(code, message string) *Result {
		return &Result{HTTPStatus: http.StatusBadRequest, Code: code, Message: message}
	}

	if _, ok := s.venue.Registry().Get(req.InstrumentID); !ok {
		return nil, badRequest("INVALID_INSTRUMENT", fmt.Sprintf("unknown instrument: %s", req.InstrumentID))
	}
	side, err := exchange.ParseOrderSide(req.Side)
	if err != nil {
		return nil, badRequest("INVALID_SIDE", err.Error())
	}
	typ, err := exchange.ParseOrderType(req.OrderType)
	if err != nil {
		return nil, badRequest("ORDER_TYPE_NOT_ALLOWED", err.Error())
	}
	if req.Quantity <= 0 {
		return nil, badRequest("INVALID_QUANTITY", fmt.Sprintf("quantity must be positive: %d", req.Quantity))
	}

	price := decimal.Zero
	if typ == exchange.OrderTypeLimit {
		if req.Price == nil {
			return nil, badRequest("MISSING_PRICE", "limit order requires a price")
		}
		if !req.Price.IsPositive() {
			return nil, badRequest("INVALID_PRICE", fmt.Sprintf("price must be positive: %s", req.Price))
		}
		price = *req.Price
	}

	orderID := fmt.Sprintf("ORD-%d", idgen.GenID())
	return exchange.NewOrder(orderID, teamID, req.InstrumentID, side, typ, price, req.Quantity, req.ClientOrderID), nil
}

// CancelOrder 撤单，阻塞直至管线终结或超时
func (s *Service) CancelOrder(ctx context.Context, teamID, orderID string) *Result {
	reg, err := s.coordinator.Register(teamID, "")
	if err != nil {
		return &Result{
			HTTPStatus: http.StatusServiceUnavailable,
			Code:       "SERVICE_UNAVAILABLE",
			Message:    "too many in-flight requests",
		}
	}

	msg := orderMsg{kind: msgCancel, requestID: reg.RequestID, teamID: teamID, orderID: orderID}
	if !s.pipeline.enqueue(msg) {
		s.coordinator.CompleteErr(reg.RequestID, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "order queue full", nil)
	}
	return s.coordinator.Wait(reg.RequestID, s.coordinator.DefaultTimeout())
}

// OpenOrders 团队当前全部未终态订单
func (s *Service) OpenOrders(teamID string) []OrderView {
	orders := s.venue.OpenOrders(teamID)
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderView(o))
	}
	return out
}

// OrderHistory 团队全部历史订单（含在途状态的最新快照）
func (s *Service) OrderHistory(teamID string) []OrderView {
	orders := s.archive.ListByTeam(teamID)
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderView(o))
	}
	return out
}

// Positions 团队持仓快照
func (s *Service) Positions(teamID string) map[string]int64 {
	return s.settlement.Positions().Snapshot(teamID)
}

// DepthSnapshot 合约行情深度
func (s *Service) DepthSnapshot(symbol string, levels int) (*exchange.Depth, error) {
	return s.venue.Depth(symbol, levels)
}

// ListInstrument 挂牌合约，管理操作
func (s *Service) ListInstrument(req *ListInstrumentRequest) (*exchange.Instrument, error) {
	kind := exchange.InstrumentKind(req.Kind)
	switch kind {
	case exchange.KindOption, exchange.KindFuture, exchange.KindSpot:
	default:
		return nil, fmt.Errorf("invalid instrument kind: %q", req.Kind)
	}

	inst := &exchange.Instrument{
		Symbol:     req.Symbol,
		Underlying: req.Underlying,
		Kind:       kind,
		OptionType: exchange.OptionType(req.OptionType),
	}
	if req.Strike != nil {
		inst.Strike = *req.Strike
	}
	if req.Expiry != "" {
		expiry, err := time.Parse("2006-01-02", req.Expiry)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry %q: %w", req.Expiry, err)
		}
		inst.Expiry = expiry
	}

	if err := s.venue.ListInstrument(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Instruments 全部已挂牌合约
func (s *Service) Instruments() []*exchange.Instrument {
	return s.venue.Registry().All()
}

// CurrentPhase 当前时段状态
func (s *Service) CurrentPhase() exchange.PhaseState {
	return s.venue.CurrentPhase()
}

// SubscribePush 建立推送订阅，首条消息为该团队的全量持仓
func (s *Service) SubscribePush(teamID string) *notification.Subscriber {
	return s.fanout.Subscribe(teamID, s.settlement.Positions().Snapshot(teamID))
}

// UnsubscribePush 取消推送订阅
func (s *Service) UnsubscribePush(sub *notification.Subscriber) {
	s.fanout.Unsubscribe(sub)
}
