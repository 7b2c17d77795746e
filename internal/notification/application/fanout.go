// Package application 事件扇出：按团队路由结算产出的推送事件
package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/exchangesim/internal/notification/domain"
	"github.com/wyfcoding/exchangesim/pkg/logger"
	"github.com/wyfcoding/exchangesim/pkg/metrics"
)

// Subscriber 单个推送订阅，每连接一个
// 序号单调递增；缓冲满时事件被丢弃但序号不回退，订阅端据此发现缺口
type Subscriber struct {
	teamID  string
	mu      sync.Mutex
	ch      chan *domain.Event
	seq     atomic.Uint64
	dropped atomic.Uint64
	closed  bool
}

// TeamID 订阅所属团队
func (s *Subscriber) TeamID() string {
	return s.teamID
}

// Events 事件通道，扇出关闭订阅时通道被 close
func (s *Subscriber) Events() <-chan *domain.Event {
	return s.ch
}

// Dropped 因缓冲满被丢弃的事件数
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Fanout 事件扇出，结算阶段的唯一推送出口
// 慢订阅者只丢自己的消息，不阻塞结算
type Fanout struct {
	mu      sync.RWMutex
	byTeam  map[string]map[*Subscriber]struct{}
	buffer  int
	metrics *metrics.Metrics
}

// NewFanout 创建扇出，metrics 可为 nil
func NewFanout(buffer int, m *metrics.Metrics) *Fanout {
	if buffer <= 0 {
		buffer = 256
	}
	return &Fanout{
		byTeam:  make(map[string]map[*Subscriber]struct{}),
		buffer:  buffer,
		metrics: m,
	}
}

// Subscribe 建立订阅，先推送一条全量持仓再接入实时流
func (f *Fanout) Subscribe(teamID string, positions map[string]int64) *Subscriber {
	sub := &Subscriber{
		teamID: teamID,
		ch:     make(chan *domain.Event, f.buffer),
	}

	f.mu.Lock()
	if f.byTeam[teamID] == nil {
		f.byTeam[teamID] = make(map[*Subscriber]struct{})
	}
	f.byTeam[teamID][sub] = struct{}{}
	f.mu.Unlock()

	f.deliver(sub, domain.EventPositionSnapshot, domain.PositionSnapshot{Positions: positions})

	if f.metrics != nil {
		f.metrics.WSClients.Inc()
	}
	return sub
}

// Unsubscribe 取消订阅并关闭其事件通道
func (f *Fanout) Unsubscribe(sub *Subscriber) {
	f.mu.Lock()
	if subs, ok := f.byTeam[sub.teamID]; ok {
		if _, live := subs[sub]; live {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(f.byTeam, sub.teamID)
			}
		}
	}
	f.mu.Unlock()

	sub.mu.Lock()
	alreadyClosed := sub.closed
	if !alreadyClosed {
		sub.closed = true
		close(sub.ch)
	}
	sub.mu.Unlock()

	if !alreadyClosed && f.metrics != nil {
		f.metrics.WSClients.Dec()
	}
}

// PublishToTeam 推送事件到团队的全部订阅
func (f *Fanout) PublishToTeam(teamID string, typ domain.EventType, data any) {
	f.mu.RLock()
	subs := make([]*Subscriber, 0, len(f.byTeam[teamID]))
	for sub := range f.byTeam[teamID] {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		f.deliver(sub, typ, data)
	}
}

// Broadcast 推送事件到全部订阅，时段切换用
func (f *Fanout) Broadcast(typ domain.EventType, data any) {
	f.mu.RLock()
	var subs []*Subscriber
	for _, teamSubs := range f.byTeam {
		for sub := range teamSubs {
			subs = append(subs, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		f.deliver(sub, typ, data)
	}
}

// deliver 非阻塞投递，缓冲满则丢弃并计数，序号照常前进
func (f *Fanout) deliver(sub *Subscriber, typ domain.EventType, data any) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	event := &domain.Event{
		Seq:       sub.seq.Add(1),
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}

	select {
	case sub.ch <- event:
		if f.metrics != nil {
			f.metrics.EventsPublished.WithLabelValues(string(typ)).Inc()
		}
	default:
		sub.dropped.Add(1)
		if f.metrics != nil {
			f.metrics.EventsDropped.Inc()
		}
		logger.Debug(context.Background(), "event dropped for slow subscriber",
			"team_id", sub.teamID,
			"type", typ,
			"seq", event.Seq,
		)
	}
}
