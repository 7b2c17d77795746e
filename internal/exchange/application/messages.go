package application

import (
	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
)

// msgKind 管线消息类型
type msgKind int

const (
	msgNew msgKind = iota
	msgCancel
	// msgPoison 关停哨兵，逐级传递终止各阶段工作协程
	msgPoison
)

// orderMsg 委托队列消息，校验阶段的输入
type orderMsg struct {
	kind      msgKind
	requestID string
	teamID    string
	role      string
	// 新委托
	order *exchange.Order
	// 撤单目标
	orderID string
}

// matchMsg 撮合队列消息
type matchMsg struct {
	kind      msgKind
	requestID string
	teamID    string
	role      string
	order     *exchange.Order
	orderID   string
}

// settlementMsg 结算队列消息
// requestID 为空表示时段切换产生的内部结算，不回写协调器
type settlementMsg struct {
	kind      msgKind
	requestID string
	teamID    string
	result    *exchange.OrderResult
}
