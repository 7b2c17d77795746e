package domain

import "errors"

// 交易所核心的哨兵错误，接口层负责映射为 API 错误码
var (
	// ErrSymbolExists 挂牌时合约代码重复
	ErrSymbolExists = errors.New("symbol already listed")
	// ErrUnknownInstrument 合约不存在
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrOrderNotFound 订单不在订单簿中
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotOrderOwner 订单不属于该交易者
	ErrNotOrderOwner = errors.New("order not owned by trader")
	// ErrCancelNotAllowed 当前时段禁止撤单
	ErrCancelNotAllowed = errors.New("cancellation not allowed in current phase")
)

// 拒单原因码，与 API 错误码一致
const (
	ReasonMarketClosed      = "MARKET_CLOSED"
	ReasonAuctionInProgress = "AUCTION_IN_PROGRESS"
	ReasonInvalidInstrument = "INVALID_INSTRUMENT"
)
