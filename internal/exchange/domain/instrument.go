// Package domain 交易所核心的领域模型：合约、订单、订单簿、撮合与交易时段
package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentKind 合约种类
type InstrumentKind string

const (
	KindOption InstrumentKind = "OPTION"
	KindFuture InstrumentKind = "FUTURE"
	KindSpot   InstrumentKind = "SPOT"
)

// OptionType 期权类型
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Instrument 可交易合约，挂牌后不可变
type Instrument struct {
	// 合约代码，全局唯一
	Symbol string `json:"symbol"`
	// 标的
	Underlying string `json:"underlying"`
	// 种类
	Kind InstrumentKind `json:"kind"`
	// 行权价（期权）
	Strike decimal.Decimal `json:"strike,omitempty"`
	// 到期日（期权/期货）
	Expiry time.Time `json:"expiry,omitempty"`
	// 期权类型
	OptionType OptionType `json:"option_type,omitempty"`
	// 挂牌时间
	ListedAt time.Time `json:"listed_at"`
}

// InstrumentRegistry 合约注册表，挂牌后只读
type InstrumentRegistry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

// NewInstrumentRegistry 创建合约注册表
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		instruments: make(map[string]*Instrument),
	}
}

// Add 挂牌新合约，代码重复返回 ErrSymbolExists
func (r *InstrumentRegistry) Add(inst *Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[inst.Symbol]; exists {
		return ErrSymbolExists
	}
	if inst.ListedAt.IsZero() {
		inst.ListedAt = time.Now()
	}
	r.instruments[inst.Symbol] = inst
	return nil
}

// Get 查询合约
func (r *InstrumentRegistry) Get(symbol string) (*Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instruments[symbol]
	return inst, ok
}

// Symbols 返回全部已挂牌合约代码
func (r *InstrumentRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.instruments))
	for s := range r.instruments {
		symbols = append(symbols, s)
	}
	return symbols
}

// All 返回全部合约
func (r *InstrumentRegistry) All() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst)
	}
	return out
}
