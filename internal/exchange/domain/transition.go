package domain

import "sync"

// TransitionActions 时段切换时可触发的动作，由场所实现
type TransitionActions interface {
	// ExecuteOpeningAuction 对全部订单簿执行开盘集合竞价
	ExecuteOpeningAuction() map[string]*AuctionResult
	// CancelAllOrders 撤销全部在簿与待竞价订单
	CancelAllOrders() []*Order
}

// transitionKey (from, to) 时段对
type transitionKey struct {
	from Phase
	to   Phase
}

// TransitionHandler 时段边沿动作处理器
// 记住上次观察到的时段，时段变化时查表执行动作；重复调用无副作用
type TransitionHandler struct {
	mu       sync.Mutex
	actions  TransitionActions
	last     Phase
	observed bool
	table    map[transitionKey]func(*TransitionOutcome)
}

// TransitionOutcome 一次时段切换的处理结果
type TransitionOutcome struct {
	From    Phase
	To      Phase
	Auction map[string]*AuctionResult
	// 收盘全撤的订单
	Cancelled []*Order
}

// NewTransitionHandler 创建处理器，新增切换动作只需扩展这张表
func NewTransitionHandler(actions TransitionActions) *TransitionHandler {
	h := &TransitionHandler{actions: actions}
	h.table = map[transitionKey]func(*TransitionOutcome){
		{PhasePreOpen, PhaseOpeningAuction}: func(out *TransitionOutcome) {
			out.Auction = actions.ExecuteOpeningAuction()
		},
		{PhaseContinuous, PhaseClosed}: func(out *TransitionOutcome) {
			out.Cancelled = actions.CancelAllOrders()
		},
	}
	return h
}

// Check 用当前时段比对上次记录，发生切换时执行动作
// 首次调用只记录时段不触发动作，返回 nil 表示无切换
func (h *TransitionHandler) Check(current Phase) *TransitionOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.observed {
		h.observed = true
		h.last = current
		return nil
	}
	if current == h.last {
		return nil
	}

	out := &TransitionOutcome{From: h.last, To: current}
	if action, ok := h.table[transitionKey{h.last, current}]; ok {
		action(out)
	}
	h.last = current
	return out
}

// LastPhase 上次记录的时段
func (h *TransitionHandler) LastPhase() (Phase, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.observed
}
