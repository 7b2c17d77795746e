// Package application 委托校验服务，组合约束表与每秒频率计数
package application

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	"github.com/wyfcoding/exchangesim/internal/risk/domain"
	"github.com/wyfcoding/exchangesim/pkg/config"
)

// rateCounter 整秒对齐的每团队计数桶
type rateCounter struct {
	window atomic.Int64
	count  atomic.Int64
}

// observe 返回当前整秒窗口内的计数，跨窗口时重置
func (c *rateCounter) observe(now int64) int64 {
	w := c.window.Load()
	if w != now && c.window.CompareAndSwap(w, now) {
		c.count.Store(0)
	}
	return c.count.Load()
}

func (c *rateCounter) record(now int64) {
	c.observe(now)
	c.count.Add(1)
}

// Validator 委托校验服务
// 约束自身无状态，频率计数由本服务持有
type Validator struct {
	registry *domain.Registry
	counters sync.Map // teamID -> *rateCounter
	now      func() time.Time
}

// NewValidator 创建校验服务
func NewValidator(registry *domain.Registry) *Validator {
	return &Validator{
		registry: registry,
		now:      time.Now,
	}
}

// WithClock 注入时钟，测试用
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate 填充频率快照后按角色评估约束，nil 表示通过
func (v *Validator) Validate(ctx *domain.ValidationContext) *domain.Violation {
	ctx.OrdersThisSecond = v.CountThisSecond(ctx.TeamID)
	return v.registry.Validate(ctx)
}

// RecordAccepted 记录一笔已接受的委托，计入当前整秒窗口
func (v *Validator) RecordAccepted(teamID string) {
	counter := v.counterFor(teamID)
	counter.record(v.now().Unix())
}

// CountThisSecond 团队在当前整秒窗口内已接受的委托数
func (v *Validator) CountThisSecond(teamID string) int {
	counter := v.counterFor(teamID)
	return int(counter.observe(v.now().Unix()))
}

func (v *Validator) counterFor(teamID string) *rateCounter {
	if c, ok := v.counters.Load(teamID); ok {
		return c.(*rateCounter)
	}
	c, _ := v.counters.LoadOrStore(teamID, &rateCounter{})
	return c.(*rateCounter)
}

// BuildRegistry 从角色配置构造约束表
func BuildRegistry(roles map[string]config.RoleConfig) (*domain.Registry, error) {
	registry := domain.NewRegistry()
	for role, rc := range roles {
		constraints := make([]domain.Constraint, 0, len(rc.Constraints))
		for _, cc := range rc.Constraints {
			c, err := buildConstraint(cc)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			constraints = append(constraints, c)
		}
		registry.SetRole(role, constraints)
	}
	return registry, nil
}

func buildConstraint(cc config.ConstraintConfig) (domain.Constraint, error) {
	switch cc.Type {
	case "position_limit":
		return &domain.PositionLimit{Max: int64(cc.Max), Symmetric: cc.Symmetric}, nil
	case "portfolio_limit":
		return &domain.PortfolioLimit{MaxTotal: int64(cc.Max)}, nil
	case "order_size":
		return &domain.OrderSize{Min: int64(cc.Min), Max: int64(cc.Max)}, nil
	case "order_rate":
		return &domain.OrderRate{MaxPerSecond: cc.MaxPerSecond}, nil
	case "allowed_order_types":
		types := make([]exchange.OrderType, 0, len(cc.OrderTypes))
		for _, s := range cc.OrderTypes {
			t, err := exchange.ParseOrderType(s)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
		return &domain.AllowedOrderTypes{Types: types}, nil
	case "allowed_instruments":
		return &domain.AllowedInstruments{Symbols: cc.Instruments}, nil
	case "trading_window":
		phases := make([]exchange.Phase, 0, len(cc.Phases))
		for _, s := range cc.Phases {
			p, err := exchange.ParsePhase(s)
			if err != nil {
				return nil, err
			}
			phases = append(phases, p)
		}
		return &domain.TradingWindow{Phases: phases}, nil
	case "price_range":
		return &domain.PriceRange{
			Min: decimal.NewFromFloat(cc.Min),
			Max: decimal.NewFromFloat(cc.Max),
		}, nil
	default:
		return nil, fmt.Errorf("unknown constraint type: %q", cc.Type)
	}
}
