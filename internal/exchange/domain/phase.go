package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Phase 市场交易时段
type Phase string

const (
	PhaseClosed         Phase = "CLOSED"
	PhasePreOpen        Phase = "PRE_OPEN"
	PhaseOpeningAuction Phase = "OPENING_AUCTION"
	PhaseContinuous     Phase = "CONTINUOUS"
)

// ParsePhase 解析时段名，大小写不敏感
func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(s) {
	case "CLOSED":
		return PhaseClosed, nil
	case "PRE_OPEN":
		return PhasePreOpen, nil
	case "OPENING_AUCTION":
		return PhaseOpeningAuction, nil
	case "CONTINUOUS":
		return PhaseContinuous, nil
	default:
		return "", fmt.Errorf("invalid phase: %q", s)
	}
}

// ExecutionStyle 时段内生效的撮合方式
type ExecutionStyle string

const (
	StyleNone       ExecutionStyle = "NONE"
	StyleBatch      ExecutionStyle = "BATCH"
	StyleContinuous ExecutionStyle = "CONTINUOUS"
)

// PhaseState 时段及其能力向量，场所的每次收单/撤单决策都只看这张向量
type PhaseState struct {
	Phase               Phase          `json:"phase"`
	OrderEntryAllowed   bool           `json:"order_entry_allowed"`
	CancellationAllowed bool           `json:"cancellation_allowed"`
	MatchingEnabled     bool           `json:"matching_enabled"`
	Style               ExecutionStyle `json:"execution_style"`
}

// StateFor 返回某时段的能力向量
func StateFor(phase Phase) PhaseState {
	switch phase {
	case PhasePreOpen:
		// 竞价前收单不撮合，委托进入竞价缓冲
		return PhaseState{Phase: phase, OrderEntryAllowed: true, CancellationAllowed: true, Style: StyleNone}
	case PhaseOpeningAuction:
		return PhaseState{Phase: phase, MatchingEnabled: true, Style: StyleBatch}
	case PhaseContinuous:
		return PhaseState{Phase: phase, OrderEntryAllowed: true, CancellationAllowed: true, MatchingEnabled: true, Style: StyleContinuous}
	default:
		return PhaseState{Phase: PhaseClosed, Style: StyleNone}
	}
}

// ScheduleWindow 日内时段区间，[Start, End) 均为当日秒数
type ScheduleWindow struct {
	Start int
	End   int
	Phase Phase
}

// Schedule 单日时段表，区间外一律视为闭市
type Schedule []ScheduleWindow

// ParseClock 解析 "HH:MM:SS" 为当日秒数
func ParseClock(s string) (int, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// DefaultSchedule 默认时段表
// 08:00 竞价前 / 09:29:30 开盘集合竞价 / 09:30 连续交易 / 16:00 闭市
func DefaultSchedule() Schedule {
	return Schedule{
		{Start: 8 * 3600, End: 9*3600 + 29*60 + 30, Phase: PhasePreOpen},
		{Start: 9*3600 + 29*60 + 30, End: 9*3600 + 30*60, Phase: PhaseOpeningAuction},
		{Start: 9*3600 + 30*60, End: 16 * 3600, Phase: PhaseContinuous},
	}
}

// NewSchedule 从配置构造时段表，校验区间有序不重叠
func NewSchedule(windows []ScheduleWindow) (Schedule, error) {
	if len(windows) == 0 {
		return DefaultSchedule(), nil
	}
	s := make(Schedule, len(windows))
	copy(s, windows)
	sort.Slice(s, func(i, j int) bool { return s[i].Start < s[j].Start })
	for i, w := range s {
		if w.Start >= w.End {
			return nil, fmt.Errorf("schedule window %d: start %d not before end %d", i, w.Start, w.End)
		}
		if i > 0 && w.Start < s[i-1].End {
			return nil, fmt.Errorf("schedule window %d overlaps previous", i)
		}
	}
	return s, nil
}

// PhaseManager 从墙钟和时段表解析当前时段，纯查询无副作用
type PhaseManager struct {
	schedule Schedule
	now      func() time.Time
}

// PhaseOption 构造选项
type PhaseOption func(*PhaseManager)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) PhaseOption {
	return func(m *PhaseManager) { m.now = now }
}

// NewPhaseManager 创建时段管理器
func NewPhaseManager(schedule Schedule, opts ...PhaseOption) *PhaseManager {
	m := &PhaseManager{
		schedule: schedule,
		now:      time.Now,
	}
	if len(m.schedule) == 0 {
		m.schedule = DefaultSchedule()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current 当前时段状态，周末一律闭市
func (m *PhaseManager) Current() PhaseState {
	t := m.now()
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return StateFor(PhaseClosed)
	}

	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	for _, w := range m.schedule {
		if secs >= w.Start && secs < w.End {
			return StateFor(w.Phase)
		}
	}
	return StateFor(PhaseClosed)
}
