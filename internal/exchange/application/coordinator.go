package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/exchangesim/pkg/config"
	"github.com/wyfcoding/exchangesim/pkg/logger"
	"github.com/wyfcoding/exchangesim/pkg/metrics"
)

var (
	// ErrCoordinatorFull 在途请求数达到上限
	ErrCoordinatorFull = errors.New("coordinator at capacity")
	// ErrDuplicateRequestID 客户端提供的 request_id 与在途请求重复
	ErrDuplicateRequestID = errors.New("duplicate request id")
)

// Stage 请求在管线中的阶段
type Stage string

const (
	StagePending    Stage = "pending"
	StageValidating Stage = "validating"
	StageMatching   Stage = "matching"
	StageSettling   Stage = "settling"
	StageCompleted  Stage = "completed"
	StageTimeout    Stage = "timeout"
	StageError      Stage = "error"
)

// stageRank 阶段顺序，Advance 不允许倒退
var stageRank = map[Stage]int{
	StagePending:    0,
	StageValidating: 1,
	StageMatching:   2,
	StageSettling:   3,
	StageCompleted:  4,
	StageTimeout:    4,
	StageError:      4,
}

// Result 请求的终态结果，HTTP 包络据此生成
type Result struct {
	RequestID  string
	HTTPStatus int
	Success    bool
	OrderID    string
	Payload    any
	Code       string
	Message    string
	Details    map[string]any
}

// pendingRequest 在途请求记录
type pendingRequest struct {
	requestID    string
	teamID       string
	registeredAt time.Time
	timeoutAt    time.Time

	mu         sync.Mutex
	stage      Stage
	result     *Result
	terminalAt time.Time
	// 单次触发的完成信号
	done chan struct{}
}

// Registration 注册回执
type Registration struct {
	RequestID string
}

// Coordinator 响应协调器，把同步的 API 调用桥接到异步管线
// 唯一生成最终响应的组件；每个请求至多一次终态转移
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest

	defaultTimeout  time.Duration
	maxPending      int
	cleanupInterval time.Duration
	resultTTL       time.Duration

	metrics *metrics.Metrics
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewCoordinator 创建协调器
func NewCoordinator(cfg config.CoordinatorConfig, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		pending:         make(map[string]*pendingRequest),
		defaultTimeout:  time.Duration(cfg.DefaultTimeoutMs) * time.Millisecond,
		maxPending:      cfg.MaxPendingRequests,
		cleanupInterval: time.Duration(cfg.CleanupIntervalMs) * time.Millisecond,
		resultTTL:       time.Duration(cfg.ResultTTLMs) * time.Millisecond,
		metrics:         m,
		stop:            make(chan struct{}),
	}
}

// DefaultTimeout 默认等待超时
func (c *Coordinator) DefaultTimeout() time.Duration {
	return c.defaultTimeout
}

// Start 启动后台清理协程
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop 停止后台清理
func (c *Coordinator) Stop() {
	close(c.stop)
	c.wg.Wait()
}

// Register 分配在途请求，requestID 为空时自动生成
// 超出容量上限返回 ErrCoordinatorFull，调用方回 503
func (c *Coordinator) Register(teamID, requestID string) (*Registration, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	now := time.Now()
	req := &pendingRequest{
		requestID:    requestID,
		teamID:       teamID,
		registeredAt: now,
		timeoutAt:    now.Add(c.defaultTimeout),
		stage:        StagePending,
		done:         make(chan struct{}),
	}

	c.mu.Lock()
	if len(c.pending) >= c.maxPending {
		c.mu.Unlock()
		return nil, ErrCoordinatorFull
	}
	if _, dup := c.pending[requestID]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequestID, requestID)
	}
	c.pending[requestID] = req
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.PendingRequests.Inc()
	}
	return &Registration{RequestID: requestID}, nil
}

// Wait 阻塞等待完成信号或超时，超时时以最后观察到的阶段终结请求
func (c *Coordinator) Wait(requestID string, timeout time.Duration) *Result {
	req := c.get(requestID)
	if req == nil {
		return &Result{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "unknown request",
		}
	}
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-req.done:
	case <-timer.C:
		c.CompleteTimeout(requestID)
		<-req.done
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	return req.result
}

// Advance 工作协程进入新阶段时调用，不允许倒退，终态后为空操作
func (c *Coordinator) Advance(requestID string, stage Stage) {
	req := c.get(requestID)
	if req == nil {
		return
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if req.result != nil {
		return
	}
	if stageRank[stage] > stageRank[req.stage] {
		req.stage = stage
	}
}

// CompleteOK 成功终结
func (c *Coordinator) CompleteOK(requestID, orderID string, payload any) {
	c.complete(requestID, StageCompleted, &Result{
		HTTPStatus: http.StatusOK,
		Success:    true,
		OrderID:    orderID,
		Payload:    payload,
	})
}

// CompleteErr 失败终结
func (c *Coordinator) CompleteErr(requestID string, httpStatus int, code, message string, details map[string]any) {
	c.complete(requestID, StageError, &Result{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Details:    details,
	})
}

// CompleteTimeout 超时终结，details.stage 为最后观察到的阶段
func (c *Coordinator) CompleteTimeout(requestID string) {
	req := c.get(requestID)
	if req == nil {
		return
	}

	req.mu.Lock()
	lastStage := req.stage
	req.mu.Unlock()

	c.complete(requestID, StageTimeout, &Result{
		HTTPStatus: http.StatusGatewayTimeout,
		Code:       "PROCESSING_TIMEOUT",
		Message:    "request processing timed out",
		Details:    map[string]any{"stage": string(lastStage)},
	})
	if c.metrics != nil {
		c.metrics.RequestTimeouts.Inc()
	}
}

// complete 单次终态转移，重复调用为空操作；迟到的工作结果被静默丢弃
func (c *Coordinator) complete(requestID string, stage Stage, result *Result) {
	req := c.get(requestID)
	if req == nil {
		return
	}

	req.mu.Lock()
	if req.result != nil {
		req.mu.Unlock()
		return
	}
	result.RequestID = requestID
	req.stage = stage
	req.result = result
	req.terminalAt = time.Now()
	close(req.done)
	req.mu.Unlock()
}

func (c *Coordinator) get(requestID string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[requestID]
}

// cleanup 周期清理：过期未终态的请求补发超时，终态结果过 TTL 后移除
func (c *Coordinator) cleanup() {
	now := time.Now()

	c.mu.Lock()
	var expired, removable []string
	for id, req := range c.pending {
		req.mu.Lock()
		switch {
		case req.result == nil && now.After(req.timeoutAt):
			expired = append(expired, id)
		case req.result != nil && now.After(req.terminalAt.Add(c.resultTTL)):
			removable = append(removable, id)
		}
		req.mu.Unlock()
	}
	for _, id := range removable {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, id := range expired {
		logger.Warn(context.Background(), "expiring stale pending request", "request_id", id)
		c.CompleteTimeout(id)
	}
	if c.metrics != nil {
		c.metrics.PendingRequests.Sub(float64(len(removable)))
	}
}
