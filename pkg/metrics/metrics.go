// Package metrics 提供 Prometheus helper，包含交易所核心的业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/exchangesim/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 接收订单计数（按结果）
	OrdersTotal *prometheus.CounterVec
	// 拒单计数（按错误码）
	OrdersRejected *prometheus.CounterVec
	// 成交计数
	TradesTotal prometheus.Counter
	// 成交数量累计
	TradeVolume prometheus.Counter
	// 各级流水线队列深度
	QueueDepth *prometheus.GaugeVec
	// 在途请求数
	PendingRequests prometheus.Gauge
	// 请求处理超时计数
	RequestTimeouts prometheus.Counter

	// WebSocket 连接数
	WSClients prometheus.Gauge
	// 慢消费者丢弃事件计数
	EventsDropped prometheus.Counter
	// 推送事件计数（按类型）
	EventsPublished *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "orders_total",
			Help:      "Total orders accepted by the pipeline",
		}, []string{"status"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "orders_rejected_total",
			Help:      "Total rejected orders by error code",
		}, []string{"code"}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "trades_total",
			Help:      "Total trades executed",
		}),
		TradeVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "trade_volume_total",
			Help:      "Cumulative traded quantity",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "pipeline_queue_depth",
			Help:      "Current depth of each pipeline queue",
		}, []string{"stage"}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "pending_requests",
			Help:      "Number of live pending requests in the coordinator",
		}),
		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "request_timeouts_total",
			Help:      "Total requests that timed out in the pipeline",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "ws_clients",
			Help:      "Number of connected WebSocket clients",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "events_dropped_total",
			Help:      "Events dropped due to slow consumers",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "events_published_total",
			Help:      "Events published to subscribers by type",
		}, []string{"type"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersTotal,
		m.OrdersRejected,
		m.TradesTotal,
		m.TradeVolume,
		m.QueueDepth,
		m.PendingRequests,
		m.RequestTimeouts,
		m.WSClients,
		m.EventsDropped,
		m.EventsPublished,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
