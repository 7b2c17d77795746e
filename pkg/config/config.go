// Package config 提供 TOML 配置加载与环境变量覆盖
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 交易所服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka 配置（可选的成交推送）
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 交易所核心配置
	Exchange ExchangeConfig `mapstructure:"exchange"`
	// 撮合配置
	Matching MatchingConfig `mapstructure:"matching"`
	// 请求协调器配置
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	// 交易时段表
	Phases PhasesConfig `mapstructure:"phases"`
	// 按角色的约束与费率配置
	Roles map[string]RoleConfig `mapstructure:"roles"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用成交推送
	Enabled bool `mapstructure:"enabled"`
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 成交推送主题
	TradeTopic string `mapstructure:"trade_topic"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// ExchangeConfig 交易所核心配置
type ExchangeConfig struct {
	// 时段检查间隔（毫秒）
	PhaseCheckIntervalMs int `mapstructure:"phase_check_interval_ms"`
	// 订单入队超时（毫秒）
	OrderQueueTimeoutMs int `mapstructure:"order_queue_timeout_ms"`
	// 各级队列容量
	QueueCapacity int `mapstructure:"queue_capacity"`
	// 是否允许自成交
	AllowSelfTrade bool `mapstructure:"allow_self_trade"`
	// 推送通道每连接缓冲大小
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// MatchingConfig 撮合配置
type MatchingConfig struct {
	// 模式：continuous 或 batch
	Mode string `mapstructure:"mode"`
	// 集合竞价定价策略：equilibrium 或 maximum_volume
	BatchPricingStrategy string `mapstructure:"batch_pricing_strategy"`
}

// CoordinatorConfig 请求协调器配置
type CoordinatorConfig struct {
	// 默认等待超时（毫秒）
	DefaultTimeoutMs int `mapstructure:"default_timeout_ms"`
	// 在途请求上限
	MaxPendingRequests int `mapstructure:"max_pending_requests"`
	// 清理间隔（毫秒）
	CleanupIntervalMs int `mapstructure:"cleanup_interval_ms"`
	// 终态结果缓存时间（毫秒）
	ResultTTLMs int `mapstructure:"result_ttl_ms"`
}

// PhasesConfig 交易时段表
type PhasesConfig struct {
	Schedule []PhaseWindow `mapstructure:"schedule"`
}

// PhaseWindow 单个交易时段，时间为本地时刻 HH:MM:SS
type PhaseWindow struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
	Phase string `mapstructure:"phase"`
}

// RoleConfig 角色级别的约束与费率
type RoleConfig struct {
	Constraints []ConstraintConfig `mapstructure:"constraints"`
	Fees        FeeConfig          `mapstructure:"fees"`
}

// ConstraintConfig 单条约束的参数包，字段按约束类型取用
type ConstraintConfig struct {
	// 约束类型：position_limit, portfolio_limit, order_size, order_rate,
	// allowed_order_types, allowed_instruments, trading_window, price_range
	Type string `mapstructure:"type"`
	// position_limit / portfolio_limit / order_size / price_range
	Max float64 `mapstructure:"max"`
	Min float64 `mapstructure:"min"`
	// position_limit
	Symmetric bool `mapstructure:"symmetric"`
	// order_rate
	MaxPerSecond int `mapstructure:"max_per_second"`
	// allowed_order_types
	OrderTypes []string `mapstructure:"order_types"`
	// allowed_instruments
	Instruments []string `mapstructure:"instruments"`
	// trading_window
	Phases []string `mapstructure:"phases"`
}

// FeeConfig 按角色的费率（十进制字符串，正数为给团队的返还）
type FeeConfig struct {
	MakerRebate string `mapstructure:"maker_rebate"`
	TakerFee    string `mapstructure:"taker_fee"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("EXCHANGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "exchange")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("kafka.trade_topic", "exchange.trades")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("exchange.phase_check_interval_ms", 100)
	v.SetDefault("exchange.order_queue_timeout_ms", 10)
	v.SetDefault("exchange.queue_capacity", 1024)
	v.SetDefault("exchange.allow_self_trade", true)
	v.SetDefault("exchange.subscriber_buffer", 256)
	v.SetDefault("matching.mode", "continuous")
	v.SetDefault("matching.batch_pricing_strategy", "maximum_volume")
	v.SetDefault("coordinator.default_timeout_ms", 5000)
	v.SetDefault("coordinator.max_pending_requests", 1000)
	v.SetDefault("coordinator.cleanup_interval_ms", 30000)
	v.SetDefault("coordinator.result_ttl_ms", 60000)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	switch c.Matching.Mode {
	case "continuous", "batch":
	default:
		return fmt.Errorf("invalid matching.mode: %q", c.Matching.Mode)
	}
	switch c.Matching.BatchPricingStrategy {
	case "equilibrium", "maximum_volume":
	default:
		return fmt.Errorf("invalid matching.batch_pricing_strategy: %q", c.Matching.BatchPricingStrategy)
	}
	if c.Coordinator.MaxPendingRequests <= 0 {
		return fmt.Errorf("coordinator.max_pending_requests must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when kafka.enabled")
	}
	return nil
}
