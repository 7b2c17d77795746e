package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	exchangeapp "github.com/wyfcoding/exchangesim/internal/exchange/application"
	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	"github.com/wyfcoding/exchangesim/internal/exchange/infrastructure/persistence/memory"
	exchangehttp "github.com/wyfcoding/exchangesim/internal/exchange/interfaces/http"
	notifapp "github.com/wyfcoding/exchangesim/internal/notification/application"
	"github.com/wyfcoding/exchangesim/internal/notification/interfaces/ws"
	positiondomain "github.com/wyfcoding/exchangesim/internal/position/domain"
	riskapp "github.com/wyfcoding/exchangesim/internal/risk/application"
	settleapp "github.com/wyfcoding/exchangesim/internal/settlement/application"
	settledomain "github.com/wyfcoding/exchangesim/internal/settlement/domain"
	"github.com/wyfcoding/exchangesim/internal/settlement/infrastructure/messaging"
	teamdomain "github.com/wyfcoding/exchangesim/internal/team/domain"
	teamhttp "github.com/wyfcoding/exchangesim/internal/team/interfaces/http"
	"github.com/wyfcoding/exchangesim/pkg/config"
	"github.com/wyfcoding/exchangesim/pkg/logger"
	"github.com/wyfcoding/exchangesim/pkg/metrics"
	"github.com/wyfcoding/exchangesim/pkg/middleware"
	"github.com/wyfcoding/exchangesim/pkg/mq"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/exchange/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. Logger
	err = logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	})
	if err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	ctx := context.Background()
	logger.Info(ctx, "starting exchange", "service", cfg.ServiceName, "version", cfg.Version)

	// 3. Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.ServiceName)
		if err := m.Register(); err != nil {
			panic(fmt.Sprintf("register metrics failed: %v", err))
		}
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			panic(fmt.Sprintf("start metrics server failed: %v", err))
		}
	}

	// 4. Domain: schedule, phases, pricing strategy, venue
	schedule, err := buildSchedule(cfg.Phases)
	if err != nil {
		panic(fmt.Sprintf("invalid phase schedule: %v", err))
	}
	phases := exchange.NewPhaseManager(schedule)

	var strategy exchange.PricingStrategy
	switch cfg.Matching.BatchPricingStrategy {
	case "equilibrium":
		strategy = exchange.EquilibriumStrategy{}
	default:
		strategy = exchange.MaxVolumeStrategy{}
	}
	batch := exchange.NewBatchEngine(strategy)

	registry := exchange.NewInstrumentRegistry()
	venue := exchange.NewVenue(exchange.VenueConfig{
		Mode:           cfg.Matching.Mode,
		AllowSelfTrade: cfg.Exchange.AllowSelfTrade,
		DepthLevels:    10,
	}, registry, phases, batch)

	// 5. Teams, constraints, fees
	teams := teamdomain.NewRegistry()

	constraintRegistry, err := riskapp.BuildRegistry(cfg.Roles)
	if err != nil {
		panic(fmt.Sprintf("build constraint registry failed: %v", err))
	}
	validator := riskapp.NewValidator(constraintRegistry)

	roleFees := make(map[string]settledomain.RoleFees, len(cfg.Roles))
	for role, rc := range cfg.Roles {
		fees, err := settledomain.ParseRoleFees(rc.Fees.MakerRebate, rc.Fees.TakerFee)
		if err != nil {
			panic(fmt.Sprintf("invalid fees for role %s: %v", role, err))
		}
		roleFees[role] = fees
	}
	feeSchedule := settledomain.NewFeeSchedule(roleFees)

	// 6. Settlement (optional Kafka trade feed)
	var tradeFeed settleapp.TradePublisher
	var feedCloser interface{ Close() error }
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			panic(fmt.Sprintf("create kafka producer failed: %v", err))
		}
		feed := messaging.NewTradeFeed(producer, cfg.Kafka.TradeTopic)
		tradeFeed = feed
		feedCloser = feed
	}
	positions := positiondomain.NewBook()
	settlementSvc := settleapp.NewService(positions, feeSchedule, teams, tradeFeed)

	// 7. Pipeline, coordinator, fan-out
	archive := memory.NewOrderArchive()
	fanout := notifapp.NewFanout(cfg.Exchange.SubscriberBuffer, m)
	coordinator := exchangeapp.NewCoordinator(cfg.Coordinator, m)
	coordinator.Start()

	pipeline := exchangeapp.NewPipeline(exchangeapp.PipelineConfig{
		QueueCapacity:      cfg.Exchange.QueueCapacity,
		PhaseCheckInterval: time.Duration(cfg.Exchange.PhaseCheckIntervalMs) * time.Millisecond,
		EnqueueTimeout:     time.Duration(cfg.Exchange.OrderQueueTimeoutMs) * time.Millisecond,
	}, venue, validator, settlementSvc, archive, fanout, coordinator, m)
	pipeline.Start()

	service := exchangeapp.NewService(pipeline, coordinator, venue, archive, settlementSvc, fanout)

	// 8. HTTP interfaces
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.GinLoggingMiddleware(),
		middleware.GinRecoveryMiddleware(),
		middleware.GinCORSMiddleware(),
	)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	auth := middleware.APIKeyAuth(teams)
	api := router.Group("/api/v1")
	exchangehttp.NewHandler(service).RegisterRoutes(api, auth)
	teamhttp.NewHandler(teams).RegisterRoutes(api)

	wsHandler := ws.NewHandler(service)
	router.GET("/ws", auth, wsHandler.Serve)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 9. Start
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(fmt.Sprintf("http server failed: %v", err))
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown failed", "error", err)
	}

	pipeline.Stop()
	coordinator.Stop()
	if feedCloser != nil {
		if err := feedCloser.Close(); err != nil {
			logger.Error(ctx, "trade feed close failed", "error", err)
		}
	}
	logger.Info(ctx, "exchange exited")
}

// buildSchedule 把配置的 HH:MM:SS 时段表转换为领域时段表
func buildSchedule(cfg config.PhasesConfig) (exchange.Schedule, error) {
	windows := make([]exchange.ScheduleWindow, 0, len(cfg.Schedule))
	for _, w := range cfg.Schedule {
		start, err := exchange.ParseClock(w.Start)
		if err != nil {
			return nil, err
		}
		end, err := exchange.ParseClock(w.End)
		if err != nil {
			return nil, err
		}
		phase, err := exchange.ParsePhase(w.Phase)
		if err != nil {
			return nil, err
		}
		windows = append(windows, exchange.ScheduleWindow{Start: start, End: end, Phase: phase})
	}
	return exchange.NewSchedule(windows)
}
