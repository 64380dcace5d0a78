// Package bootstrap assembles the trading controller from configuration
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"auto_trader/internal/alert"
	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/internal/exchange"
	"auto_trader/internal/infrastructure/health"
	"auto_trader/internal/infrastructure/metrics"
	"auto_trader/internal/trading/closer"
	"auto_trader/internal/trading/coordinator"
	"auto_trader/internal/trading/monitor"
	"auto_trader/internal/trading/order"
	"auto_trader/internal/trading/pnl"
	"auto_trader/pkg/concurrency"
	"auto_trader/pkg/logging"
	"auto_trader/pkg/telemetry"
)

// App holds the wired components of a trading session.
type App struct {
	Cfg         *config.Config
	Logger      core.ILogger
	Exchange    core.IExchange
	Coordinator *coordinator.Coordinator
	Alerts      *alert.Manager
	Refresher   *monitor.Refresher

	telemetry     *telemetry.Telemetry
	pool          *concurrency.WorkerPool
	metricsServer *metrics.Server
	zap           *logging.ZapLogger
}

// NewApp loads configuration and builds every component of the session.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	zapLogger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger := core.ILogger(zapLogger)

	tel, err := telemetry.Setup("auto_trader")
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "trader",
		MaxWorkers: 16,
	}, logger)

	ex, err := exchange.NewExchange(cfg, logger, pool)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	alerts := alert.NewManager(pool, logger)
	alerts.AddChannel(alert.NewConsoleChannel(logger))
	if cfg.Alerts.TelegramToken != "" && cfg.Alerts.TelegramChatID != "" {
		alerts.AddChannel(alert.NewTelegramChannel(string(cfg.Alerts.TelegramToken), cfg.Alerts.TelegramChatID))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		alerts.AddChannel(alert.NewSlackChannel(string(cfg.Alerts.SlackWebhookURL)))
	}

	executor := order.NewExecutor(ex, cfg.Trading.Leverage, time.Duration(cfg.Timing.OrderPacingMs)*time.Millisecond, logger)
	aggregator := pnl.NewAggregator(ex, logger)
	orchestrator := closer.NewOrchestrator(ex, executor, alerts, time.Duration(cfg.Timing.ClosePacingMs)*time.Millisecond, logger)
	targetMonitor := monitor.NewTargetMonitor(aggregator, orchestrator, alerts,
		time.Duration(cfg.Timing.MonitorIntervalSec)*time.Second, cfg.Timing.MaxConsecutiveErrors, logger)

	coord := coordinator.New(ex, executor, aggregator, orchestrator, targetMonitor, cfg.App.QuoteAsset, logger)

	refresher := monitor.NewRefresher(aggregator, ex,
		time.Duration(cfg.Timing.DisplayIntervalSec)*time.Second,
		func(snap core.PnlSnapshot) {
			fmt.Println(snap.Summary)
		}, logger)

	app := &App{
		Cfg:         cfg,
		Logger:      logger,
		Exchange:    ex,
		Coordinator: coord,
		Alerts:      alerts,
		Refresher:   refresher,
		telemetry:   tel,
		pool:        pool,
		zap:         zapLogger,
	}
	if cfg.Telemetry.EnableMetrics {
		healthManager := health.NewHealthManager(logger)
		healthManager.Register("exchange", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return ex.Ping(pingCtx)
		})
		app.metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, healthManager, logger)
	}
	return app, nil
}

// Runner is a component with a blocking lifecycle tied to a context.
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts the metrics server and the given runners, then blocks until a
// termination signal or the first runner failure.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.metricsServer != nil {
		a.metricsServer.Start()
	}

	g, ctx := errgroup.WithContext(ctx)
	a.Logger.Info("starting application", "venue", a.Exchange.GetName())

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	err := g.Wait()
	a.shutdown()
	if err != nil && err != context.Canceled {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}
	a.Logger.Info("application shut down gracefully")
	return nil
}

func (a *App) shutdown() {
	a.Coordinator.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(shutdownCtx); err != nil {
			a.Logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	a.pool.Stop()
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("telemetry shutdown failed", "error", err)
	}
	_ = a.zap.Sync()
}
