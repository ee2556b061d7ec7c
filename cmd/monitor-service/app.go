package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fbik/avito-monitor-app/internal/api"
	"github.com/fbik/avito-monitor-app/internal/broadcast"
	"github.com/fbik/avito-monitor-app/internal/command"
	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/constants"
	"github.com/fbik/avito-monitor-app/internal/extraction"
	"github.com/fbik/avito-monitor-app/internal/history"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/internal/monitor"
	"github.com/fbik/avito-monitor-app/internal/page"
	"github.com/fbik/avito-monitor-app/internal/relay"
	"github.com/fbik/avito-monitor-app/internal/transport/ws"
	"github.com/fbik/avito-monitor-app/pkg/bootstrap"
	"github.com/fbik/avito-monitor-app/pkg/health"
	"github.com/fbik/avito-monitor-app/pkg/metrics"
	"github.com/fbik/avito-monitor-app/pkg/middleware"
	"github.com/fbik/avito-monitor-app/pkg/ratelimit"
	"github.com/fbik/avito-monitor-app/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	rod            *page.RodDriver
	driver         *page.CircuitBreakerDriver
	hub            *broadcast.Hub
	monitor        *monitor.Monitor
	commands       *command.Handler
	healthRegistry *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	router         *gin.Engine
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterMonitorMetrics()
	metrics.RegisterBroadcastMetrics()
	metrics.RegisterAPIMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.Relay.Kafka.Enabled() {
		metrics.RegisterBrokerMetrics()
	}

	if err := a.InitRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initMonitor(); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	a.initHealth()

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}

	return nil
}

func (a *App) initMonitor() error {
	engine, err := extraction.NewEngine(a.Config.Extraction, a.Logger)
	if err != nil {
		return err
	}
	if len(engine.Targets()) == 0 {
		a.Logger.Warn("No target senders configured, every candidate will be discarded")
	}

	a.rod = page.NewRodDriver(a.Config.Browser, a.Logger)
	a.driver = page.NewCircuitBreakerDriver(a.rod, a.Config.CircuitBreaker)
	if a.Config.CircuitBreaker.Enabled {
		a.Logger.Infow("Circuit breaker enabled for page driver")
	}

	a.hub = broadcast.NewHub(a.Logger, a.Config.Broadcast.HeartbeatInterval)

	if a.Redis != nil {
		a.hub.AddSink(relay.NewAsync(relay.NewRedisRelay(a.Redis, a.Config.Relay.Redis.Channel), 0, a.Logger))
		a.Logger.Infow("Redis event relay enabled", "channel", a.Config.Relay.Redis.Channel)
	}
	if a.Producer != nil {
		a.hub.AddSink(relay.NewAsync(relay.NewKafkaRelay(a.Producer, a.Config.Relay.Kafka.EventTopic), 0, a.Logger))
		a.Logger.Infow("Kafka event relay enabled", "topic", a.Config.Relay.Kafka.EventTopic)
	}

	a.monitor = monitor.New(a.Config.Monitor, a.Config.Browser, monitor.Deps{
		Driver: a.driver,
		Engine: engine,
		Store:  history.NewStore(a.Config.History.MaxMessages),
		Events: a.hub,
		Logger: a.Logger,
	})

	if a.Consumer != nil {
		a.commands = command.NewHandler(a.monitor, a.Logger)
	}
	return nil
}

func (a *App) initHealth() {
	a.healthRegistry = health.NewCheckerRegistry()
	a.healthRegistry.RegisterOptional(health.NewFuncChecker(constants.CheckerBrowser, a.driver.Ping))
	if a.Redis != nil {
		a.healthRegistry.RegisterOptional(health.NewRedisChecker(a.Redis))
	}
	if a.Config.Relay.Kafka.Enabled() {
		a.healthRegistry.RegisterOptional(health.NewKafkaChecker(a.Config.Relay.Kafka.Brokers))
	}
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.CORSMiddleware())

	api.RegisterOpsRoutes(router, a.healthRegistry)
	ws.NewHandler(a.hub, a.Config.Broadcast, a.Logger).RegisterRoutes(router)

	control := router.Group("")
	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		control.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}
	loginDeadline := a.Config.Monitor.NavigationTimeout + a.Config.Monitor.LoginTimeout + constants.LoginResponseGrace
	api.NewHandler(a.monitor, loginDeadline, a.Logger).RegisterRoutes(control)

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.rod.Start(gCtx); err != nil {
			a.Logger.WarnwCtx(gCtx, "Browser not available yet, will retry on first use", "error", err)
		}
		return nil
	})

	a.hub.StartHeartbeat(gCtx)

	if a.commands != nil {
		topic := a.Config.Relay.Kafka.CommandTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting control command consumer", "topic", topic)
			err := a.Consumer.Consume(gCtx, topic, a.commands.Handle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	return a.Base.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.monitor != nil {
			if err := a.monitor.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("monitor shutdown error: %w", err))
			}
		}

		if a.hub != nil {
			if err := a.hub.Close(); err != nil {
				errs = append(errs, fmt.Errorf("hub close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	})
}
