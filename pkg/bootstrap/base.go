package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fbik/avito-monitor-app/internal/broker"
	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/logger"
)

// Base holds the optional external connections shared by the service: the
// Kafka producer for the event relay, the command consumer and Redis.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
	Redis    *redis.Client
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker creates the producer when an event topic is configured and the
// consumer when a command topic is configured. Without brokers it does nothing.
func (b *Base) InitBroker(serviceName string) error {
	kafkaCfg := b.Config.Relay.Kafka
	if !kafkaCfg.Enabled() {
		return nil
	}

	if kafkaCfg.EventTopic != "" {
		producer, err := broker.NewProducer(kafkaCfg, b.Logger)
		if err != nil {
			return fmt.Errorf("failed to create producer: %w", err)
		}
		b.Producer = producer
	}

	if kafkaCfg.CommandTopic != "" {
		consumer, err := broker.NewConsumer(kafkaCfg, b.Logger)
		if err != nil {
			if b.Producer != nil {
				b.Producer.Close()
				b.Producer = nil
			}
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		if serviceName != "" {
			consumer.SetServiceName(serviceName)
		}
		b.Consumer = consumer
	}

	return nil
}

func (b *Base) InitRedis(ctx context.Context) error {
	redisCfg := b.Config.Relay.Redis
	if !redisCfg.Enabled() {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	b.Redis = rdb
	b.Logger.Infow("Redis connected successfully", "addr", rdb.Options().Addr)
	return nil
}

// ShutdownBroker closes the consumer only; the producer is owned by the
// Kafka relay once attached to the hub.
func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) ShutdownRedis() []error {
	if b.Redis == nil {
		return nil
	}
	if err := b.Redis.Close(); err != nil {
		return []error{fmt.Errorf("redis close error: %w", err)}
	}
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)
	errs = append(errs, b.ShutdownRedis()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
