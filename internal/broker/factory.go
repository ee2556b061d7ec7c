package broker

import (
	"fmt"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/logger"
)

func NewProducer(cfg config.KafkaConfig, log logger.Logger) (Producer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka relay is not configured: no brokers")
	}
	return NewKafkaProducer(cfg, log), nil
}

func NewConsumer(cfg config.KafkaConfig, log logger.Logger) (Consumer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka relay is not configured: no brokers")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer requires a group id")
	}
	return NewKafkaConsumer(cfg, log), nil
}
