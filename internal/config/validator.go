package config

import (
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBrowser(cfg.Browser); err != nil {
		errors = append(errors, err)
	}

	if err := validateMonitor(cfg.Monitor); err != nil {
		errors = append(errors, err)
	}

	if err := validateExtraction(cfg.Extraction); err != nil {
		errors = append(errors, err)
	}

	if err := validateHistory(cfg.History); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroadcast(cfg.Broadcast); err != nil {
		errors = append(errors, err)
	}

	if err := validateRelay(cfg.Relay); err != nil {
		errors = append(errors, err)
	}

	if err := validateCircuitBreaker(cfg.CircuitBreaker); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBrowser(cfg BrowserConfig) error {
	if cfg.InboxURL == "" {
		return &ValidationError{
			Field:   "browser.inbox_url",
			Message: "inbox URL is required",
		}
	}

	if cfg.EntryURL == "" {
		return &ValidationError{
			Field:   "browser.entry_url",
			Message: "entry URL is required",
		}
	}

	if cfg.ControlURL != "" && !strings.HasPrefix(cfg.ControlURL, "ws://") && !strings.HasPrefix(cfg.ControlURL, "wss://") {
		return &ValidationError{
			Field:   "browser.control_url",
			Message: "control URL must start with ws:// or wss://",
		}
	}

	return validateRetry("browser.connect_retry", cfg.ConnectRetry)
}

func validateMonitor(cfg MonitorConfig) error {
	durations := []struct {
		field string
		value time.Duration
	}{
		{"monitor.poll_interval", cfg.PollInterval},
		{"monitor.navigation_timeout", cfg.NavigationTimeout},
		{"monitor.content_timeout", cfg.ContentTimeout},
		{"monitor.login_timeout", cfg.LoginTimeout},
		{"monitor.login_probe_interval", cfg.LoginProbeInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return &ValidationError{
				Field:   d.field,
				Message: "duration must be positive",
			}
		}
	}

	if cfg.ErrorThreshold < 1 {
		return &ValidationError{
			Field:   "monitor.error_threshold",
			Message: fmt.Sprintf("error threshold must be at least 1, got %d", cfg.ErrorThreshold),
		}
	}

	return validateRetry("monitor.error_backoff", cfg.ErrorBackoff)
}

func validateExtraction(cfg ExtractionConfig) error {
	validAlgorithms := map[string]bool{
		"md5": true, "sha256": true,
	}
	if cfg.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.HashAlgorithm)] {
		return &ValidationError{
			Field:   "extraction.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha256)", cfg.HashAlgorithm),
		}
	}

	if cfg.IDPrefixLength < 1 {
		return &ValidationError{
			Field:   "extraction.id_prefix_length",
			Message: "id prefix length must be positive",
		}
	}

	for i, sender := range cfg.TargetSenders {
		if strings.TrimSpace(sender) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("extraction.target_senders[%d]", i),
				Message: "sender cannot be empty",
			}
		}
	}

	return nil
}

func validateHistory(cfg HistoryConfig) error {
	if cfg.MaxMessages < 1 {
		return &ValidationError{
			Field:   "history.max_messages",
			Message: fmt.Sprintf("max messages must be at least 1, got %d", cfg.MaxMessages),
		}
	}
	return nil
}

func validateBroadcast(cfg BroadcastConfig) error {
	if cfg.HeartbeatInterval < 0 {
		return &ValidationError{
			Field:   "broadcast.heartbeat_interval",
			Message: "heartbeat interval must be non-negative",
		}
	}

	if cfg.ClientBufferSize < 1 {
		return &ValidationError{
			Field:   "broadcast.client_buffer_size",
			Message: "client buffer size must be positive",
		}
	}

	return nil
}

func validateRelay(cfg RelayConfig) error {
	if cfg.Redis.Enabled() {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.Kafka.Enabled() {
		if err := validateKafka(cfg.Kafka); err != nil {
			return err
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "relay.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.Channel == "" {
		return &ValidationError{
			Field:   "relay.redis.channel",
			Message: "Redis channel is required",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("relay.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.EventTopic == "" && cfg.CommandTopic == "" {
		return &ValidationError{
			Field:   "relay.kafka",
			Message: "at least one of event_topic or command_topic is required",
		}
	}

	if cfg.CommandTopic != "" && cfg.GroupID == "" {
		return &ValidationError{
			Field:   "relay.kafka.group_id",
			Message: "Kafka consumer group ID is required when command_topic is set",
		}
	}

	return validateRetry("relay.kafka.retry", cfg.Retry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio < 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: fmt.Sprintf("failure ratio must be between 0 and 1, got %v", cfg.FailureRatio),
		}
	}

	return nil
}
