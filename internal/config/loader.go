package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout_seconds", 15*time.Second)
	viper.SetDefault("server.write_timeout_seconds", 15*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("browser.headless", false)
	viper.SetDefault("browser.entry_url", "https://www.avito.ru/profile")
	viper.SetDefault("browser.inbox_url", "https://www.avito.ru/profile/messenger")
	viper.SetDefault("browser.content_selector", "[data-marker='channels/channel']")
	viper.SetDefault("browser.connect_retry.max_attempts", 3)
	viper.SetDefault("browser.connect_retry.initial_interval", time.Second)
	viper.SetDefault("browser.connect_retry.max_interval", 10*time.Second)
	viper.SetDefault("browser.connect_retry.multiplier", 2.0)

	viper.SetDefault("monitor.poll_interval", 10*time.Second)
	viper.SetDefault("monitor.navigation_timeout", 30*time.Second)
	viper.SetDefault("monitor.content_timeout", 10*time.Second)
	viper.SetDefault("monitor.login_timeout", 30*time.Second)
	viper.SetDefault("monitor.login_probe_interval", time.Second)
	viper.SetDefault("monitor.error_threshold", 5)
	viper.SetDefault("monitor.error_backoff.initial_interval", 15*time.Second)
	viper.SetDefault("monitor.error_backoff.max_interval", 15*time.Second)
	viper.SetDefault("monitor.error_backoff.multiplier", 1.0)

	viper.SetDefault("extraction.hash_algorithm", "sha256")
	viper.SetDefault("extraction.id_prefix_length", 50)

	viper.SetDefault("history.max_messages", 100)

	viper.SetDefault("broadcast.heartbeat_interval", 30*time.Second)
	viper.SetDefault("broadcast.client_buffer_size", 32)
	viper.SetDefault("broadcast.write_timeout", 10*time.Second)

	viper.SetDefault("relay.redis.channel", "inbox-monitor:events")
	viper.SetDefault("relay.kafka.group_id", "inbox-monitor")
	viper.SetDefault("relay.kafka.retry.max_attempts", 3)
	viper.SetDefault("relay.kafka.retry.initial_interval", time.Second)
	viper.SetDefault("relay.kafka.retry.max_interval", 30*time.Second)
	viper.SetDefault("relay.kafka.retry.multiplier", 2.0)
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT", "PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("browser.control_url", "BROWSER_CONTROL_URL")
	viper.BindEnv("browser.bin", "BROWSER_BIN")
	viper.BindEnv("browser.headless", "BROWSER_HEADLESS")
	viper.BindEnv("browser.user_data_dir", "BROWSER_USER_DATA_DIR")

	viper.BindEnv("relay.redis.host", "RELAY_REDIS_HOST")
	viper.BindEnv("relay.redis.port", "RELAY_REDIS_PORT")
	viper.BindEnv("relay.redis.password", "RELAY_REDIS_PASSWORD")
	viper.BindEnv("relay.redis.db", "RELAY_REDIS_DB")

	viper.BindEnv("relay.kafka.group_id", "RELAY_KAFKA_GROUP_ID")
	viper.BindEnv("relay.kafka.event_topic", "RELAY_KAFKA_EVENT_TOPIC")
	viper.BindEnv("relay.kafka.command_topic", "RELAY_KAFKA_COMMAND_TOPIC")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles list-valued variables, which viper does not split.
func applyEnvOverrides(cfg *Config) error {
	if senders := splitList(viper.GetString("MONITOR_TARGET_SENDERS")); len(senders) > 0 {
		cfg.Extraction.TargetSenders = senders
	}

	if brokers := splitList(viper.GetString("RELAY_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Relay.Kafka.Brokers = brokers
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
