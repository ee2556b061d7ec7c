package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Browser        BrowserConfig        `mapstructure:"browser"`
	Monitor        MonitorConfig        `mapstructure:"monitor"`
	Extraction     ExtractionConfig     `mapstructure:"extraction"`
	History        HistoryConfig        `mapstructure:"history"`
	Broadcast      BroadcastConfig      `mapstructure:"broadcast"`
	Relay          RelayConfig          `mapstructure:"relay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BrowserConfig drives the go-rod page driver.
type BrowserConfig struct {
	ControlURL      string      `mapstructure:"control_url"` // attach to a running Chrome instead of launching
	Bin             string      `mapstructure:"bin"`
	Headless        bool        `mapstructure:"headless"`
	UserDataDir     string      `mapstructure:"user_data_dir"`
	Flags           []string    `mapstructure:"flags"`
	EntryURL        string      `mapstructure:"entry_url"`
	InboxURL        string      `mapstructure:"inbox_url"`
	ContentSelector string      `mapstructure:"content_selector"`
	LoggedInScript  string      `mapstructure:"logged_in_script"`
	ExtractScript   string      `mapstructure:"extract_script"`
	ConnectRetry    RetryConfig `mapstructure:"connect_retry"`
}

type MonitorConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	ContentTimeout     time.Duration `mapstructure:"content_timeout"`
	LoginTimeout       time.Duration `mapstructure:"login_timeout"`
	LoginProbeInterval time.Duration `mapstructure:"login_probe_interval"`
	ErrorThreshold     int           `mapstructure:"error_threshold"`
	ErrorBackoff       RetryConfig   `mapstructure:"error_backoff"`
}

type ExtractionConfig struct {
	TargetSenders    []string `mapstructure:"target_senders"`
	FilterExpression string   `mapstructure:"filter_expression"`
	HashAlgorithm    string   `mapstructure:"hash_algorithm"`
	IDPrefixLength   int      `mapstructure:"id_prefix_length"`
}

type HistoryConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
}

type BroadcastConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ClientBufferSize  int           `mapstructure:"client_buffer_size"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type RelayConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type KafkaConfig struct {
	Brokers      []string    `mapstructure:"brokers"`
	GroupID      string      `mapstructure:"group_id"`
	EventTopic   string      `mapstructure:"event_topic"`
	CommandTopic string      `mapstructure:"command_topic"`
	DLQTopic     string      `mapstructure:"dlq_topic"`
	Retry        RetryConfig `mapstructure:"retry"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
