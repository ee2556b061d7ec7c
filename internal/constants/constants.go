package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
	StopWaitTimeout = 30 * time.Second

	// LoginResponseGrace is added to the login wait when extending the
	// login connection deadline.
	LoginResponseGrace = 10 * time.Second
)

const (
	MaxListLimit = 1000
)

const (
	ServiceName = "monitor-service"
)

const (
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = (WSPongWait * 9) / 10
	WSMaxMessageSize = 4096
)

const (
	CheckerBrowser = "browser"
	CheckerRedis   = "redis"
	CheckerKafka   = "kafka"
)

const (
	StopMessage    = "Monitoring stopped"
	WelcomeMessage = "Connected to Avito Messages Monitor"
)
