package models

import "time"

type AuthStatus string

const (
	AuthUnauthenticated     AuthStatus = "unauthenticated"
	AuthAwaitingManualLogin AuthStatus = "awaiting-manual-login"
	AuthAuthenticated       AuthStatus = "authenticated"
	AuthFailed              AuthStatus = "auth-failed"
)

type MonitoringStatus string

const (
	MonitoringStopped      MonitoringStatus = "stopped"
	MonitoringRunning      MonitoringStatus = "running"
	MonitoringStopping     MonitoringStatus = "stopping"
	MonitoringErrorStopped MonitoringStatus = "error-stopped"
)

// CanStart reports whether a monitoring session may be launched from s.
func (s MonitoringStatus) CanStart() bool {
	return s == MonitoringStopped || s == MonitoringErrorStopped
}

// Active reports whether a poll loop is alive in status s.
func (s MonitoringStatus) Active() bool {
	return s == MonitoringRunning || s == MonitoringStopping
}

// Status is a consistent snapshot of the monitor state.
type Status struct {
	Auth       AuthState       `json:"auth"`
	Monitoring MonitoringState `json:"monitoring"`

	MessagesCount    int       `json:"messagesCount"`
	SubscribersCount int       `json:"subscribersCount"`
	Timestamp        time.Time `json:"timestamp"`
}

type AuthState struct {
	Status   AuthStatus `json:"status"`
	Username string     `json:"username,omitempty"`
}

type MonitoringState struct {
	Status                MonitoringStatus `json:"status"`
	ConsecutiveErrorCount int              `json:"consecutiveErrorCount"`
	ChecksCount           int              `json:"checksCount"`
	LastCheckedAt         *time.Time       `json:"lastCheckedAt,omitempty"`
	LastError             string           `json:"lastError,omitempty"`
}
