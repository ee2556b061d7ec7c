package models

import "time"

type EventKind string

const (
	EventAuthStatusChanged       EventKind = "auth-status-changed"
	EventMonitoringStatusChanged EventKind = "monitoring-status-changed"
	EventMessageIngested         EventKind = "message-ingested"
	EventHistoryCleared          EventKind = "history-cleared"
	EventCycleCompleted          EventKind = "cycle-completed"
	EventMonitoringError         EventKind = "monitoring-error"

	// Transport-level kinds, never emitted by the monitor itself.
	EventConnected EventKind = "connected"
	EventStatus    EventKind = "status"
)

// Event is one broadcast unit. Data holds the payload struct matching Kind.
type Event struct {
	Kind      EventKind   `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewEvent(kind EventKind, data interface{}) Event {
	return Event{Kind: kind, Data: data, Timestamp: time.Now()}
}

type AuthStatusPayload struct {
	Status   AuthStatus `json:"status"`
	Username string     `json:"username,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

type MonitoringStatusPayload struct {
	Status MonitoringStatus `json:"status"`
}

type MessageIngestedPayload struct {
	Message Message `json:"message"`
}

type HistoryClearedPayload struct {
	Removed int `json:"removed"`
}

type CycleCompletedPayload struct {
	Success      bool      `json:"success"`
	NewMessages  int       `json:"newMessages"`
	HistorySize  int       `json:"historySize"`
	CheckedAt    time.Time `json:"checkedAt"`
	ErrorCount   int       `json:"consecutiveErrorCount"`
	ContentFound bool      `json:"contentFound"`
}

type MonitoringErrorPayload struct {
	Code                  string `json:"code"`
	Message               string `json:"message"`
	ConsecutiveErrorCount int    `json:"consecutiveErrorCount"`
}

type ConnectedPayload struct {
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

type StatusPayload struct {
	ConnectedClients int    `json:"connectedClients"`
	Status           string `json:"status"`
}
