package models

// Control command types accepted on the command topic.
const (
	CommandLogin = "login"
	CommandStart = "start"
	CommandStop  = "stop"
	CommandClear = "clear"
)

const (
	SourceMonitorService = "monitor-service"
)
