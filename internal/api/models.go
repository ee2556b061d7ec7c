package api

import (
	"time"

	"github.com/fbik/avito-monitor-app/pkg/models"
)

type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ClearResponse struct {
	SuccessResponse
	Removed int `json:"removed"`
}

type ListResponse struct {
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
}

type StatusResponse struct {
	Status           string            `json:"status"`
	Auth             AuthStatusView    `json:"auth"`
	Monitoring       MonitorStatusView `json:"monitoring"`
	MessagesCount    int               `json:"messagesCount"`
	SubscribersCount int               `json:"subscribersCount"`
	Timestamp        time.Time         `json:"timestamp"`
}

type AuthStatusView struct {
	Status          models.AuthStatus `json:"status"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	Username        string            `json:"username,omitempty"`
}

type MonitorStatusView struct {
	Status                models.MonitoringStatus `json:"status"`
	IsActive              bool                    `json:"isActive"`
	LastCheck             *time.Time              `json:"lastCheck"`
	ChecksCount           int                     `json:"checksCount"`
	ConsecutiveErrorCount int                     `json:"consecutiveErrorCount"`
	LastError             string                  `json:"lastError,omitempty"`
}

func NewStatusResponse(st models.Status) StatusResponse {
	return StatusResponse{
		Status: "ok",
		Auth: AuthStatusView{
			Status:          st.Auth.Status,
			IsAuthenticated: st.Auth.Status == models.AuthAuthenticated,
			Username:        st.Auth.Username,
		},
		Monitoring: MonitorStatusView{
			Status:                st.Monitoring.Status,
			IsActive:              st.Monitoring.Status.Active(),
			LastCheck:             st.Monitoring.LastCheckedAt,
			ChecksCount:           st.Monitoring.ChecksCount,
			ConsecutiveErrorCount: st.Monitoring.ConsecutiveErrorCount,
			LastError:             st.Monitoring.LastError,
		},
		MessagesCount:    st.MessagesCount,
		SubscribersCount: st.SubscribersCount,
		Timestamp:        st.Timestamp,
	}
}
